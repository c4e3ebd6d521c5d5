package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/shopspring/decimal"
)

// GetRecurringTransaction implements store.SeriesRepository.
func (s *Store) GetRecurringTransaction(ctx context.Context, id int64) (*domain.RecurringTransaction, error) {
	return loadGroup(ctx, s.pool, id)
}

func loadGroup(ctx context.Context, q querier, id int64) (*domain.RecurringTransaction, error) {
	r := &domain.RecurringTransaction{}
	err := q.QueryRow(ctx,
		`SELECT id, user_id, created_at FROM recurring_transactions WHERE id = $1`, id,
	).Scan(&r.ID, &r.UserID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("GetRecurringTransaction: series %d: %w", id, mapError(err))
	}

	rows, err := q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE recurring_transaction_id = $1
		ORDER BY series_position, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("GetRecurringTransaction: members of %d: %w", id, err)
	}
	r.Members, err = collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("GetRecurringTransaction: scanning members of %d: %w", id, err)
	}
	return r, nil
}

// ListRecurringSeries implements store.SeriesRepository.
func (s *Store) ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.user_id, r.created_at
		FROM recurring_transactions r
		JOIN transactions t ON t.recurring_transaction_id = r.id
		WHERE r.user_id = $1
		GROUP BY r.id
		HAVING COUNT(t.id) > 1
		ORDER BY r.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListRecurringSeries: query: %w", err)
	}

	var (
		series []*domain.RecurringTransaction
		ids    []int64
		byID   = make(map[int64]*domain.RecurringTransaction)
	)
	for rows.Next() {
		r := &domain.RecurringTransaction{}
		if err := rows.Scan(&r.ID, &r.UserID, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ListRecurringSeries: scanning series: %w", err)
		}
		series = append(series, r)
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecurringSeries: iterating series: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.RecurringTransaction{}, nil
	}

	memberRows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE recurring_transaction_id = ANY($1)
		ORDER BY recurring_transaction_id, series_position, id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("ListRecurringSeries: members: %w", err)
	}
	members, err := collectTransactions(memberRows)
	if err != nil {
		return nil, fmt.Errorf("ListRecurringSeries: scanning members: %w", err)
	}
	for _, m := range members {
		r := byID[*m.RecurringTransactionID]
		r.Members = append(r.Members, m)
	}

	return series, nil
}

// seriesTx runs matching queries inside the transaction opened by WithinUserTx.
type seriesTx struct {
	q querier
}

func (t *seriesTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("UserExists: %w", err)
	}
	return exists, nil
}

func (t *seriesTx) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return getTransaction(ctx, t.q, id)
}

func (t *seriesTx) CandidateMembers(ctx context.Context, userID int64, amount decimal.Decimal) ([]domain.Transaction, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		  AND recurring_transaction_id IS NOT NULL
		  AND amount = $2::numeric
		ORDER BY recurring_transaction_id, id`,
		userID, amount.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("CandidateMembers: query: %w", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("CandidateMembers: scanning: %w", err)
	}
	return txs, nil
}

func (t *seriesTx) CreateGroup(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO recurring_transactions (user_id) VALUES ($1) RETURNING id`, userID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateGroup: user %d: %w", userID, mapError(err))
	}
	return id, nil
}

func (t *seriesTx) AppendMember(ctx context.Context, groupID, transactionID int64) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE transactions
		SET recurring_transaction_id = $1,
		    series_position = nextval('transactions_series_position_seq')
		WHERE id = $2
		  AND recurring_transaction_id IS NULL
		  AND user_id = (SELECT user_id FROM recurring_transactions WHERE id = $1)`,
		groupID, transactionID,
	)
	if err != nil {
		return fmt.Errorf("AppendMember: %w", mapError(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	tx, err := getTransaction(ctx, t.q, transactionID)
	if err != nil {
		return fmt.Errorf("AppendMember: %w", err)
	}
	if tx.RecurringTransactionID != nil {
		return fmt.Errorf("AppendMember: transaction %d already in series %d: %w",
			transactionID, *tx.RecurringTransactionID, domain.ErrConflict)
	}
	return fmt.Errorf("AppendMember: series %d for user %d: %w", groupID, tx.UserID, domain.ErrNotFound)
}

func (t *seriesTx) LoadGroup(ctx context.Context, groupID int64) (*domain.RecurringTransaction, error) {
	return loadGroup(ctx, t.q, groupID)
}
