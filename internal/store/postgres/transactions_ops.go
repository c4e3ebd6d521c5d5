package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// amount is read as text so NUMERIC values keep their exact decimal form.
const transactionColumns = `id, user_id, external_id, account_id, date, description, amount::text, recurring_transaction_id, created_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t      domain.Transaction
		amount string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.ExternalID, &t.AccountID, &t.Date,
		&t.Description, &amount, &t.RecurringTransactionID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Date = t.Date.UTC()
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return getTransaction(ctx, s.pool, id)
}

func getTransaction(ctx context.Context, q querier, id int64) (*domain.Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: transaction %d: %w", id, mapError(err))
	}
	return t, nil
}

// GetByExternalID implements store.TransactionRepository.
func (s *Store) GetByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1 AND external_id = $2`,
		userID, externalID,
	))
	if err != nil {
		return nil, fmt.Errorf("GetByExternalID: %d/%s: %w", userID, externalID, mapError(err))
	}
	return t, nil
}

// InsertTransaction implements store.TransactionRepository. A row that loses
// the race on (user_id, external_id) comes back as domain.ErrConflict.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, external_id, account_id, date, description, amount)
		VALUES ($1, $2, $3, $4, $5, $6::numeric)
		ON CONFLICT (user_id, external_id) DO NOTHING
		RETURNING `+transactionColumns,
		tx.UserID, tx.ExternalID, tx.AccountID, tx.Date, tx.Description,
		tx.Amount.StringFixed(domain.AmountScale),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("InsertTransaction: %d/%s: %w", tx.UserID, tx.ExternalID, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("InsertTransaction: %d/%s: %w", tx.UserID, tx.ExternalID, mapError(err))
	}
	return t, nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	var userID int64
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM transactions WHERE id = $1`, id).Scan(&userID)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: transaction %d: %w", id, mapError(err))
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		var groupID *int64
		err := tx.QueryRow(ctx,
			`DELETE FROM transactions WHERE id = $1 RETURNING recurring_transaction_id`, id,
		).Scan(&groupID)
		if err != nil {
			return fmt.Errorf("DeleteTransaction: transaction %d: %w", id, mapError(err))
		}
		if groupID == nil {
			return nil
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM recurring_transactions r
			WHERE r.id = $1
			  AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.recurring_transaction_id = r.id)`,
			*groupID,
		)
		if err != nil {
			return fmt.Errorf("DeleteTransaction: dropping empty series %d: %w", *groupID, err)
		}
		return nil
	})
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	if _, err := getUser(ctx, s.pool, userID); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY date, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query: %w", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: scanning: %w", err)
	}
	return txs, nil
}
