package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, COALESCE(external_id, ''), COALESCE(email, ''), COALESCE(username, ''), created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Username, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser implements store.UserRepository.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (external_id, email, username)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''))
		RETURNING `+userColumns,
		u.ExternalID, u.Email, u.Username,
	)
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: inserting user: %w", mapError(err))
	}
	return created, nil
}

// GetUser implements store.UserRepository.
func (s *Store) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return getUser(ctx, s.pool, userID)
}

func getUser(ctx context.Context, q querier, userID int64) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("GetUser: user %d: %w", userID, mapError(err))
	}
	return u, nil
}

// DeleteUserCascade implements store.UserRepository. Transactions, series and
// role links go with the user through ON DELETE CASCADE.
func (s *Store) DeleteUserCascade(ctx context.Context, userID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("DeleteUserCascade: deleting user %d: %w", userID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("DeleteUserCascade: user %d: %w", userID, domain.ErrNotFound)
		}
		return nil
	})
}
