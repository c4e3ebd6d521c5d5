// Package store defines the persistence boundary for users, transactions and
// recurring series. Implementations live in the postgres and inmemory
// subpackages.
package store

import (
	"context"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/shopspring/decimal"
)

// UserRepository manages users.
type UserRepository interface {
	// CreateUser persists a new user and returns it with ID and CreatedAt set.
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)

	// GetUser returns domain.ErrNotFound for an unknown id.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// DeleteUserCascade removes the user with all of its transactions and
	// recurring series in a single unit of work.
	DeleteUserCascade(ctx context.Context, userID int64) error
}

// TransactionRepository manages ingested transactions.
type TransactionRepository interface {
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	// GetByExternalID looks up a transaction by its (user, external id) key.
	GetByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Transaction, error)

	// InsertTransaction writes a new row. It returns domain.ErrConflict when
	// the (user, external id) pair already exists and domain.ErrNotFound when
	// the user does not.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)

	// DeleteTransaction removes a transaction. A series left without members
	// is removed in the same unit of work.
	DeleteTransaction(ctx context.Context, id int64) error

	// ListTransactions returns the user's transactions ordered by date then id.
	ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
}

// SeriesRepository reads recurring series and opens matching units of work.
type SeriesRepository interface {
	// GetRecurringTransaction returns a series with its members in append
	// order, regardless of how many members it has.
	GetRecurringTransaction(ctx context.Context, id int64) (*domain.RecurringTransaction, error)

	// ListRecurringSeries returns the user's series with more than one
	// member, ordered by id.
	ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error)

	// WithinUserTx runs fn in a unit of work serialized against every other
	// WithinUserTx call for the same user. Returning an error from fn rolls
	// back everything fn wrote.
	WithinUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx SeriesTx) error) error
}

// Repository is the full store used by the services.
type Repository interface {
	UserRepository
	TransactionRepository
	SeriesRepository

	Close()
}

// SeriesTx is the view of the store available inside WithinUserTx.
type SeriesTx interface {
	UserExists(ctx context.Context, userID int64) (bool, error)

	// GetTransaction re-reads a transaction under the unit's lock.
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)

	// CandidateMembers returns every transaction of the user that already
	// belongs to a series and whose amount equals amount exactly, ordered by
	// series id then transaction id.
	CandidateMembers(ctx context.Context, userID int64, amount decimal.Decimal) ([]domain.Transaction, error)

	// CreateGroup creates an empty series owned by the user.
	CreateGroup(ctx context.Context, userID int64) (int64, error)

	// AppendMember makes the transaction the newest member of the series. It
	// returns domain.ErrConflict when the transaction is already in a series.
	AppendMember(ctx context.Context, groupID, transactionID int64) error

	// LoadGroup returns the series with its members in append order.
	LoadGroup(ctx context.Context, groupID int64) (*domain.RecurringTransaction, error)
}
