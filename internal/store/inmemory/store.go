// Package inmemory is a map-backed store.Repository for tests and local runs.
// Data is lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/shopspring/decimal"
)

type externalKey struct {
	userID     int64
	externalID string
}

type group struct {
	id        int64
	userID    int64
	createdAt time.Time
	members   []int64
}

// Store is safe for concurrent use. Matching units of work are serialized per
// user through userLocks; map access is guarded by mu.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]*domain.User
	txs        map[int64]*domain.Transaction
	byExternal map[externalKey]int64
	groups     map[int64]*group

	nextUserID  int64
	nextTxID    int64
	nextGroupID int64

	locksMu   sync.Mutex
	userLocks map[int64]*sync.Mutex

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[int64]*domain.User),
		txs:        make(map[int64]*domain.Transaction),
		byExternal: make(map[externalKey]int64),
		groups:     make(map[int64]*group),
		userLocks:  make(map[int64]*sync.Mutex),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// forgetUserLock drops a deleted user's mutex. User ids are never reused, so
// a caller still holding the old mutex only finds the user gone.
func (s *Store) forgetUserLock(userID int64) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.userLocks, userID)
}

func copyTx(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.RecurringTransactionID != nil {
		id := *t.RecurringTransactionID
		c.RecurringTransactionID = &id
	}
	return &c
}

// CreateUser implements store.UserRepository.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if u.Email != "" && existing.Email == u.Email {
			return nil, fmt.Errorf("CreateUser: email %q: %w", u.Email, domain.ErrConflict)
		}
		if u.ExternalID != "" && existing.ExternalID == u.ExternalID {
			return nil, fmt.Errorf("CreateUser: external id %q: %w", u.ExternalID, domain.ErrConflict)
		}
	}

	s.nextUserID++
	c := *u
	c.ID = s.nextUserID
	c.CreatedAt = s.now()
	s.users[c.ID] = &c

	out := c
	return &out, nil
}

// GetUser implements store.UserRepository.
func (s *Store) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("GetUser: user %d: %w", userID, domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// DeleteUserCascade implements store.UserRepository.
func (s *Store) DeleteUserCascade(ctx context.Context, userID int64) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	defer s.forgetUserLock(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("DeleteUserCascade: user %d: %w", userID, domain.ErrNotFound)
	}

	for id, t := range s.txs {
		if t.UserID == userID {
			delete(s.byExternal, externalKey{userID, t.ExternalID})
			delete(s.txs, id)
		}
	}
	for id, g := range s.groups {
		if g.userID == userID {
			delete(s.groups, id)
		}
	}
	delete(s.users, userID)

	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransactionLocked(id)
}

func (s *Store) getTransactionLocked(id int64) (*domain.Transaction, error) {
	t, ok := s.txs[id]
	if !ok {
		return nil, fmt.Errorf("GetTransaction: transaction %d: %w", id, domain.ErrNotFound)
	}
	return copyTx(t), nil
}

// GetByExternalID implements store.TransactionRepository.
func (s *Store) GetByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalKey{userID, externalID}]
	if !ok {
		return nil, fmt.Errorf("GetByExternalID: %d/%s: %w", userID, externalID, domain.ErrNotFound)
	}
	return copyTx(s.txs[id]), nil
}

// InsertTransaction implements store.TransactionRepository.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[tx.UserID]; !ok {
		return nil, fmt.Errorf("InsertTransaction: user %d: %w", tx.UserID, domain.ErrNotFound)
	}
	key := externalKey{tx.UserID, tx.ExternalID}
	if _, ok := s.byExternal[key]; ok {
		return nil, fmt.Errorf("InsertTransaction: %d/%s: %w", tx.UserID, tx.ExternalID, domain.ErrConflict)
	}

	s.nextTxID++
	c := copyTx(tx)
	c.ID = s.nextTxID
	c.Date = c.Date.UTC()
	c.RecurringTransactionID = nil
	c.CreatedAt = s.now()
	s.txs[c.ID] = c
	s.byExternal[key] = c.ID

	return copyTx(c), nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, id int64) error {
	s.mu.RLock()
	t, ok := s.txs[id]
	var userID int64
	if ok {
		userID = t.UserID
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("DeleteTransaction: transaction %d: %w", id, domain.ErrNotFound)
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok = s.txs[id]
	if !ok {
		return fmt.Errorf("DeleteTransaction: transaction %d: %w", id, domain.ErrNotFound)
	}

	if t.RecurringTransactionID != nil {
		if g, ok := s.groups[*t.RecurringTransactionID]; ok {
			members := g.members[:0:0]
			for _, m := range g.members {
				if m != id {
					members = append(members, m)
				}
			}
			g.members = members
			if len(g.members) == 0 {
				delete(s.groups, g.id)
			}
		}
	}
	delete(s.byExternal, externalKey{t.UserID, t.ExternalID})
	delete(s.txs, id)

	return nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("ListTransactions: user %d: %w", userID, domain.ErrNotFound)
	}

	var out []domain.Transaction
	for _, t := range s.txs {
		if t.UserID == userID {
			out = append(out, *copyTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetRecurringTransaction implements store.SeriesRepository.
func (s *Store) GetRecurringTransaction(ctx context.Context, id int64) (*domain.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadGroupLocked(id)
}

func (s *Store) loadGroupLocked(id int64) (*domain.RecurringTransaction, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("GetRecurringTransaction: series %d: %w", id, domain.ErrNotFound)
	}

	r := &domain.RecurringTransaction{
		ID:        g.id,
		UserID:    g.userID,
		CreatedAt: g.createdAt,
		Members:   make([]domain.Transaction, 0, len(g.members)),
	}
	for _, m := range g.members {
		r.Members = append(r.Members, *copyTx(s.txs[m]))
	}
	return r, nil
}

// ListRecurringSeries implements store.SeriesRepository.
func (s *Store) ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, g := range s.groups {
		if g.userID == userID && len(g.members) > 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	series := make([]*domain.RecurringTransaction, 0, len(ids))
	for _, id := range ids {
		r, err := s.loadGroupLocked(id)
		if err != nil {
			return nil, fmt.Errorf("ListRecurringSeries: %w", err)
		}
		series = append(series, r)
	}
	return series, nil
}

// WithinUserTx implements store.SeriesRepository. Writes made through the
// SeriesTx are undone in reverse order when fn fails.
func (s *Store) WithinUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx store.SeriesTx) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	tx := &seriesTx{s: s}
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close implements store.Repository.
func (s *Store) Close() {}

type seriesTx struct {
	s    *Store
	undo []func()
}

func (t *seriesTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	_, ok := t.s.users[userID]
	return ok, nil
}

func (t *seriesTx) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return t.s.GetTransaction(ctx, id)
}

func (t *seriesTx) CandidateMembers(ctx context.Context, userID int64, amount decimal.Decimal) ([]domain.Transaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range t.s.txs {
		if tx.UserID != userID || tx.RecurringTransactionID == nil {
			continue
		}
		if !tx.Amount.Equal(amount) {
			continue
		}
		out = append(out, *copyTx(tx))
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := *out[i].RecurringTransactionID, *out[j].RecurringTransactionID
		if gi != gj {
			return gi < gj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *seriesTx) CreateGroup(ctx context.Context, userID int64) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.users[userID]; !ok {
		return 0, fmt.Errorf("CreateGroup: user %d: %w", userID, domain.ErrNotFound)
	}

	t.s.nextGroupID++
	id := t.s.nextGroupID
	t.s.groups[id] = &group{id: id, userID: userID, createdAt: t.s.now()}
	t.undo = append(t.undo, func() { delete(t.s.groups, id) })

	return id, nil
}

func (t *seriesTx) AppendMember(ctx context.Context, groupID, transactionID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	g, ok := t.s.groups[groupID]
	if !ok {
		return fmt.Errorf("AppendMember: series %d: %w", groupID, domain.ErrNotFound)
	}
	tx, ok := t.s.txs[transactionID]
	if !ok {
		return fmt.Errorf("AppendMember: transaction %d: %w", transactionID, domain.ErrNotFound)
	}
	if tx.UserID != g.userID {
		return fmt.Errorf("AppendMember: transaction %d belongs to user %d, series %d to user %d",
			transactionID, tx.UserID, groupID, g.userID)
	}

	if tx.RecurringTransactionID != nil {
		return fmt.Errorf("AppendMember: transaction %d already in series %d: %w",
			transactionID, *tx.RecurringTransactionID, domain.ErrConflict)
	}

	gid := groupID
	tx.RecurringTransactionID = &gid
	g.members = append(g.members, transactionID)

	t.undo = append(t.undo, func() {
		tx.RecurringTransactionID = nil
		if n := len(g.members); n > 0 && g.members[n-1] == transactionID {
			g.members = g.members[:n-1]
		}
	})

	return nil
}

func (t *seriesTx) LoadGroup(ctx context.Context, groupID int64) (*domain.RecurringTransaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.loadGroupLocked(groupID)
}

// Ensure Store implements store.Repository.
var _ store.Repository = (*Store)(nil)
