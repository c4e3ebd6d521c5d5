// Package recurrence groups a user's transactions into recurring series by
// description similarity and exact amount.
package recurrence

import (
	"context"
	"fmt"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// SimilarityThreshold is the exclusive upper bound on the edit distance
// between two descriptions of the same series.
const SimilarityThreshold = 10

// editOptions counts insertions, deletions and substitutions as one edit each.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// SeriesStore is the subset of store.Repository the matcher needs.
type SeriesStore interface {
	ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error)
	WithinUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx store.SeriesTx) error) error
}

// Matcher attaches transactions to recurring series.
type Matcher struct {
	store SeriesStore
}

// NewMatcher creates a matcher backed by store.
func NewMatcher(store SeriesStore) *Matcher {
	return &Matcher{store: store}
}

// Attach adds tx to the first series of its user that already holds a member
// with the same amount and a description within SimilarityThreshold edits,
// preferring the lowest series id. Without a match a new series is created.
// A transaction that already belongs to a series is returned with that
// series unchanged.
func (m *Matcher) Attach(ctx context.Context, tx *domain.Transaction) (*domain.RecurringTransaction, error) {
	log := logger.FromContext(ctx)

	var result *domain.RecurringTransaction
	err := m.store.WithinUserTx(ctx, tx.UserID, func(ctx context.Context, stx store.SeriesTx) error {
		ok, err := stx.UserExists(ctx, tx.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d: %w", tx.UserID, domain.ErrNotFound)
		}

		current, err := stx.GetTransaction(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.UserID != tx.UserID {
			return fmt.Errorf("transaction %d for user %d: %w", tx.ID, tx.UserID, domain.ErrNotFound)
		}
		if current.InSeries() {
			result, err = stx.LoadGroup(ctx, *current.RecurringTransactionID)
			return err
		}

		candidates, err := stx.CandidateMembers(ctx, current.UserID, current.Amount)
		if err != nil {
			return err
		}

		groupID, found := findSimilarGroup(candidates, current.Description)
		if !found {
			groupID, err = stx.CreateGroup(ctx, current.UserID)
			if err != nil {
				return err
			}
			log.Debug().Int64("user_id", current.UserID).Int64("series_id", groupID).
				Msg("created recurring series")
		}

		if err := stx.AppendMember(ctx, groupID, current.ID); err != nil {
			return err
		}

		result, err = stx.LoadGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Attach: transaction %d: %w", tx.ID, err)
	}

	if result.ID != 0 {
		id := result.ID
		tx.RecurringTransactionID = &id
	}
	return result, nil
}

// findSimilarGroup returns the series of the first candidate whose description
// is similar to description. Candidates arrive ordered by series id, so the
// lowest matching series wins.
func findSimilarGroup(candidates []domain.Transaction, description string) (int64, bool) {
	target := []rune(description)
	for _, c := range candidates {
		if c.RecurringTransactionID == nil {
			continue
		}
		if Similar([]rune(c.Description), target) {
			return *c.RecurringTransactionID, true
		}
	}
	return 0, false
}

// Similar reports whether two descriptions are within SimilarityThreshold
// edits of each other. The comparison is case-sensitive.
func Similar(a, b []rune) bool {
	return levenshtein.DistanceForStrings(a, b, editOptions) < SimilarityThreshold
}

// ListRecurringSeries returns the user's series that have more than one
// member, ordered by series id. An unknown user has no series.
func (m *Matcher) ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error) {
	all, err := m.store.ListRecurringSeries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListRecurringSeries: user %d: %w", userID, err)
	}

	series := make([]*domain.RecurringTransaction, 0, len(all))
	for _, r := range all {
		if r.IsRecurring() {
			series = append(series, r)
		}
	}
	return series, nil
}
