package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/txn-recurrence/internal/api/middleware"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/export"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/rs/zerolog"
)

// SeriesLister lists a user's recurring series. Implemented by recurrence.Matcher.
type SeriesLister interface {
	ListRecurringSeries(ctx context.Context, userID int64) ([]*domain.RecurringTransaction, error)
}

// TransactionLister lists a user's transactions.
type TransactionLister interface {
	ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error)
}

// UsersHandler handles user-scoped endpoints.
type UsersHandler struct {
	users  store.UserRepository
	txs    TransactionLister
	series SeriesLister
	log    zerolog.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(users store.UserRepository, txs TransactionLister, series SeriesLister, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		users:  users,
		txs:    txs,
		series: series,
		log:    log,
	}
}

// CreateUser handles POST /api/users
func (h *UsersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Username   string `json:"username"`
		ExternalID string `json:"external_id"`
	}

	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		middleware.WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	user, err := h.users.CreateUser(r.Context(), &domain.User{
		Email:      req.Email,
		Username:   strings.TrimSpace(req.Username),
		ExternalID: strings.TrimSpace(req.ExternalID),
	})
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to create user")
		return
	}

	reqLog := requestLogger(r, h.log)
	reqLog.Info().Int64("user_id", user.ID).Msg("User created")
	middleware.WriteJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{id}
func (h *UsersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to get user")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/users/{id}. Transactions and series go with the user.
func (h *UsersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if err := h.users.DeleteUserCascade(r.Context(), userID); err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to delete user")
		return
	}

	reqLog := requestLogger(r, h.log)
	reqLog.Info().Int64("user_id", userID).Msg("User deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ListRecurring handles GET /api/users/{id}/recurring
func (h *UsersHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	series, err := h.series.ListRecurringSeries(r.Context(), userID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to list recurring series")
		return
	}

	if series == nil {
		series = []*domain.RecurringTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"recurring_transactions": series,
		"count":                  len(series),
	})
}

// ExportRecurring handles GET /api/users/{id}/recurring/export and returns
// the series as an .xlsx workbook.
func (h *UsersHandler) ExportRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	series, err := h.series.ListRecurringSeries(r.Context(), userID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to list recurring series")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSeriesWorkbook(&buf, series); err != nil {
		reqLog := requestLogger(r, h.log)
		reqLog.Error().Err(err).Int64("user_id", userID).Msg("Failed to build workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export recurring series")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"recurring_%d_%s.xlsx\"",
		userID, time.Now().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ListTransactions handles GET /api/users/{id}/transactions
func (h *UsersHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	txs, err := h.txs.ListTransactions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to list transactions")
		return
	}

	// Return array directly for frontend compatibility
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, txs)
}
