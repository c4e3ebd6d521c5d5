package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/dvloznov/txn-recurrence/internal/api/middleware"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/dvloznov/txn-recurrence/internal/logger"
	"github.com/rs/zerolog"
)

// Ingester stores a feed record for a user. Implemented by ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, rec feed.Record, userID int64) (*domain.Transaction, bool, error)
}

// Attacher places a transaction into a recurring series. Implemented by recurrence.Matcher.
type Attacher interface {
	Attach(ctx context.Context, tx *domain.Transaction) (*domain.RecurringTransaction, error)
}

// TransactionReader reads and removes single transactions.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
}

// SeriesReader reads a recurring series by id.
type SeriesReader interface {
	GetRecurringTransaction(ctx context.Context, id int64) (*domain.RecurringTransaction, error)
}

// TransactionsHandler handles transaction and series endpoints.
type TransactionsHandler struct {
	ingester Ingester
	attacher Attacher
	txs      TransactionReader
	series   SeriesReader
	log      zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(ingester Ingester, attacher Attacher, txs TransactionReader, series SeriesReader, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		ingester: ingester,
		attacher: attacher,
		txs:      txs,
		series:   series,
		log:      log,
	}
}

// IngestTransaction handles POST /api/users/{id}/transactions. The body is a
// single feed record. Replaying a record answers 200 with the stored
// transaction instead of 201.
func (h *TransactionsHandler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := feed.DecodeRecord(body)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to decode record")
		return
	}

	ctx := logger.WithUser(r.Context(), userID)

	tx, created, err := h.ingester.Ingest(ctx, rec, userID)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to ingest transaction")
		return
	}

	series, err := h.attacher.Attach(ctx, tx)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to attach transaction")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, map[string]interface{}{
		"transaction":           tx,
		"recurring_transaction": series,
		"created":               created,
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	tx, err := h.txs.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := h.txs.DeleteTransaction(r.Context(), id); err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRecurring handles GET /api/recurring/{id}. Single-member series are
// returned too.
func (h *TransactionsHandler) GetRecurring(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid recurring transaction id")
		return
	}

	series, err := h.series.GetRecurringTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, requestLogger(r, h.log), err, "Failed to get recurring transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, series)
}
