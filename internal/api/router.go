// Package api wires the HTTP handlers onto a ServeMux.
package api

import (
	"net/http"

	"github.com/dvloznov/txn-recurrence/internal/api/handlers"
	"github.com/dvloznov/txn-recurrence/internal/api/middleware"
	"github.com/dvloznov/txn-recurrence/internal/jobs"
	"github.com/dvloznov/txn-recurrence/internal/store"
	"github.com/rs/zerolog"
)

// Matcher attaches transactions to series and lists them. Implemented by
// recurrence.Matcher.
type Matcher interface {
	handlers.Attacher
	handlers.SeriesLister
}

// Services are the dependencies behind the HTTP API.
type Services struct {
	Store     store.Repository
	Ingester  handlers.Ingester
	Matcher   Matcher
	Publisher jobs.Publisher
	Jobs      jobs.JobStore
}

// NewRouter builds the API handler with the middleware chain applied.
func NewRouter(svc Services, log zerolog.Logger) http.Handler {
	usersHandler := handlers.NewUsersHandler(svc.Store, svc.Store, svc.Matcher, log)
	txHandler := handlers.NewTransactionsHandler(svc.Ingester, svc.Matcher, svc.Store, svc.Store, log)
	importsHandler := handlers.NewImportsHandler(svc.Publisher, log)
	jobsHandler := handlers.NewJobsHandler(svc.Jobs, log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /api/users", usersHandler.CreateUser)
	mux.HandleFunc("GET /api/users/{id}", usersHandler.GetUser)
	mux.HandleFunc("DELETE /api/users/{id}", usersHandler.DeleteUser)
	mux.HandleFunc("GET /api/users/{id}/recurring", usersHandler.ListRecurring)
	mux.HandleFunc("GET /api/users/{id}/recurring/export", usersHandler.ExportRecurring)
	mux.HandleFunc("GET /api/users/{id}/transactions", usersHandler.ListTransactions)
	mux.HandleFunc("POST /api/users/{id}/transactions", txHandler.IngestTransaction)

	mux.HandleFunc("GET /api/transactions/{id}", txHandler.GetTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", txHandler.DeleteTransaction)
	mux.HandleFunc("GET /api/recurring/{id}", txHandler.GetRecurring)

	mux.HandleFunc("POST /api/imports", importsHandler.EnqueueImport)
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)
}
