// Package handler exposes the HTTP API: queue processing triggers,
// one-off and bulk send endpoints, template CRUD, queue observability,
// and the unseen-message digest sweep.
//
// Handlers depend on narrow consumer-defined interfaces so tests can
// substitute in-memory fakes for the postgres-backed stores.
package handler
