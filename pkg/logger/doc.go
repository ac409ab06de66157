// Package logger provides slog-based structured logging for the
// mailroom service.
//
// Loggers emit JSON to stdout. Context extractors inject
// request-scoped attributes (request IDs) into every record, and an
// optional Sentry handler forwards warnings and errors to Sentry.
package logger
