// Package observability provides structured logging and in-process outcome
// metrics for the try-on gateway.
//
// Loggers are zap based. Metrics count try-on outcomes per vendor and failure
// stage and are exposed read-only through the status API.
package observability
