// Package logging provides structured logging utilities with context propagation.
//
// Loggers emit JSON in the server and text in the CLI. WithRequestID attaches the
// X-Request-ID of the current HTTP request so that every line of one insight
// request, including its retries, can be correlated.
package logging
