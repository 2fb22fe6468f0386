// Package logger builds the application's slog logger: text output for
// development and staging, JSON for production.
package logger
