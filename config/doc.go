// Package config loads the gateway configuration from config.yaml, a .env
// file and environment variables, and validates it before anything starts.
// Nested keys map to variables with dots replaced by underscores, so
// RATE_LIMIT_CAPACITY overrides rate_limit.capacity.
package config
