// Package logging configures structured slog output for hybridrag. Logs are
// JSON lines written to stderr, to a size-rotated file under the data
// directory, or both. The MCP stdio server must never log to stdout.
package logging
