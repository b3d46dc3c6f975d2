// Package logging configures structured logging for the service.
//
// All components log through log/slog with snake_case attribute keys.
// Output is JSON when writing to a file or a non-terminal stderr, and
// human-readable text when attached to a TTY.
package logging
