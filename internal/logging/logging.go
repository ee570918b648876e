// Package logging provides the gateway's structured-ish console logger: a
// thin wrapper over the standard library's log package with level
// prefixes.
package logging

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// Infof logs an informational message.
func Infof(format string, args ...any) {
	std.Printf("INFO  "+format, args...)
}

// Warnf logs a warning — something unexpected that the gateway recovered
// from without failing the request.
func Warnf(format string, args ...any) {
	std.Printf("WARN  "+format, args...)
}

// Errorf logs an error — an operation failed and the caller is propagating
// or swallowing it.
func Errorf(format string, args ...any) {
	std.Printf("ERROR "+format, args...)
}
