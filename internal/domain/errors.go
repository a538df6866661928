// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrCompileFailed indicates the external toolchain rejected the submitted markup.
// The cause is user-correctable; diagnostics are logged, never returned to clients.
var ErrCompileFailed = errors.New("compilation failed")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation error")

// ErrCapacity indicates no render slot became available in time.
var ErrCapacity = errors.New("render capacity exhausted")
