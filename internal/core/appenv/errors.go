// Package appenv reads and checks the per-profile application settings file
// (.env.dev, .env.prod) that the launched application expects to find.
//
// Parse and FromMap are pure; Load is the only function that touches the
// filesystem.
package appenv

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEnvFileNotFound = errors.New("env file not found")
	ErrMissingKeys     = errors.New("required settings missing")
	ErrInvalidValue    = errors.New("invalid setting value")
)

// MissingKeysError lists every required key absent from an env file.
type MissingKeysError struct {
	File string
	Keys []string
}

func (e *MissingKeysError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", ErrMissingKeys.Error(), strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("%s: %s: %s", e.File, ErrMissingKeys.Error(), strings.Join(e.Keys, ", "))
}

func (e *MissingKeysError) Unwrap() error {
	return ErrMissingKeys
}

// InvalidValueError reports a key whose value does not parse.
type InvalidValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}
