// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 64

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// UserID is the stable identity a Credential Verifier resolves a token to.
type UserID string

func (u UserID) Valid() bool {
	return u != "" && len(u) <= MaxUserIDLen
}
