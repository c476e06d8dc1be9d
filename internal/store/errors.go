package store

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateKey      = errors.New("already exists")
	ErrJobTerminal       = errors.New("job is in a terminal state")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidUpdate     = errors.New("invalid job update")
)
