package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyMember     = errors.New("already member of another room")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrInvalidTransition = errors.New("event not permitted in current state")
	ErrBackpressure      = errors.New("backpressure")
	ErrConnClosed        = errors.New("connection closed")
	ErrRateLimited       = errors.New("rate limited")
)
