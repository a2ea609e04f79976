package core

import "errors"

var (
	// ErrBackpressure means the connection's outbound queue is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrConnClosed means the connection is already torn down.
	ErrConnClosed = errors.New("connection closed")
)
