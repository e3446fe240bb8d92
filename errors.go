package sshkex

import "errors"

// ErrInvalidArguments is returned if the command-line arguments are invalid.
var ErrInvalidArguments = errors.New("invalid arguments")

// ErrTotalTimeout is returned when a connection outlives its session
// timeout.
var ErrTotalTimeout = errors.New("session timeout exceeded")

// ErrReadLimitExceeded is returned from Read if the read limit is exceeded
// when the ReadLimitExceededAction is error.
var ErrReadLimitExceeded = errors.New("read limit exceeded")
