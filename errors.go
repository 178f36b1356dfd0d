package domainsplit

import (
	"errors"
)

var (
	ErrInvalidAddress   = errors.New("invalid_address")
	ErrInvalidCaller    = errors.New("invalid_caller")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrExpiredSignature = errors.New("expired_signature")
	ErrReplayedRequest  = errors.New("replayed_request")
)
