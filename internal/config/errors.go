package config

import "errors"

// ErrUnknownChannel is returned when a rate limit or provider lookup names
// a channel the configuration doesn't know about — a misconfiguration, not
// a runtime condition to recover from.
var ErrUnknownChannel = errors.New("unknown channel")
