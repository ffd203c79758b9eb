package services

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestMalformed is returned when a relay body is not a non-empty
	// sequence of messages.
	ErrRequestMalformed = errors.New("request malformed")

	// ErrUpstreamFailure covers network, API and response-shape failures of
	// the generation service.
	ErrUpstreamFailure = errors.New("upstream generation failed")

	ErrMissingAPIKey = fmt.Errorf("%w: api key is not configured", ErrUpstreamFailure)
	ErrEmptyResponse = fmt.Errorf("%w: empty response", ErrUpstreamFailure)
)
