package bilibili

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier indicates input carrying no recognizable video id.
	ErrInvalidIdentifier = errors.New("invalid video identifier")
	// ErrSigningUnavailable indicates the WBI key material could not be obtained.
	ErrSigningUnavailable = errors.New("request signing unavailable")
	// ErrNetwork indicates a transport level failure talking to the API.
	ErrNetwork = errors.New("network error")
	// ErrNoStreams indicates neither playurl endpoint produced a stream.
	ErrNoStreams = errors.New("no streams resolved")
	// ErrAPI matches every *APIError.
	ErrAPI = errors.New("api error")
)

// APIError is a non-zero code in a Bilibili response envelope
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (code: %d)", e.Message, e.Code)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}
