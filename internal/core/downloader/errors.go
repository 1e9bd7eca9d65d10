package downloader

import (
	"errors"
	"fmt"

	"github.com/guiyumin/biliget/internal/core/media"
)

// ErrDownloadExhausted matches every *ExhaustedError
var ErrDownloadExhausted = errors.New("download exhausted")

// ExhaustedError reports a stream whose primary and backup URLs all failed
type ExhaustedError struct {
	Kind     media.Kind
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s stream: no URLs to try", e.Kind)
	}
	return fmt.Sprintf("%s stream: all %d URL(s) failed, last error: %v", e.Kind, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrDownloadExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// StatusError is a non-2xx answer from a media CDN
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed: status=%d", e.StatusCode)
}
