// Package faults defines the failure taxonomy shared by the analysis pipeline.
package faults

import "errors"

var (
	// ErrInferenceUnavailable is returned when the model provider call fails
	// (network, quota, auth, timeout, empty candidate list).
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrExtractionFailed is returned when a model response is not the
	// structured data the caller asked for.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrInvalidRequest marks caller errors that are surfaced with a
	// client-error status.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternalFault marks unexpected failures during orchestration or merge.
	ErrInternalFault = errors.New("internal fault")
)

// Kind labels used in logs and metrics.
const (
	KindInferenceUnavailable = "inference_unavailable"
	KindExtractionFailed     = "extraction_failed"
	KindInvalidRequest       = "invalid_request"
	KindInternal             = "internal"
)

// Kind classifies err into one of the Kind* labels. Unknown errors are
// reported as internal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInferenceUnavailable):
		return KindInferenceUnavailable
	case errors.Is(err, ErrExtractionFailed):
		return KindExtractionFailed
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}
