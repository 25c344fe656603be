package predictor

import (
	"errors"
	"fmt"
	"strings"
)

// ArtifactLoadError means the classifier or encoder artifact is missing or
// unreadable. The predictor cannot serve until the artifact is fixed.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// UnencodableInputError means a categorical value has no code in the fitted
// encoder, or the field has no encoder under strict encoding.
type UnencodableInputError struct {
	Field string
	Value string
	Known []string
	Err   error
}

func (e *UnencodableInputError) Error() string {
	if len(e.Known) > 0 {
		return fmt.Sprintf("cannot encode %s=%q (expected one of %s)", e.Field, e.Value, strings.Join(e.Known, ", "))
	}
	return fmt.Sprintf("cannot encode %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *UnencodableInputError) Unwrap() error { return e.Err }

// PredictionInvocationError means the classifier failed on a well-formed vector.
type PredictionInvocationError struct {
	Err error
}

func (e *PredictionInvocationError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionInvocationError) Unwrap() error { return e.Err }

// ValidationError means a numeric field is outside its domain.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrorKind names the error category of err for logs, metrics and HTTP
// status mapping. Unknown errors are "internal".
func ErrorKind(err error) string {
	var (
		loadErr       *ArtifactLoadError
		unencodable   *UnencodableInputError
		invocationErr *PredictionInvocationError
		validationErr *ValidationError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &unencodable):
		return "unencodable"
	case errors.As(err, &invocationErr):
		return "invocation"
	case errors.As(err, &loadErr), errors.Is(err, ErrNotLoaded):
		return "artifact"
	}
	return "internal"
}
