package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrTransient        = errors.New("transient provider error")
	ErrTimeout          = errors.New("timeout")
	ErrProviderRejected = errors.New("provider rejected")
	ErrMediaProcessing  = errors.New("media processing error")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
)

// Kind labels reported on failed jobs so callers can classify a failure
// without parsing the free-text message.
const (
	KindConfiguration   = "configuration-error"
	KindTransient       = "transient-provider-error"
	KindProviderReject  = "provider-rejected"
	KindMediaProcessing = "media-processing-error"
	KindNotFound        = "not-found"
	KindValidation      = "validation-error"
	KindInternal        = "internal-error"
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error onto the failure taxonomy. Timeouts are transient.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrProviderRejected):
		return KindProviderReject
	case errors.Is(err, ErrMediaProcessing):
		return KindMediaProcessing
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// FailureMessage renders err as the user-visible message of a failed job:
// the taxonomy label followed by the error text. It never returns an empty
// string for a non-nil error.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	text := strings.TrimSpace(err.Error())
	for _, marker := range markers {
		if errors.Is(err, marker) {
			text = strings.TrimPrefix(text, marker.Error()+": ")
			break
		}
	}
	if text == "" {
		text = "unknown failure"
	}
	return KindOf(err) + ": " + text
}

// markers in KindOf precedence order.
var markers = []error{ErrConfiguration, ErrProviderRejected, ErrMediaProcessing, ErrNotFound, ErrValidation, ErrTimeout, ErrTransient}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
