package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errInvalidSource = errors.New("invalid source")
	errMissingPID    = errors.New("missing patient id")
	errEmptyBatch    = errors.New("empty record batch")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Validator struct {
	allowedSources map[string]struct{}
	maxBatch       int
}

// NewValidator builds a validator. An empty source list allows any source;
// maxBatch <= 0 disables the batch size limit.
func NewValidator(sources []string, maxBatch int) *Validator {
	vs := make(map[string]struct{})
	for _, src := range sources {
		if trimmed := strings.TrimSpace(strings.ToLower(src)); trimmed != "" {
			vs[trimmed] = struct{}{}
		}
	}
	return &Validator{allowedSources: vs, maxBatch: maxBatch}
}

func (v *Validator) Validate(req BatchRequest) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}

	source := strings.TrimSpace(strings.ToLower(req.Source))
	if source == "" {
		return ValidationError{reason: fmt.Errorf("source required: %w", errInvalidSource)}
	}
	if len(v.allowedSources) > 0 {
		if _, ok := v.allowedSources[source]; !ok {
			return ValidationError{reason: fmt.Errorf("source '%s' not allowed: %w", source, errInvalidSource)}
		}
	}

	if strings.TrimSpace(req.PID) == "" {
		return ValidationError{reason: errMissingPID}
	}

	if len(req.Records) == 0 {
		return ValidationError{reason: errEmptyBatch}
	}
	if v.maxBatch > 0 && len(req.Records) > v.maxBatch {
		return ValidationError{reason: fmt.Errorf("batch of %d records exceeds limit of %d", len(req.Records), v.maxBatch)}
	}

	return nil
}
