package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransientDevice marks a single failed command that was retried or
	// recorded bad and skipped.
	ErrTransientDevice = errors.New("transient device error")
	// ErrEndOfMedium marks an ASC 0x21 failure while crossing into the lead-out.
	ErrEndOfMedium = errors.New("end of medium")
	// ErrIrrecoverableBatch marks a batch whose retries were exhausted.
	ErrIrrecoverableBatch = errors.New("irrecoverable batch")
	// ErrPolicyAbort marks a stop caused by stop-on-error.
	ErrPolicyAbort = errors.New("stopped on error")
	// ErrUserAbort marks cooperative cancellation.
	ErrUserAbort = errors.New("aborted")
	// ErrInvariant marks an internal consistency violation.
	ErrInvariant = errors.New("invariant violation")
	// ErrConfiguration marks unusable settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrOutput marks failures writing the image or resume state.
	ErrOutput = errors.New("output error")
)

// Wrap builds an error message that includes phase context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransientDevice
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps an error to the process exit status the CLI reports.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUserAbort):
		return 130
	case errors.Is(err, ErrPolicyAbort):
		return 3
	case errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrInvariant):
		return 70
	default:
		return 1
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "dump failure"
	}
	return strings.Join(parts, ": ")
}
