package workflow

import (
	"errors"
	"fmt"
)

// Workflow errors.
var (
	// ErrNoWorkflowStep indicates the chat points past the service's last step.
	ErrNoWorkflowStep = errors.New("workflow: no workflow step")
	// ErrInsufficientCredits indicates the owner cannot afford the step. See InsufficientCreditsError.
	ErrInsufficientCredits = errors.New("workflow: insufficient credits")
	// ErrChargeFailed indicates content was generated but the deduction failed.
	ErrChargeFailed = errors.New("workflow: charge failed after generation")
	// ErrChatNotFound indicates the chat does not exist.
	ErrChatNotFound = errors.New("workflow: chat not found")
	// ErrChatNotActive indicates the chat is not in a state that accepts the operation.
	ErrChatNotActive = errors.New("workflow: chat not active")
	// ErrChatBusy indicates another step is executing for the chat.
	ErrChatBusy = errors.New("workflow: chat busy")
	// ErrProviderUnavailable indicates no generator is registered for the step's provider.
	ErrProviderUnavailable = errors.New("workflow: provider unavailable")
	// ErrServiceUnavailable indicates the service is inactive or has no steps.
	ErrServiceUnavailable = errors.New("workflow: service unavailable")
)

// InsufficientCreditsError carries the required and available amounts.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("workflow: insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Is matches ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
