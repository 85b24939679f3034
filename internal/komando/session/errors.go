package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/avasile/komando/internal/komando/registry"
)

var (
	// ErrSessionNotFound reports an unknown session ID.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrIntentNotRecognized reports that no intent scored above the
	// confidence threshold. The session stays in COLLECTING; the caller may
	// resubmit revised text.
	ErrIntentNotRecognized = errors.New("session: intent not recognized")

	// ErrInvalidSlot reports a fill attempt on a slot that is unknown or
	// already resolved. This is a caller bug, not a conversational turn.
	ErrInvalidSlot = errors.New("session: invalid slot")

	// ErrSessionBusy reports that another operation on the same session is
	// in flight. The caller retries; nothing blocks.
	ErrSessionBusy = errors.New("session: busy")

	// ErrPrecondition reports an operation issued in the wrong state, such
	// as execute before confirm.
	ErrPrecondition = errors.New("session: precondition failed")

	// ErrSuperseded reports that an in-flight simulate or execute lost to a
	// concurrent abort. The late result was discarded, not applied.
	ErrSuperseded = errors.New("session: superseded by abort")
)

// AmbiguousEntityError reports that a clarification answer still matched
// several registry candidates. The session stays collecting the slot; the
// candidates drive the next disambiguation question.
type AmbiguousEntityError struct {
	Slot       string
	Candidates []registry.Candidate
}

func (e *AmbiguousEntityError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.DisplayName
	}
	return fmt.Sprintf("session: slot %q is ambiguous between %s", e.Slot, strings.Join(names, ", "))
}
