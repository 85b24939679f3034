// Package executor defines the contract between the interpretation core and
// the systems that actually perform commands.
//
// The core never touches business records itself: once a session's slots are
// complete it asks the executor registered for the intent to validate the
// values, produce a dry-run plan for the confirmation prompt, and finally
// execute. Executors classify their failures as transient or fatal so the
// session layer knows whether a retry makes sense.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avasile/komando/internal/komando/slot"
)

// ErrNotRegistered reports that no executor is bound to an intent key.
var ErrNotRegistered = errors.New("executor: intent not registered")

// PlanLine is one human-readable row of a dry-run plan.
type PlanLine struct {
	Label string
	Value string
}

// Plan describes what Execute would do, without doing it. It is rendered into
// the confirmation prompt and stored on the session.
type Plan struct {
	Description string
	Lines       []PlanLine
	Total       *slot.Money
	RiskNotes   []string
}

// Render flattens the plan into the text shown to the user.
func (p Plan) Render() string {
	var b strings.Builder
	b.WriteString(p.Description)
	for _, line := range p.Lines {
		b.WriteString("\n  ")
		b.WriteString(line.Label)
		b.WriteString(": ")
		b.WriteString(line.Value)
	}
	if p.Total != nil {
		b.WriteString("\n  Total: ")
		b.WriteString(p.Total.String())
	}
	for _, note := range p.RiskNotes {
		b.WriteString("\n  Note: ")
		b.WriteString(note)
	}
	return b.String()
}

// Result is the outcome of a successful execution.
type Result struct {
	Message        string
	CreatedRecords []string
	UpdatedRecords []string
}

// ValidationError rejects a single slot value. The session pushes the slot
// back into collection with the message as the clarifying question.
type ValidationError struct {
	Slot    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("executor: slot %q: %s", e.Slot, e.Message)
}

// TransientError marks a failure worth retrying with the same session: the
// command did not take effect and the confirmation remains valid.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "executor: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that invalidates the session.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "executor: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Executor performs one intent against a backing system.
//
// ValidateSlots and DryRun must not mutate any records. Execute errors should
// be wrapped in TransientError or FatalError; an unwrapped error is treated
// as fatal.
type Executor interface {
	// ValidateSlots checks business rules the extractor cannot know
	// (stock levels, credit limits). Returns a *ValidationError per bad
	// slot, joined with errors.Join when several fail.
	ValidateSlots(ctx context.Context, values map[string]slot.Value) error

	// DryRun describes the effect of executing with these values.
	DryRun(ctx context.Context, values map[string]slot.Value) (Plan, error)

	// Execute performs the command.
	Execute(ctx context.Context, values map[string]slot.Value) (Result, error)
}

// Registry binds intent keys to executors. Bindings are fixed at startup; the
// zero Registry is empty and usable.
type Registry struct {
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds key to exec, replacing any previous binding.
func (r *Registry) Register(key string, exec Executor) {
	if r.executors == nil {
		r.executors = make(map[string]Executor)
	}
	r.executors[key] = exec
}

// For returns the executor bound to key.
func (r *Registry) For(key string) (Executor, error) {
	exec, ok := r.executors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, key)
	}
	return exec, nil
}

// Keys lists the bound intent keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.executors))
	for k := range r.executors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsTransient reports whether err should leave the session retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Validation extracts the ValidationErrors from err, if any.
func Validation(err error) []*ValidationError {
	var out []*ValidationError
	collect(err, &out)
	return out
}

// collect walks wrapped and joined errors; errors.As alone would stop at the
// first ValidationError in a join.
func collect(err error, out *[]*ValidationError) {
	if err == nil {
		return
	}
	switch typed := err.(type) {
	case *ValidationError:
		*out = append(*out, typed)
	case interface{ Unwrap() []error }:
		for _, sub := range typed.Unwrap() {
			collect(sub, out)
		}
	case interface{ Unwrap() error }:
		collect(typed.Unwrap(), out)
	}
}
