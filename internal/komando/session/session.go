// Package session owns the lifecycle of a command session: it sequences
// intent matching, slot collection, dry-run simulation, risk-gated
// confirmation, and execution across conversational turns, and records every
// transition in the audit trail.
package session

import (
	"sync"
	"time"

	"github.com/avasile/komando/internal/komando/executor"
	"github.com/avasile/komando/internal/komando/intent"
	"github.com/avasile/komando/internal/komando/registry"
	"github.com/avasile/komando/internal/komando/slot"
)

// State is a session lifecycle state.
type State string

const (
	StateCollecting           State = "collecting"
	StateMissingSlots         State = "missing_slots"
	StateReady                State = "ready"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateExecuted             State = "executed"
	StateFailed               State = "failed"
	StateAborted              State = "aborted"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateFailed || s == StateAborted
}

// session is the manager-internal mutable record. All fields except the two
// mutexes are guarded by mu; opMu serializes state-mutating operations and is
// acquired with TryLock so a second caller fails fast instead of queueing.
type session struct {
	// opMu is held for the full duration of parse, fillSlot, simulate,
	// confirm, and execute. Abort deliberately skips it.
	opMu sync.Mutex

	mu         sync.Mutex
	id         string
	actor      string
	transcript string
	intentKey  string
	risk       intent.RiskLevel
	slots      []intent.SlotSpec
	values     map[string]slot.Value
	missing    []string
	questions  map[string]string
	ambiguous  map[string][]registry.Candidate
	state      State
	plan       *executor.Plan
	result     *executor.Result
	createdAt  time.Time
	updatedAt  time.Time

	// epoch is bumped by abort; an in-flight simulate/execute compares the
	// epoch it started with and discards its result on mismatch.
	epoch uint64
}

// View is an immutable caller-facing snapshot of a session.
type View struct {
	ID         string
	Actor      string
	Transcript string
	IntentKey  string
	Risk       intent.RiskLevel
	State      State
	Values     map[string]slot.Value
	Missing    []string
	Questions  map[string]string
	Ambiguous  map[string][]registry.Candidate
	Plan       *executor.Plan
	Result     *executor.Result
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NextQuestion returns the clarification question for the first still-missing
// slot, or "" when nothing is missing.
func (v *View) NextQuestion() string {
	if len(v.Missing) == 0 {
		return ""
	}
	return v.Questions[v.Missing[0]]
}

// view builds a snapshot. Caller must hold s.mu.
func (s *session) view() *View {
	v := &View{
		ID:         s.id,
		Actor:      s.actor,
		Transcript: s.transcript,
		IntentKey:  s.intentKey,
		Risk:       s.risk,
		State:      s.state,
		Values:     make(map[string]slot.Value, len(s.values)),
		Missing:    append([]string(nil), s.missing...),
		Questions:  make(map[string]string, len(s.questions)),
		Plan:       s.plan,
		Result:     s.result,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	for k, val := range s.values {
		v.Values[k] = val
	}
	for k, q := range s.questions {
		v.Questions[k] = q
	}
	if len(s.ambiguous) > 0 {
		v.Ambiguous = make(map[string][]registry.Candidate, len(s.ambiguous))
		for k, cands := range s.ambiguous {
			v.Ambiguous[k] = append([]registry.Candidate(nil), cands...)
		}
	}
	return v
}

// removeMissing drops name from the missing list. Caller must hold s.mu.
func (s *session) removeMissing(name string) {
	for i, n := range s.missing {
		if n == name {
			s.missing = append(s.missing[:i], s.missing[i+1:]...)
			return
		}
	}
}

// hasMissing reports whether name is still unresolved. Caller must hold s.mu.
func (s *session) hasMissing(name string) bool {
	for _, n := range s.missing {
		if n == name {
			return true
		}
	}
	return false
}

// hasSlot returns the schema spec for name. Caller must hold s.mu.
func (s *session) hasSlot(name string) (intent.SlotSpec, bool) {
	for _, sp := range s.slots {
		if sp.Name == name {
			return sp, true
		}
	}
	return intent.SlotSpec{}, false
}

// ambiguousSet records the candidate list for a slot. Caller must hold s.mu.
func (s *session) ambiguousSet(name string, cands []registry.Candidate) {
	if s.ambiguous == nil {
		s.ambiguous = make(map[string][]registry.Candidate)
	}
	s.ambiguous[name] = cands
}

// sortMissing restores schema declaration order after slots are pushed back
// by executor validation. Caller must hold s.mu.
func (s *session) sortMissing() {
	ordered := make([]string, 0, len(s.missing))
	for _, spec := range s.slots {
		if s.hasMissing(spec.Name) {
			ordered = append(ordered, spec.Name)
		}
	}
	s.missing = ordered
}
