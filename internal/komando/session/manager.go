package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avasile/komando/internal/komando/audit"
	"github.com/avasile/komando/internal/komando/config"
	"github.com/avasile/komando/internal/komando/executor"
	"github.com/avasile/komando/internal/komando/intent"
	"github.com/avasile/komando/internal/komando/observability"
	"github.com/avasile/komando/internal/komando/registry"
	"github.com/avasile/komando/internal/komando/slot"
	"github.com/avasile/komando/internal/komando/store"
)

// SnapshotStore persists session snapshots after each transition. The manager
// stays authoritative: it never reads state back mid-session, so a snapshot
// failure degrades history, not correctness.
type SnapshotStore interface {
	SaveSession(ctx context.Context, rec store.SessionRecord) error
}

// Phraser optionally rewords clarification questions before they reach the
// user. Extraction itself is rule-based and never delegated; question
// phrasing is the only pluggable surface. Returning "" keeps the generated
// question.
type Phraser interface {
	Phrase(ctx context.Context, intentKey string, spec intent.SlotSpec, question string) string
}

// Manager owns all live sessions and drives their state machines. All methods
// are safe for concurrent use; operations on the same session are serialized
// and a losing concurrent caller gets ErrSessionBusy immediately.
type Manager struct {
	loader    *intent.Loader
	extractor *slot.Extractor
	executors *executor.Registry
	sink      audit.Sink
	cfg       *config.Provider
	snapshots SnapshotStore
	phraser   Phraser
	clock     func() time.Time
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option configures a Manager.
type Option func(*Manager)

// WithSnapshots enables write-behind session persistence.
func WithSnapshots(s SnapshotStore) Option {
	return func(m *Manager) { m.snapshots = s }
}

// WithPhraser installs a question-phrasing hook.
func WithPhraser(p Phraser) Option {
	return func(m *Manager) { m.phraser = p }
}

// WithClock fixes the reference clock, mainly for tests and relative dates.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.clock = fn }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(loader *intent.Loader, extractor *slot.Extractor, executors *executor.Registry,
	sink audit.Sink, cfg *config.Provider, opts ...Option) *Manager {
	m := &Manager{
		loader:    loader,
		extractor: extractor,
		executors: executors,
		sink:      sink,
		cfg:       cfg,
		clock:     time.Now,
		logger:    slog.Default(),
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a session for the actor's transcript and immediately runs the
// first parse. On ErrIntentNotRecognized the session remains usable: the
// caller may Parse again with revised text.
func (m *Manager) Start(ctx context.Context, actor, text string) (*View, error) {
	now := m.clock()
	s := &session{
		id:        uuid.NewString(),
		actor:     actor,
		state:     StateCollecting,
		values:    make(map[string]slot.Value),
		questions: make(map[string]string),
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	err := m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityDebug,
		Message:  "session started",
		Payload:  audit.Payload{"transcript": text},
	}, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return m.parse(ctx, s, text)
}

// Parse matches the transcript against the intent catalog and runs the slot
// extractor. Only valid from COLLECTING.
func (m *Manager) Parse(ctx context.Context, id, text string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, m.busy(ctx, s, "parse")
	}
	defer s.opMu.Unlock()
	return m.parse(ctx, s, text)
}

// FillSlot interprets rawValue as the answer to the clarification question
// for slotName. Only slots currently listed as missing may be filled.
func (m *Manager) FillSlot(ctx context.Context, id, slotName, rawValue string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, m.busy(ctx, s, "fill_slot")
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateMissingSlots {
		return m.rejectLocked(ctx, s, "fill_slot")
	}
	if !s.hasMissing(slotName) {
		err := fmt.Errorf("%w: %q is unknown or already resolved", ErrInvalidSlot, slotName)
		return m.failLocked(ctx, s, audit.SeverityError, "slot fill rejected",
			audit.Payload{"slot": slotName}, err)
	}
	spec, _ := s.hasSlot(slotName)
	intentKey := s.intentKey
	startEpoch := s.epoch
	s.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	val, amb, ferr := m.extractor.FillOne(callCtx, spec, rawValue, m.slotConfig(ctx))
	cancel()

	s.mu.Lock()
	if s.epoch != startEpoch {
		return m.supersededLocked(ctx, s, "fill_slot")
	}
	switch {
	case errors.Is(ferr, slot.ErrNoValue):
		return m.failLocked(ctx, s, audit.SeverityWarning, "slot value not recognized",
			audit.Payload{"slot": slotName, "answer": rawValue},
			fmt.Errorf("fill %q: %w", slotName, ferr))
	case ferr != nil:
		return m.failLocked(ctx, s, audit.SeverityError, "slot fill failed",
			audit.Payload{"slot": slotName, "err": ferr.Error()}, ferr)
	case amb != nil:
		question := m.phrase(ctx, intentKey, spec, disambiguationQuestion(slotName, amb.Candidates))
		aerr := &AmbiguousEntityError{Slot: slotName, Candidates: amb.Candidates}
		if err := m.commitLocked(ctx, s, audit.Entry{
			Severity: audit.SeverityWarning,
			Message:  "slot answer ambiguous",
			Payload:  audit.Payload{"slot": slotName, "candidates": len(amb.Candidates)},
		}, func() {
			s.ambiguousSet(slotName, amb.Candidates)
			s.questions[slotName] = question
		}); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		v := s.view()
		s.mu.Unlock()
		m.persist(ctx, v)
		return v, aerr
	}

	err = m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityInfo,
		Message:  "slot filled",
		Payload:  audit.Payload{"slot": slotName, "value": val.String()},
	}, func() {
		s.values[slotName] = val
		s.removeMissing(slotName)
		delete(s.questions, slotName)
		if s.ambiguous != nil {
			delete(s.ambiguous, slotName)
		}
		if len(s.missing) == 0 {
			s.state = StateReady
		}
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

// Simulate asks the intent's executor to validate the slots and produce a
// dry-run plan. Validation failures push the offending slots back into
// collection; a successful plan moves the session to AWAITING_CONFIRMATION or
// straight to CONFIRMED when the risk tier needs no confirmation.
func (m *Manager) Simulate(ctx context.Context, id string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, m.busy(ctx, s, "simulate")
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateReady {
		return m.rejectLocked(ctx, s, "simulate")
	}
	values := copyValues(s.values)
	intentKey := s.intentKey
	startEpoch := s.epoch
	s.mu.Unlock()

	exec, err := m.executors.For(intentKey)
	if err != nil {
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "no executor for intent",
			audit.Payload{"intent": intentKey}, err)
	}

	callCtx, cancel := m.callContext(ctx)
	verr := exec.ValidateSlots(callCtx, values)
	cancel()
	if ves := executor.Validation(verr); len(ves) > 0 {
		s.mu.Lock()
		if s.epoch != startEpoch {
			return m.supersededLocked(ctx, s, "simulate")
		}
		rejected := make([]string, 0, len(ves))
		for _, ve := range ves {
			if _, known := s.hasSlot(ve.Slot); known {
				rejected = append(rejected, ve.Slot)
			}
		}
		err := m.commitLocked(ctx, s, audit.Entry{
			Severity: audit.SeverityWarning,
			Message:  "slot validation failed",
			Payload:  audit.Payload{"intent": intentKey, "slots": rejected, "errors": verr.Error()},
		}, func() {
			for _, ve := range ves {
				if _, known := s.hasSlot(ve.Slot); !known {
					continue
				}
				delete(s.values, ve.Slot)
				if !s.hasMissing(ve.Slot) {
					s.missing = append(s.missing, ve.Slot)
				}
				s.questions[ve.Slot] = ve.Message
			}
			s.sortMissing()
			s.state = StateMissingSlots
		})
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		v := s.view()
		s.mu.Unlock()
		m.persist(ctx, v)
		return v, verr
	}
	if verr != nil {
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "slot validation errored",
			audit.Payload{"intent": intentKey, "err": verr.Error()}, verr)
	}

	callCtx, cancel = m.callContext(ctx)
	plan, derr := exec.DryRun(callCtx, values)
	cancel()

	s.mu.Lock()
	if s.epoch != startEpoch {
		return m.supersededLocked(ctx, s, "simulate")
	}
	if derr != nil {
		return m.failLocked(ctx, s, audit.SeverityError, "dry run failed",
			audit.Payload{"intent": intentKey, "err": derr.Error()}, derr)
	}

	next := StateConfirmed
	if m.cfg.ConfirmationRequired(ctx, s.risk) {
		next = StateAwaitingConfirmation
	}
	err = m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityInfo,
		Message:  "dry run computed",
		Payload:  audit.Payload{"intent": intentKey, "plan": plan.Description, "state": string(next)},
	}, func() {
		s.plan = &plan
		s.state = next
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

// Confirm approves the previewed plan. Only valid from AWAITING_CONFIRMATION.
func (m *Manager) Confirm(ctx context.Context, id string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, m.busy(ctx, s, "confirm")
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateAwaitingConfirmation {
		return m.rejectLocked(ctx, s, "confirm")
	}
	err = m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityInfo,
		Message:  "plan confirmed",
		Payload:  audit.Payload{"intent": s.intentKey},
	}, func() {
		s.state = StateConfirmed
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

// Execute performs the confirmed command. Transient executor failures leave
// the session CONFIRMED for a retry; fatal failures end it in FAILED.
func (m *Manager) Execute(ctx context.Context, id string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, m.busy(ctx, s, "execute")
	}
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateConfirmed {
		return m.rejectLocked(ctx, s, "execute")
	}
	values := copyValues(s.values)
	intentKey := s.intentKey
	startEpoch := s.epoch
	s.mu.Unlock()

	exec, err := m.executors.For(intentKey)
	if err != nil {
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "no executor for intent",
			audit.Payload{"intent": intentKey}, err)
	}

	callCtx, cancel := m.callContext(ctx)
	res, xerr := exec.Execute(callCtx, values)
	cancel()

	s.mu.Lock()
	if s.epoch != startEpoch {
		return m.supersededLocked(ctx, s, "execute")
	}
	if xerr != nil {
		if executor.IsTransient(xerr) || errors.Is(xerr, context.DeadlineExceeded) {
			return m.failLocked(ctx, s, audit.SeverityWarning, "execution failed, retryable",
				audit.Payload{"intent": intentKey, "err": xerr.Error()}, xerr)
		}
		ferr := m.commitLocked(ctx, s, audit.Entry{
			Severity: audit.SeverityError,
			Message:  "execution failed",
			Payload:  audit.Payload{"intent": intentKey, "err": xerr.Error()},
		}, func() {
			s.state = StateFailed
		})
		if ferr != nil {
			s.mu.Unlock()
			return nil, ferr
		}
		v := s.view()
		s.mu.Unlock()
		m.persist(ctx, v)
		return v, xerr
	}

	err = m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeveritySuccess,
		Message:  "command executed",
		Payload: audit.Payload{
			"intent":  intentKey,
			"message": res.Message,
			"created": res.CreatedRecords,
			"updated": res.UpdatedRecords,
		},
	}, func() {
		s.result = &res
		s.state = StateExecuted
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	m.loader.RecordExecution(intentKey)
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

// Abort ends the session from any non-terminal state. It never contends on
// the operation lock: an in-flight simulate or execute loses and its late
// result is discarded. Aborting an already aborted session is a no-op.
func (m *Manager) Abort(ctx context.Context, id string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateAborted {
		v := s.view()
		s.mu.Unlock()
		return v, nil
	}
	if s.state.Terminal() {
		return m.rejectLocked(ctx, s, "abort")
	}
	err = m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityWarning,
		Message:  "session aborted",
		Payload:  audit.Payload{"from_state": string(s.state)},
	}, func() {
		s.state = StateAborted
		s.epoch++
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

// Get returns a read-only snapshot of the session.
func (m *Manager) Get(id string) (*View, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Remove drops a terminal session from memory. The audit trail and any
// persisted snapshot remain.
func (m *Manager) Remove(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	terminal := s.state.Terminal()
	s.mu.Unlock()
	if !terminal {
		return fmt.Errorf("%w: session %s is not terminal", ErrPrecondition, id)
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// parse runs the matcher and extractor against text. Caller holds s.opMu.
func (m *Manager) parse(ctx context.Context, s *session, text string) (*View, error) {
	s.mu.Lock()
	if s.state != StateCollecting {
		return m.rejectLocked(ctx, s, "parse")
	}
	startEpoch := s.epoch
	s.mu.Unlock()

	cat := m.loader.Snapshot()
	matcher := intent.Matcher{Threshold: m.cfg.IntentThreshold(ctx)}
	match, merr := matcher.Match(text, cat)
	if errors.Is(merr, intent.ErrNoMatch) {
		s.mu.Lock()
		if s.epoch != startEpoch {
			return m.supersededLocked(ctx, s, "parse")
		}
		err := m.commitLocked(ctx, s, audit.Entry{
			Severity: audit.SeverityWarning,
			Message:  "intent not recognized",
			Payload:  audit.Payload{"transcript": text},
		}, func() {
			s.transcript = text
		})
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		v := s.view()
		s.mu.Unlock()
		m.persist(ctx, v)
		return v, ErrIntentNotRecognized
	}
	if merr != nil {
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "intent matching failed",
			audit.Payload{"err": merr.Error()}, merr)
	}

	def, ok := cat.Get(match.Key)
	if !ok {
		err := fmt.Errorf("session: matched intent %q missing from catalog", match.Key)
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "catalog inconsistent",
			audit.Payload{"intent": match.Key}, err)
	}
	m.loader.RecordMatch(match.Key)

	callCtx, cancel := m.callContext(ctx)
	res, eerr := m.extractor.Extract(callCtx, text, def.Slots, m.slotConfig(ctx))
	cancel()
	if eerr != nil {
		s.mu.Lock()
		return m.failLocked(ctx, s, audit.SeverityError, "slot extraction failed",
			audit.Payload{"intent": match.Key, "err": eerr.Error()}, eerr)
	}

	questions := make(map[string]string, len(res.Questions))
	for name, q := range res.Questions {
		spec, _ := def.Slot(name)
		questions[name] = m.phrase(ctx, match.Key, spec, q)
	}

	next := StateReady
	if len(res.Missing) > 0 {
		next = StateMissingSlots
	}

	s.mu.Lock()
	if s.epoch != startEpoch {
		return m.supersededLocked(ctx, s, "parse")
	}
	err := m.commitLocked(ctx, s, audit.Entry{
		Severity: audit.SeverityInfo,
		Message:  "intent matched",
		Payload: audit.Payload{
			"intent":     match.Key,
			"confidence": match.Confidence,
			"missing":    res.Missing,
			"state":      string(next),
		},
	}, func() {
		s.transcript = text
		s.intentKey = match.Key
		s.risk = def.Risk
		s.slots = append([]intent.SlotSpec(nil), def.Slots...)
		s.values = res.Values
		s.missing = res.Missing
		s.questions = questions
		s.ambiguous = nil
		for _, amb := range res.Ambiguous {
			s.ambiguousSet(amb.Slot, amb.Candidates)
		}
		s.state = next
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	v := s.view()
	s.mu.Unlock()
	m.persist(ctx, v)
	return v, nil
}

func (m *Manager) get(id string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// commitLocked appends the audit entry and, only if that succeeds, applies
// the transition. Caller holds s.mu. The state change is not considered
// complete until the entry is durably recorded, so an append failure leaves
// the session untouched.
func (m *Manager) commitLocked(ctx context.Context, s *session, e audit.Entry, apply func()) error {
	e.SessionID = s.id
	e.Actor = s.actor
	e.Timestamp = m.clock()
	if err := m.sink.Append(ctx, e); err != nil {
		return fmt.Errorf("session: audit append: %w", err)
	}
	if apply != nil {
		apply()
		s.updatedAt = m.clock()
	}
	return nil
}

// failLocked records a failed operation without changing state and returns
// the operation error alongside the current view. Caller holds s.mu; it is
// released here.
func (m *Manager) failLocked(ctx context.Context, s *session, sev audit.Severity, msg string, payload audit.Payload, opErr error) (*View, error) {
	if err := m.commitLocked(ctx, s, audit.Entry{Severity: sev, Message: msg, Payload: payload}, nil); err != nil {
		s.mu.Unlock()
		return nil, errors.Join(opErr, err)
	}
	v := s.view()
	s.mu.Unlock()
	return v, opErr
}

// rejectLocked reports an operation issued in the wrong state. Caller holds
// s.mu; it is released here.
func (m *Manager) rejectLocked(ctx context.Context, s *session, op string) (*View, error) {
	err := fmt.Errorf("%w: %s not allowed in state %s", ErrPrecondition, op, s.state)
	return m.failLocked(ctx, s, audit.SeverityError, "operation rejected",
		audit.Payload{"op": op, "state": string(s.state)}, err)
}

// supersededLocked discards a result that lost to a concurrent abort. Caller
// holds s.mu; it is released here.
func (m *Manager) supersededLocked(ctx context.Context, s *session, op string) (*View, error) {
	observability.WithSession(m.logger, s.id).Info("late result discarded", "op", op)
	return m.failLocked(ctx, s, audit.SeverityDebug, "late result discarded",
		audit.Payload{"op": op}, fmt.Errorf("%s: %w", op, ErrSuperseded))
}

// busy reports a fail-fast rejection of a concurrent operation.
func (m *Manager) busy(ctx context.Context, s *session, op string) error {
	err := m.sink.Append(ctx, audit.Entry{
		SessionID: s.id,
		Severity:  audit.SeverityWarning,
		Message:   "operation rejected, session busy",
		Payload:   audit.Payload{"op": op},
		Timestamp: m.clock(),
	})
	if err != nil {
		observability.WithSession(m.logger, s.id).Warn("audit append failed for busy rejection", "err", err)
	}
	return fmt.Errorf("%s: %w", op, ErrSessionBusy)
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.ExternalTimeout(ctx))
}

func (m *Manager) slotConfig(ctx context.Context) slot.Config {
	return slot.Config{
		FuzzyThreshold:  m.cfg.FuzzyThreshold(ctx),
		DefaultCurrency: m.cfg.DefaultCurrency(ctx),
		Now:             m.clock,
	}
}

func (m *Manager) phrase(ctx context.Context, intentKey string, spec intent.SlotSpec, question string) string {
	if m.phraser == nil {
		return question
	}
	if rephrased := m.phraser.Phrase(ctx, intentKey, spec, question); rephrased != "" {
		return rephrased
	}
	return question
}

// persist writes the snapshot behind the transition. Failures are logged and
// swallowed: the in-memory manager remains authoritative.
func (m *Manager) persist(ctx context.Context, v *View) {
	if m.snapshots == nil {
		return
	}
	doc, err := json.Marshal(v)
	if err != nil {
		observability.WithSession(m.logger, v.ID).Warn("session snapshot marshal failed", "err", err)
		return
	}
	rec := store.SessionRecord{
		ID:         v.ID,
		Actor:      v.Actor,
		State:      string(v.State),
		IntentKey:  v.IntentKey,
		Transcript: v.Transcript,
		Snapshot:   doc,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}
	if err := m.snapshots.SaveSession(ctx, rec); err != nil {
		observability.WithSession(m.logger, v.ID).Warn("session snapshot save failed", "err", err)
	}
}

func copyValues(values map[string]slot.Value) map[string]slot.Value {
	out := make(map[string]slot.Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func disambiguationQuestion(slotName string, cands []registry.Candidate) string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.DisplayName
	}
	return fmt.Sprintf("Which %s did you mean: %s?", slotName, strings.Join(names, ", "))
}
