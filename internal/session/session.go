// Package session holds the active conversation: ordered message log,
// session identifier, accumulated token counts and cost, and the
// single-flight guard for assistant requests.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/EchoBridge/echobridge/internal/usage"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// ErrBusy is returned when a send is attempted while a prior request's
// terminal event has not yet been observed.
var ErrBusy = errors.New("assistant is already processing a message")

// Session is one conversation. The identifier is assigned at most once
// per Session and is stable afterwards; an id change supersedes the
// Session with a fresh one that inherits the log and totals.
type Session struct {
	id           string
	startTime    time.Time
	messages     []types.Message
	totalCostUSD float64
	tokensInput  int
	tokensOutput int
	mu           sync.Mutex
}

// ID returns the session identifier ("" while unbound).
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// StartTime returns when the session was created.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Messages returns a copy of the ordered message log.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]types.Message, len(s.messages))
	copy(result, s.messages)
	return result
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Totals returns the cumulative token and cost totals.
func (s *Session) Totals() types.TokenTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.TokenTotals{
		Input:   s.tokensInput,
		Output:  s.tokensOutput,
		CostUSD: s.totalCostUSD,
	}
}

func (s *Session) append(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Manager owns the current Session and the single-flight invariant:
// exactly one assistant request may be in flight at a time.
type Manager struct {
	current *Session
	busy    bool
	ledger  *usage.Ledger
	clock   func() time.Time
	mu      sync.Mutex
}

// NewManager creates a session manager. ledger may be nil.
func NewManager(ledger *usage.Ledger) *Manager {
	return &Manager{
		ledger: ledger,
		clock:  time.Now,
	}
}

// SetClock overrides the time source (tests only).
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Current returns the current Session, or nil if absent.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Ensure returns the current Session, creating an unbound one lazily.
// Lazy creation does not count as a new session in the ledger; only
// the explicit NewSession call does.
func (m *Manager) Ensure() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked()
}

func (m *Manager) ensureLocked() *Session {
	if m.current == nil {
		m.current = &Session{startTime: m.clock()}
	}
	return m.current
}

// BeginRequest acquires the single-flight slot. It fails fast with
// ErrBusy if a prior request has not reached its terminal event,
// regardless of whether a Session exists.
func (m *Manager) BeginRequest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return ErrBusy
	}
	m.busy = true
	return nil
}

// EndRequest releases the single-flight slot. Safe to call on any
// terminal path, including spawn failures.
func (m *Manager) EndRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
}

// Busy reports whether a request is in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Append adds a message to the current session's log, creating the
// session lazily if absent.
func (m *Manager) Append(msg types.Message) {
	m.mu.Lock()
	sess := m.ensureLocked()
	m.mu.Unlock()
	sess.append(msg)
}

// AddUsage accumulates one assistant record's token delta and cost and
// returns the cumulative totals after the update.
func (m *Manager) AddUsage(inputTokens, outputTokens int, costUSD float64) types.TokenTotals {
	m.mu.Lock()
	sess := m.ensureLocked()
	m.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.tokensInput += inputTokens
	sess.tokensOutput += outputTokens
	sess.totalCostUSD += costUSD
	return types.TokenTotals{
		Input:   sess.tokensInput,
		Output:  sess.tokensOutput,
		CostUSD: sess.totalCostUSD,
	}
}

// Totals returns the current session's cumulative totals (zero if no
// session exists).
func (m *Manager) Totals() types.TokenTotals {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()

	if sess == nil {
		return types.TokenTotals{}
	}
	return sess.Totals()
}

// BindSessionID applies a session id observed on the stream. An unbound
// session is bound in place; a differing id supersedes the session with
// a fresh one inheriting the log and totals, since an id is assigned at
// most once per Session. Returns true iff the id actually changed.
func (m *Manager) BindSessionID(id string) bool {
	if id == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.ensureLocked()

	sess.mu.Lock()
	if sess.id == id {
		sess.mu.Unlock()
		return false
	}
	if sess.id == "" {
		sess.id = id
		sess.mu.Unlock()
		return true
	}

	// Bound to a different id: supersede, carrying log and totals so
	// cumulative reporting stays monotonic across the change.
	replacement := &Session{
		id:           id,
		startTime:    sess.startTime,
		messages:     append([]types.Message(nil), sess.messages...),
		totalCostUSD: sess.totalCostUSD,
		tokensInput:  sess.tokensInput,
		tokensOutput: sess.tokensOutput,
	}
	sess.mu.Unlock()

	m.current = replacement
	return true
}

// NewSession discards the current session and starts a fresh unbound
// one. The ledger's session counter for today is incremented here, at
// creation, not at first message.
func (m *Manager) NewSession() *Session {
	m.mu.Lock()
	now := m.clock()
	m.current = &Session{startTime: now}
	sess := m.current
	ledger := m.ledger
	m.mu.Unlock()

	if ledger != nil {
		ledger.RecordSession(now)
	}
	return sess
}

// Restore replaces the current session with one rebuilt from a saved
// transcript. Restored sessions do not count as new in the ledger; an
// empty id restores without a resume token.
func (m *Manager) Restore(id string, messages []types.Message, startTime time.Time, totals types.TokenTotals) *Session {
	sess := &Session{
		id:           id,
		startTime:    startTime,
		messages:     append([]types.Message(nil), messages...),
		totalCostUSD: totals.CostUSD,
		tokensInput:  totals.Input,
		tokensOutput: totals.Output,
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return sess
}

// ResumeToken returns the bound session id to pass to --resume, or ""
// when the session is absent or unbound.
func (m *Manager) ResumeToken() string {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()

	if sess == nil {
		return ""
	}
	return sess.ID()
}
