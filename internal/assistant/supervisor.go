// Package assistant spawns the local assistant CLI, feeds it one prompt
// per invocation, and turns its stream output into session state,
// usage accounting, and notifications.
package assistant

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/protocol"
	"github.com/EchoBridge/echobridge/internal/session"
	"github.com/EchoBridge/echobridge/internal/usage"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// killGrace is how long a stopped process gets to exit after SIGTERM
// before it is killed.
const killGrace = 2 * time.Second

// stoppedMessage is appended when the user aborts an in-flight request.
const stoppedMessage = "⏹️ Request stopped by user"

// Notifier receives state-change callbacks from the assistant engine.
// Callbacks arrive from the engine's goroutine; implementations must
// not block.
type Notifier interface {
	MessageAppended(msg types.Message)
	ProcessingChanged(busy bool)
	SessionChanged(sessionID string)
	TokensUpdated(totals types.TokenTotals)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) MessageAppended(types.Message)   {}
func (NopNotifier) ProcessingChanged(bool)          {}
func (NopNotifier) SessionChanged(string)           {}
func (NopNotifier) TokensUpdated(types.TokenTotals) {}

// Service owns the assistant subprocess lifecycle: one process per
// request, single-flight enforced through the session manager.
type Service struct {
	cfg      config.AssistantConfig
	sessions *session.Manager
	ledger   *usage.Ledger
	pricing  *protocol.PriceTable
	notifier Notifier
	log      *logger.Logger
	clock    func() time.Time

	decodeFailureHook func()

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewService creates the assistant engine. ledger may be nil; notifier
// may be nil (replaced with NopNotifier).
func NewService(cfg config.AssistantConfig, sessions *session.Manager, ledger *usage.Ledger, notifier Notifier, log *logger.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		ledger:   ledger,
		pricing:  protocol.NewPriceTable(cfg.Pricing),
		notifier: notifier,
		log:      log.WithComponent("assistant"),
		clock:    time.Now,
	}
}

// SetClock overrides the time source (tests only).
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SetDecodeFailureHook installs a callback invoked once per malformed
// stream line the decoder drops. Set before the first SendMessage.
func (s *Service) SetDecodeFailureHook(fn func()) {
	s.decodeFailureHook = fn
}

// Sessions returns the session manager the engine mutates.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Busy reports whether a request is in flight.
func (s *Service) Busy() bool {
	return s.sessions.Busy()
}

// SendMessage runs one request: appends the user's message, spawns the
// CLI, streams its output into the session, and returns once the
// process has terminated. A concurrent call fails fast with
// session.ErrBusy without side effects.
func (s *Service) SendMessage(text string) error {
	if err := s.sessions.BeginRequest(); err != nil {
		return err
	}

	s.appendMessage(types.Message{
		Kind:      types.KindUser,
		Content:   text,
		Timestamp: s.clock(),
	})
	s.notifier.ProcessingChanged(true)

	defer func() {
		s.sessions.EndRequest()
		s.notifier.ProcessingChanged(false)
	}()

	return s.run(text)
}

// buildArgs constructs the CLI invocation. --resume is passed only when
// the current session is bound to an id.
func (s *Service) buildArgs() []string {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if id := s.sessions.ResumeToken(); id != "" {
		args = append(args, "--resume", id)
	}
	return args
}

func (s *Service) run(prompt string) error {
	args := s.buildArgs()
	s.log.Debug("spawning %s %s", s.cfg.Command, strings.Join(args, " "))

	cmd := exec.Command(s.cfg.Command, args...)
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	cmd.Env = append(os.Environ(), "FORCE_COLOR=0", "NO_COLOR=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			s.appendMessage(types.Message{
				Kind:      types.KindError,
				Content:   fmt.Sprintf("❌ Assistant command %q not found. Install the assistant CLI and make sure it is on your PATH, then try again.", s.cfg.Command),
				Timestamp: s.clock(),
			})
			return nil
		}
		s.appendMessage(types.Message{
			Kind:      types.KindError,
			Content:   fmt.Sprintf("❌ Error running assistant: %v", err),
			Timestamp: s.clock(),
		})
		return nil
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	// One-shot prompt: write and close so the CLI sees EOF.
	if _, err := io.WriteString(stdin, prompt); err != nil {
		s.log.Warn("failed to write prompt to assistant stdin: %v", err)
	}
	stdin.Close()

	decoder := protocol.NewDecoder(s, s.pricing, s.log)
	if s.decodeFailureHook != nil {
		decoder.SetFailureHook(s.decodeFailureHook)
	}
	if _, err := io.Copy(decoder, stdout); err != nil {
		s.log.Warn("stream read ended: %v", err)
	}
	decoder.Close()

	waitErr := cmd.Wait()

	s.mu.Lock()
	stopped := s.cmd == nil
	s.cmd = nil
	s.mu.Unlock()

	if waitErr != nil && !stopped {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			s.appendMessage(types.Message{
				Kind:      types.KindError,
				Content:   fmt.Sprintf("❌ Assistant exited with an error: %s", detail),
				Timestamp: s.clock(),
			})
		} else {
			s.log.Warn("assistant exited: %v", waitErr)
		}
	}

	return nil
}

// Stop aborts the in-flight request: SIGTERM, then SIGKILL after a
// grace period. A no-op when nothing is running.
func (s *Service) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	s.log.Info("⏹️ stopping assistant process %d", cmd.Process.Pid)
	cmd.Process.Signal(syscall.SIGTERM)

	proc := cmd.Process
	go func() {
		time.Sleep(killGrace)
		// Kill is a no-op error if the process already exited.
		proc.Kill()
	}()

	s.appendMessage(types.Message{
		Kind:      types.KindSystem,
		Content:   stoppedMessage,
		Timestamp: s.clock(),
	})
}

// NewSession discards the current session and starts a fresh one.
func (s *Service) NewSession() {
	sess := s.sessions.NewSession()
	s.notifier.SessionChanged(sess.ID())
	s.notifier.TokensUpdated(types.TokenTotals{})
}

func (s *Service) appendMessage(msg types.Message) {
	s.sessions.Append(msg)
	s.notifier.MessageAppended(msg)
}

// Message implements protocol.Events.
func (s *Service) Message(msg types.Message) {
	s.appendMessage(msg)
}

// Usage implements protocol.Events: accumulate on the session, account
// in the ledger, and publish the new cumulative totals.
func (s *Service) Usage(model string, inputTokens, outputTokens int, costUSD float64) {
	totals := s.sessions.AddUsage(inputTokens, outputTokens, costUSD)
	if s.ledger != nil {
		if err := s.ledger.RecordRequest(s.clock(), inputTokens, outputTokens, costUSD); err != nil {
			s.log.Warn("failed to persist usage: %v", err)
		}
	}
	s.notifier.TokensUpdated(totals)
}

// Result implements protocol.Events: bind the session id (once per
// session) and republish totals. The record's own cost is not added on
// top of the per-record accumulation.
func (s *Service) Result(res protocol.Result) {
	if s.sessions.BindSessionID(res.SessionID) {
		s.log.Info("💬 session %s", res.SessionID)
		s.notifier.SessionChanged(res.SessionID)
	}
	s.notifier.TokensUpdated(s.sessions.Totals())
}

// AuthFailure implements protocol.Events.
func (s *Service) AuthFailure(detail string) {
	s.appendMessage(types.Message{
		Kind:      types.KindError,
		Content:   detail,
		Timestamp: s.clock(),
	})
}
