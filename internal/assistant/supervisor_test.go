package assistant

import (
	"strings"
	"testing"
	"time"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/protocol"
	"github.com/EchoBridge/echobridge/internal/session"
	"github.com/EchoBridge/echobridge/internal/usage"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// recorder captures notifier callbacks.
type recorder struct {
	messages   []types.Message
	processing []bool
	sessions   []string
	totals     []types.TokenTotals
}

func (r *recorder) MessageAppended(msg types.Message) { r.messages = append(r.messages, msg) }
func (r *recorder) ProcessingChanged(busy bool)       { r.processing = append(r.processing, busy) }
func (r *recorder) SessionChanged(id string)          { r.sessions = append(r.sessions, id) }
func (r *recorder) TokensUpdated(t types.TokenTotals) { r.totals = append(r.totals, t) }

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()

	cfg := config.AssistantConfig{
		Command: "definitely-not-installed-assistant",
		Pricing: map[string]config.ModelPricing{
			"test-model": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
		},
	}

	rec := &recorder{}
	log := logger.New(&logger.Config{Level: "error"})
	mgr := session.NewManager(usage.NewLedger(nil, 90))
	svc := NewService(cfg, mgr, usage.NewLedger(nil, 90), rec, log)
	svc.SetClock(func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) })
	return svc, rec
}

func TestBuildArgsWithoutSession(t *testing.T) {
	svc, _ := newTestService(t)

	args := svc.buildArgs()
	want := []string{"-p", "--output-format", "stream-json", "--verbose", "--dangerously-skip-permissions"}

	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}
}

func TestBuildArgsWithBoundSession(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Sessions().BindSessionID("sess-42")

	args := svc.buildArgs()
	joined := strings.Join(args, " ")
	if !strings.HasSuffix(joined, "--resume sess-42") {
		t.Errorf("expected --resume with the bound id, got %v", args)
	}
}

func TestBuildArgsUnboundSessionOmitsResume(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Sessions().Ensure()

	for _, arg := range svc.buildArgs() {
		if arg == "--resume" {
			t.Error("unbound session must not pass --resume")
		}
	}
}

func TestUsageEventAccumulates(t *testing.T) {
	svc, rec := newTestService(t)

	svc.Usage("test-model", 100, 50, 0.001)
	svc.Usage("test-model", 200, 100, 0.002)

	totals := svc.Sessions().Totals()
	if totals.Input != 300 || totals.Output != 150 {
		t.Errorf("expected 300/150, got %d/%d", totals.Input, totals.Output)
	}

	if len(rec.totals) != 2 {
		t.Fatalf("expected 2 token updates, got %d", len(rec.totals))
	}
	if rec.totals[1].Input != 300 {
		t.Errorf("updates must carry cumulative totals, got %d", rec.totals[1].Input)
	}
}

func TestResultBindsSessionOnce(t *testing.T) {
	svc, rec := newTestService(t)

	svc.Result(protocol.Result{SessionID: "sess-1"})
	svc.Result(protocol.Result{SessionID: "sess-1"})

	if len(rec.sessions) != 1 {
		t.Errorf("session change should fire once per actual change, got %d", len(rec.sessions))
	}

	svc.Result(protocol.Result{SessionID: "sess-2"})
	if len(rec.sessions) != 2 {
		t.Errorf("a different id should fire again, got %d", len(rec.sessions))
	}
}

func TestResultDoesNotDoubleCountCost(t *testing.T) {
	svc, _ := newTestService(t)

	svc.Usage("test-model", 100, 50, 0.001)
	svc.Result(protocol.Result{SessionID: "s", TotalCostUSD: 99.0})

	totals := svc.Sessions().Totals()
	if diff := totals.CostUSD - 0.001; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("result record must not add its cost on top, got %f", totals.CostUSD)
	}
}

func TestAuthFailureAppendsError(t *testing.T) {
	svc, rec := newTestService(t)

	svc.AuthFailure(protocol.AuthFailureMessage)

	if len(rec.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.messages))
	}
	if rec.messages[0].Kind != types.KindError {
		t.Errorf("auth failure should surface as an error message")
	}
}

func TestSendMessageMissingBinary(t *testing.T) {
	svc, rec := newTestService(t)

	if err := svc.SendMessage("hello"); err != nil {
		t.Fatalf("a missing binary is reported in-band, not as an error: %v", err)
	}

	// User message plus the install-instructions error.
	if len(rec.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rec.messages))
	}
	if rec.messages[0].Kind != types.KindUser {
		t.Errorf("first message should be the user's")
	}
	if rec.messages[1].Kind != types.KindError {
		t.Errorf("second message should be the install error")
	}
	if !strings.Contains(rec.messages[1].Content, "not found") {
		t.Errorf("unexpected error content: %q", rec.messages[1].Content)
	}

	// The single-flight slot is released on the failure path.
	if svc.Busy() {
		t.Error("busy flag must clear after a spawn failure")
	}
	if len(rec.processing) != 2 || rec.processing[0] != true || rec.processing[1] != false {
		t.Errorf("expected processing true/false, got %v", rec.processing)
	}
}

func TestSendMessageBusyRejected(t *testing.T) {
	svc, _ := newTestService(t)

	svc.Sessions().BeginRequest()
	defer svc.Sessions().EndRequest()

	if err := svc.SendMessage("hello"); err != session.ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	// The rejected request leaves no trace in the log.
	if sess := svc.Sessions().Current(); sess != nil && sess.Len() != 0 {
		t.Error("rejected request must not append a message")
	}
}

func TestStopWithoutProcess(t *testing.T) {
	svc, rec := newTestService(t)

	svc.Stop()

	if len(rec.messages) != 0 {
		t.Error("stop with nothing running is a no-op")
	}
}

func TestNewSessionNotifies(t *testing.T) {
	svc, rec := newTestService(t)
	svc.Sessions().BindSessionID("old")

	svc.NewSession()

	if len(rec.sessions) == 0 || rec.sessions[len(rec.sessions)-1] != "" {
		t.Error("new session should notify with an empty id")
	}
	if len(rec.totals) == 0 || rec.totals[len(rec.totals)-1] != (types.TokenTotals{}) {
		t.Error("new session should reset published totals")
	}
}
