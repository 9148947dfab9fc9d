package router

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/platform"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// fakeAdapter is a scriptable platform.Adapter.
type fakeAdapter struct {
	name      string
	available bool
	initErr   error
	sendErr   error

	sent       []string
	statuses   []string
	inputCalls int32
	inputRes   types.InputResult
	cleanups   int32
}

func (f *fakeAdapter) Name() string                       { return f.name }
func (f *fakeAdapter) SetHandler(platform.InboundHandler) {}
func (f *fakeAdapter) Initialize() error                  { return f.initErr }
func (f *fakeAdapter) IsAvailable() bool                  { return f.available }

func (f *fakeAdapter) SendMessage(content string, urgent bool) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeAdapter) SendStatusUpdate(status, details string, progress int) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeAdapter) RequestInput(prompt string, timeout time.Duration) (types.InputResult, error) {
	atomic.AddInt32(&f.inputCalls, 1)
	return f.inputRes, nil
}

func (f *fakeAdapter) Cleanup() error {
	atomic.AddInt32(&f.cleanups, 1)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error"})
}

func TestInitializeIsolatesFailures(t *testing.T) {
	good := &fakeAdapter{name: "telegram", available: true}
	bad := &fakeAdapter{name: "discord", initErr: errors.New("bad token")}

	r := New(testLogger(), 0)
	r.Register(bad)
	r.Register(good)

	available, outcomes := r.Initialize()

	if available != 1 {
		t.Errorf("expected 1 available, got %d", available)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Error("discord outcome should carry its error")
	}
	if outcomes[1].Err != nil {
		t.Errorf("telegram should initialize cleanly: %v", outcomes[1].Err)
	}
}

func TestSendMessageFanOut(t *testing.T) {
	a := &fakeAdapter{name: "telegram", available: true}
	b := &fakeAdapter{name: "discord", available: true}

	r := New(testLogger(), 0)
	r.Register(a)
	r.Register(b)

	outcomes, err := r.SendMessage("hello", "", false)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Error("both platforms should receive the message")
	}
}

func TestSendMessagePartialFailureStillSucceeds(t *testing.T) {
	failing := &fakeAdapter{name: "discord", available: true, sendErr: errors.New("rate limited")}
	ok := &fakeAdapter{name: "telegram", available: true}

	r := New(testLogger(), 0)
	r.Register(failing)
	r.Register(ok)

	outcomes, err := r.SendMessage("hello", "", false)
	if err != nil {
		t.Fatalf("one delivery is enough: %v", err)
	}
	if len(ok.sent) != 1 {
		t.Error("healthy platform must still receive the message")
	}

	var sawFailure bool
	for _, o := range outcomes {
		if o.Platform == "discord" && o.Err != nil {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("failing platform's error should be reported per-platform")
	}
}

func TestSendMessageAllFail(t *testing.T) {
	a := &fakeAdapter{name: "telegram", available: true, sendErr: errors.New("down")}

	r := New(testLogger(), 0)
	r.Register(a)

	if _, err := r.SendMessage("hello", "", false); err == nil {
		t.Error("zero deliveries must be an error")
	}
}

func TestSendMessageUnavailableRecordedAsError(t *testing.T) {
	off := &fakeAdapter{name: "discord", available: false}
	on := &fakeAdapter{name: "telegram", available: true}

	r := New(testLogger(), 0)
	r.Register(off)
	r.Register(on)

	outcomes, err := r.SendMessage("hello", "", false)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("unavailable platforms still get an outcome, got %+v", outcomes)
	}
	if outcomes[0].Platform != "discord" || outcomes[0].Err == nil {
		t.Errorf("the skipped platform's outcome should carry an error, got %+v", outcomes[0])
	}
	if len(off.sent) != 0 {
		t.Error("unavailable platforms must not be sent to")
	}
	if len(on.sent) != 1 {
		t.Error("healthy platform must still receive the message")
	}
}

func TestSendMessageExplicitTarget(t *testing.T) {
	discord := &fakeAdapter{name: "discord", available: true}
	telegram := &fakeAdapter{name: "telegram", available: true}

	r := New(testLogger(), 0)
	r.Register(discord)
	r.Register(telegram)

	outcomes, err := r.SendMessage("just for discord", "discord", false)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Platform != "discord" {
		t.Errorf("a named target restricts delivery, got %+v", outcomes)
	}
	if len(telegram.sent) != 0 {
		t.Error("the other platform must not receive a targeted message")
	}
}

func TestSendMessageUnknownTarget(t *testing.T) {
	r := New(testLogger(), 0)
	r.Register(&fakeAdapter{name: "telegram", available: true})

	if _, err := r.SendMessage("hello", "matrix", false); err == nil {
		t.Error("an unregistered target must be an error")
	}
}

func TestRequestInputPrefersTelegram(t *testing.T) {
	discord := &fakeAdapter{name: "discord", available: true, inputRes: types.InputResult{Response: "from discord"}}
	telegram := &fakeAdapter{name: "telegram", available: true, inputRes: types.InputResult{Response: "from telegram"}}

	// Registration order should not matter: discord first.
	r := New(testLogger(), 0)
	r.Register(discord)
	r.Register(telegram)

	res, err := r.RequestInput("pick one", "", time.Second)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if res.Response != "from telegram" {
		t.Errorf("telegram should be preferred, got %q", res.Response)
	}
	if atomic.LoadInt32(&discord.inputCalls) != 0 {
		t.Error("input goes to exactly one platform")
	}
}

func TestRequestInputFallsBackToDiscord(t *testing.T) {
	discord := &fakeAdapter{name: "discord", available: true, inputRes: types.InputResult{Response: "ok"}}
	telegram := &fakeAdapter{name: "telegram", available: false}

	r := New(testLogger(), 0)
	r.Register(telegram)
	r.Register(discord)

	res, err := r.RequestInput("pick one", "", time.Second)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if res.Response != "ok" {
		t.Errorf("discord should serve when telegram is unavailable, got %q", res.Response)
	}
}

func TestRequestInputExplicitTarget(t *testing.T) {
	discord := &fakeAdapter{name: "discord", available: true, inputRes: types.InputResult{Response: "from discord"}}
	telegram := &fakeAdapter{name: "telegram", available: true, inputRes: types.InputResult{Response: "from telegram"}}

	r := New(testLogger(), 0)
	r.Register(discord)
	r.Register(telegram)

	res, err := r.RequestInput("pick one", "discord", time.Second)
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if res.Response != "from discord" {
		t.Errorf("a named target overrides the preference order, got %q", res.Response)
	}
	if atomic.LoadInt32(&telegram.inputCalls) != 0 {
		t.Error("input goes to exactly one platform")
	}
}

func TestRequestInputTargetUnavailableNoFallback(t *testing.T) {
	discord := &fakeAdapter{name: "discord", available: false}
	telegram := &fakeAdapter{name: "telegram", available: true, inputRes: types.InputResult{Response: "ok"}}

	r := New(testLogger(), 0)
	r.Register(discord)
	r.Register(telegram)

	if _, err := r.RequestInput("pick one", "discord", time.Second); err == nil {
		t.Error("an unavailable named target must fail, not fall back")
	}
	if atomic.LoadInt32(&telegram.inputCalls) != 0 {
		t.Error("no other platform may serve a targeted request")
	}
}

func TestRequestInputNoPlatforms(t *testing.T) {
	r := New(testLogger(), 0)
	if _, err := r.RequestInput("anyone there?", "", time.Second); err == nil {
		t.Error("expected an error with no available platforms")
	}
}

func TestCleanupRunsAll(t *testing.T) {
	a := &fakeAdapter{name: "telegram", available: true}
	b := &fakeAdapter{name: "discord", available: true}

	r := New(testLogger(), 0)
	r.Register(a)
	r.Register(b)

	outcomes := r.Cleanup()
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if atomic.LoadInt32(&a.cleanups) != 1 || atomic.LoadInt32(&b.cleanups) != 1 {
		t.Error("every adapter must be cleaned up")
	}
}
