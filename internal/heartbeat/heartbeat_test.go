package heartbeat

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error"})
}

func TestDisabledDoesNotStart(t *testing.T) {
	s := New(config.HeartbeatConfig{Enabled: false}, nil, nil, testLogger())

	s.Start()
	if s.IsRunning() {
		t.Error("disabled heartbeat must not start")
	}
}

func TestStartStop(t *testing.T) {
	cfg := config.HeartbeatConfig{Enabled: true, IntervalMinutes: 60}
	s := New(cfg, func(string, string, int) error { return nil },
		func() (string, string, int) { return "ok", "", -1 }, testLogger())

	s.Start()
	if !s.IsRunning() {
		t.Fatal("expected the service to be running")
	}

	// Second start is a no-op.
	s.Start()

	s.Stop()
	if s.IsRunning() {
		t.Error("expected the service to be stopped")
	}

	// Second stop is a no-op too.
	s.Stop()
}

func TestForceDeliversStatus(t *testing.T) {
	var sent atomic.Int32
	var gotStatus string
	var gotProgress int

	send := func(status, details string, progress int) error {
		sent.Add(1)
		gotStatus = status
		gotProgress = progress
		return nil
	}
	statusFn := func() (string, string, int) { return "alive", "uptime 5m", 40 }

	s := New(config.HeartbeatConfig{Enabled: true}, send, statusFn, testLogger())
	s.Force()

	if sent.Load() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sent.Load())
	}
	if gotStatus != "alive" || gotProgress != 40 {
		t.Errorf("status card not passed through: %q %d", gotStatus, gotProgress)
	}
}

func TestEmptyStatusSkipsDelivery(t *testing.T) {
	var sent atomic.Int32
	send := func(string, string, int) error {
		sent.Add(1)
		return nil
	}

	s := New(config.HeartbeatConfig{Enabled: true}, send,
		func() (string, string, int) { return "", "", -1 }, testLogger())
	s.Force()

	if sent.Load() != 0 {
		t.Error("an empty status line suppresses the beat")
	}
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	send := func(string, string, int) error { return errors.New("all platforms down") }

	s := New(config.HeartbeatConfig{Enabled: true}, send,
		func() (string, string, int) { return "alive", "", -1 }, testLogger())
	s.Force()
}

func TestNilFuncsAreSafe(t *testing.T) {
	s := New(config.HeartbeatConfig{Enabled: true}, nil, nil, testLogger())
	s.Force()
}
