package platform

import (
	"testing"
	"time"

	"github.com/EchoBridge/echobridge/pkg/types"
)

func TestPendingResolveOldestFIFO(t *testing.T) {
	p := &pendingInputs{}

	first := p.add("first question")
	second := p.add("second question")

	if !p.resolveOldest("answer one") {
		t.Fatal("expected a pending request to consume the reply")
	}

	select {
	case res := <-first.ch:
		if res.Response != "answer one" || res.TimedOut {
			t.Errorf("unexpected result: %+v", res)
		}
	default:
		t.Fatal("oldest request should have been resolved")
	}

	select {
	case <-second.ch:
		t.Fatal("second request must stay pending")
	default:
	}

	if p.size() != 1 {
		t.Errorf("expected 1 pending request left, got %d", p.size())
	}
}

func TestPendingNoRequests(t *testing.T) {
	p := &pendingInputs{}
	if p.resolveOldest("hello") {
		t.Error("with nothing pending the message must not be consumed")
	}
}

func TestPendingTimeout(t *testing.T) {
	p := &pendingInputs{}
	req := p.add("anyone?")

	start := time.Now()
	res := p.await(req, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Error("expected a timed-out result")
	}
	if res.Response != "" {
		t.Errorf("timed-out result must carry no response, got %q", res.Response)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("await returned before the timeout: %v", elapsed)
	}
	if p.size() != 0 {
		t.Error("timed-out request must be removed from the pending set")
	}
}

func TestPendingReplyBeforeTimeout(t *testing.T) {
	p := &pendingInputs{}
	req := p.add("quick question")

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.resolveOldest("quick answer")
	}()

	res := p.await(req, time.Second)
	if res.TimedOut {
		t.Error("reply arrived in time, must not report a timeout")
	}
	if res.Response != "quick answer" {
		t.Errorf("expected 'quick answer', got %q", res.Response)
	}
}

func TestPendingSingleConsume(t *testing.T) {
	// Exactly one of reply or timeout wins; a late reply after the
	// timeout consumed the request is simply not consumed by it.
	p := &pendingInputs{}
	req := p.add("question")

	res := p.await(req, time.Millisecond)
	if !res.TimedOut {
		t.Fatal("expected timeout to win")
	}

	if p.resolveOldest("too late") {
		t.Error("a consumed request must not resolve again")
	}
}

func TestPendingRemoveTwice(t *testing.T) {
	p := &pendingInputs{}
	req := p.add("q")

	if !p.remove(req.id) {
		t.Fatal("first remove should succeed")
	}
	if p.remove(req.id) {
		t.Error("second remove must report the request already gone")
	}
}

func TestInboundFilter(t *testing.T) {
	tests := []struct {
		name      string
		msg       types.ChatMessage
		channelID string
		userID    string
		want      bool
	}{
		{
			name: "bot always discarded",
			msg:  types.ChatMessage{Text: "hi", IsBot: true},
			want: false,
		},
		{
			name: "open filter accepts all",
			msg:  types.ChatMessage{Text: "hi", ChannelID: "c9", AuthorID: "u9"},
			want: true,
		},
		{
			name:      "matching channel",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c1"},
			channelID: "c1",
			want:      true,
		},
		{
			name:      "wrong channel",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c2"},
			channelID: "c1",
			want:      false,
		},
		{
			name:      "both filters configured and matching",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c1", AuthorID: "u1"},
			channelID: "c1",
			userID:    "u1",
			want:      true,
		},
		{
			name:      "channel match does not admit another user",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c1", AuthorID: "u2"},
			channelID: "c1",
			userID:    "u1",
			want:      false,
		},
		{
			name:      "user match alone fails when the channel mismatches",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c2", AuthorID: "u1"},
			channelID: "c1",
			userID:    "u1",
			want:      false,
		},
		{
			name:   "only user configured",
			msg:    types.ChatMessage{Text: "hi", ChannelID: "c2", AuthorID: "u1"},
			userID: "u1",
			want:   true,
		},
		{
			name:      "neither filter matches",
			msg:       types.ChatMessage{Text: "hi", ChannelID: "c2", AuthorID: "u2"},
			channelID: "c1",
			userID:    "u1",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldAccept(tt.msg, tt.channelID, tt.userID); got != tt.want {
				t.Errorf("shouldAccept = %v, want %v", got, tt.want)
			}
		})
	}
}

// The full correlation scenario: two requests pending, a message from
// a filtered-out user is ignored, the accepted reply resolves the
// oldest request, and nothing resolves twice.
func TestInputCorrelationScenario(t *testing.T) {
	p := &pendingInputs{}
	reqA := p.add("question A")
	reqB := p.add("question B")

	// A message failing the filter never reaches the pending set.
	stranger := types.ChatMessage{Text: "ignore me", AuthorID: "intruder"}
	if shouldAccept(stranger, "", "owner") {
		t.Fatal("filtered message should not be accepted")
	}

	// The owner's reply resolves request A only.
	if !p.resolveOldest("ok") {
		t.Fatal("reply should resolve the oldest request")
	}

	res := p.await(reqA, time.Second)
	if res.Response != "ok" || res.TimedOut {
		t.Errorf("unexpected result for A: %+v", res)
	}

	// B still times out independently.
	res = p.await(reqB, 50*time.Millisecond)
	if !res.TimedOut {
		t.Error("B should time out, not inherit A's reply")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "░░░░░░░░░░░░░░░░░░░░"},
		{50, "██████████░░░░░░░░░░"},
		{100, "████████████████████"},
		{-10, "░░░░░░░░░░░░░░░░░░░░"},
		{250, "████████████████████"},
	}

	for _, tt := range tests {
		if got := ProgressBar(tt.percent); got != tt.want {
			t.Errorf("ProgressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}
