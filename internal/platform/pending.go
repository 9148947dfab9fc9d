package platform

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EchoBridge/echobridge/pkg/types"
)

// pendingRequest is one outstanding input request. Its channel is
// buffered so the resolver never blocks on a racing timeout.
type pendingRequest struct {
	id      string
	prompt  string
	created time.Time
	ch      chan types.InputResult
}

// pendingInputs correlates free-form chat replies with outstanding
// input requests in FIFO order. Exactly one of reply or timeout
// consumes a request; the loser of that race observes nothing.
type pendingInputs struct {
	mu   sync.Mutex
	list []*pendingRequest
}

// add registers a new pending request and returns it.
func (p *pendingInputs) add(prompt string) *pendingRequest {
	req := &pendingRequest{
		id:      uuid.NewString(),
		prompt:  prompt,
		created: time.Now(),
		ch:      make(chan types.InputResult, 1),
	}

	p.mu.Lock()
	p.list = append(p.list, req)
	p.mu.Unlock()

	return req
}

// resolveOldest consumes the oldest pending request with the given
// reply text. Returns false when nothing was pending, in which case
// the caller forwards the message as a normal chat turn.
func (p *pendingInputs) resolveOldest(text string) bool {
	p.mu.Lock()
	if len(p.list) == 0 {
		p.mu.Unlock()
		return false
	}
	req := p.list[0]
	p.list = p.list[1:]
	p.mu.Unlock()

	req.ch <- types.InputResult{Response: text}
	return true
}

// remove takes a request out of the pending set, returning false when
// it was already consumed by a reply.
func (p *pendingInputs) remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, req := range p.list {
		if req.id == id {
			p.list = append(p.list[:i], p.list[i+1:]...)
			return true
		}
	}
	return false
}

// size returns the number of outstanding requests.
func (p *pendingInputs) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.list)
}

// await blocks until the request resolves or the timeout elapses. The
// race is settled by remove: whichever side wins, exactly one result
// is observed and a late reply is never delivered twice.
func (p *pendingInputs) await(req *pendingRequest, timeout time.Duration) types.InputResult {
	select {
	case res := <-req.ch:
		return res
	case <-time.After(timeout):
		if p.remove(req.id) {
			return types.InputResult{TimedOut: true}
		}
		// Lost the race: a reply landed between the timer firing and
		// the removal attempt. The result is already buffered.
		return <-req.ch
	}
}
