// Package router fans bridge output out to the registered chat
// platforms and picks a single platform for input requests.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/platform"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// inputPreference is the order platforms are considered for input
// requests. Input goes to exactly one platform; there is no fallback
// to the next one after a send failure.
var inputPreference = []string{"telegram", "discord"}

// Outcome is one platform's result for a fanned-out operation.
type Outcome struct {
	Platform string
	Err      error
}

// Router owns the adapter registry. Registration order is preserved
// and one platform's failure never prevents delivery to the others.
type Router struct {
	log          *logger.Logger
	inputTimeout time.Duration

	mu       sync.Mutex
	adapters []platform.Adapter
}

// New creates a router. inputTimeout is the default used when
// RequestInput is called with a non-positive timeout.
func New(log *logger.Logger, inputTimeout time.Duration) *Router {
	if inputTimeout <= 0 {
		inputTimeout = 5 * time.Minute
	}
	return &Router{
		log:          log.WithComponent("router"),
		inputTimeout: inputTimeout,
	}
}

// Register adds an adapter to the registry.
func (r *Router) Register(a platform.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// SetHandler installs the inbound handler on every registered adapter.
func (r *Router) SetHandler(h platform.InboundHandler) {
	for _, a := range r.snapshot() {
		a.SetHandler(h)
	}
}

// Initialize connects each adapter in registration order. A failing
// adapter is logged and skipped; the count of adapters that came up is
// returned together with the per-adapter outcomes.
func (r *Router) Initialize() (int, []Outcome) {
	var outcomes []Outcome
	available := 0

	for _, a := range r.snapshot() {
		err := a.Initialize()
		if err != nil {
			r.log.Error("❌ %s failed to initialize: %v", a.Name(), err)
		} else {
			available++
			r.log.Info("✅ %s initialized", a.Name())
		}
		outcomes = append(outcomes, Outcome{Platform: a.Name(), Err: err})
	}

	return available, outcomes
}

// SendMessage delivers assistant output. An empty target fans out to
// every registered platform; a named target restricts delivery to that
// platform alone. It succeeds when at least one platform accepted the
// message.
func (r *Router) SendMessage(content, target string, urgent bool) ([]Outcome, error) {
	return r.fanOut("message", target, func(a platform.Adapter) error {
		return a.SendMessage(content, urgent)
	})
}

// SendStatusUpdate fans a status card out to every registered platform.
func (r *Router) SendStatusUpdate(status, details string, progress int) ([]Outcome, error) {
	return r.fanOut("status update", "", func(a platform.Adapter) error {
		return a.SendStatusUpdate(status, details, progress)
	})
}

// fanOut runs send against each selected adapter. Unavailable adapters
// are not sent to but still show up in the outcomes, as errors.
func (r *Router) fanOut(what, target string, send func(platform.Adapter) error) ([]Outcome, error) {
	var outcomes []Outcome
	delivered := 0
	matched := false

	for _, a := range r.snapshot() {
		if target != "" && a.Name() != target {
			continue
		}
		matched = true

		if !a.IsAvailable() {
			outcomes = append(outcomes, Outcome{
				Platform: a.Name(),
				Err:      fmt.Errorf("platform %s is not available", a.Name()),
			})
			continue
		}
		err := send(a)
		if err != nil {
			r.log.Error("❌ %s %s failed: %v", a.Name(), what, err)
		} else {
			delivered++
		}
		outcomes = append(outcomes, Outcome{Platform: a.Name(), Err: err})
	}

	if target != "" && !matched {
		return outcomes, fmt.Errorf("platform %s is not registered", target)
	}
	if delivered == 0 {
		return outcomes, fmt.Errorf("no platform delivered the %s", what)
	}
	return outcomes, nil
}

// RequestInput asks exactly one platform for input. An empty target
// picks by preference, telegram over discord; a named target is used
// as-is. There is no fallback to another platform after the choice: a
// timeout there is the result. A timeout is a result, not an error.
func (r *Router) RequestInput(prompt, target string, timeout time.Duration) (types.InputResult, error) {
	if timeout <= 0 {
		timeout = r.inputTimeout
	}

	adapter := r.pickInputTarget(target)
	if adapter == nil {
		if target != "" {
			return types.InputResult{}, fmt.Errorf("platform %s is not available for input", target)
		}
		return types.InputResult{}, fmt.Errorf("no platform available for input")
	}

	r.log.Info("❓ requesting input via %s (timeout %s)", adapter.Name(), timeout)
	return adapter.RequestInput(prompt, timeout)
}

func (r *Router) pickInputTarget(target string) platform.Adapter {
	adapters := r.snapshot()

	if target != "" {
		for _, a := range adapters {
			if a.Name() == target && a.IsAvailable() {
				return a
			}
		}
		return nil
	}

	for _, name := range inputPreference {
		for _, a := range adapters {
			if a.Name() == name && a.IsAvailable() {
				return a
			}
		}
	}
	// Unknown platforms still qualify, after the preferred ones.
	for _, a := range adapters {
		if a.IsAvailable() {
			return a
		}
	}
	return nil
}

// AvailablePlatforms lists the platforms currently able to deliver.
func (r *Router) AvailablePlatforms() []string {
	var names []string
	for _, a := range r.snapshot() {
		if a.IsAvailable() {
			names = append(names, a.Name())
		}
	}
	return names
}

// Cleanup disconnects every adapter concurrently, best effort. All
// cleanups run even when some fail.
func (r *Router) Cleanup() []Outcome {
	adapters := r.snapshot()
	outcomes := make([]Outcome, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a platform.Adapter) {
			defer wg.Done()
			err := a.Cleanup()
			if err != nil {
				r.log.Warn("⚠️ %s cleanup failed: %v", a.Name(), err)
			}
			outcomes[i] = Outcome{Platform: a.Name(), Err: err}
		}(i, a)
	}
	wg.Wait()

	return outcomes
}

func (r *Router) snapshot() []platform.Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]platform.Adapter(nil), r.adapters...)
}
