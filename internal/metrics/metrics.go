// Package metrics exposes bridge counters in Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

// Collector holds all metrics. Construct one and pass it down; there
// is no package-level default.
type Collector struct {
	messagesTotal  map[string]*atomic.Int64 // by platform
	sendFailures   map[string]*atomic.Int64 // by platform
	tokensInput    atomic.Int64
	tokensOutput   atomic.Int64
	costMicroUSD   atomic.Int64
	requestsTotal  atomic.Int64
	decodeFailures atomic.Int64
	processing     atomic.Int64
	mu             sync.RWMutex
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		messagesTotal: make(map[string]*atomic.Int64),
		sendFailures:  make(map[string]*atomic.Int64),
	}
}

// IncrementMessages increments the message counter for a platform
func (c *Collector) IncrementMessages(platform string) {
	c.counterFor(c.messagesTotal, platform).Add(1)
}

// IncrementSendFailures increments the send failure counter for a platform
func (c *Collector) IncrementSendFailures(platform string) {
	c.counterFor(c.sendFailures, platform).Add(1)
}

func (c *Collector) counterFor(m map[string]*atomic.Int64, key string) *atomic.Int64 {
	c.mu.Lock()
	counter, ok := m[key]
	if !ok {
		counter = &atomic.Int64{}
		m[key] = counter
	}
	c.mu.Unlock()
	return counter
}

// AddTokens adds token usage and cost
func (c *Collector) AddTokens(input, output int, costUSD float64) {
	c.tokensInput.Add(int64(input))
	c.tokensOutput.Add(int64(output))
	c.costMicroUSD.Add(int64(costUSD * 1e6))
}

// IncrementRequests increments the assistant request counter
func (c *Collector) IncrementRequests() {
	c.requestsTotal.Add(1)
}

// IncrementDecodeFailures increments the malformed stream line counter
func (c *Collector) IncrementDecodeFailures() {
	c.decodeFailures.Add(1)
}

// SetProcessing records whether a request is in flight
func (c *Collector) SetProcessing(busy bool) {
	if busy {
		c.processing.Store(1)
	} else {
		c.processing.Store(0)
	}
}

// GetMessagesTotal returns messages total by platform
func (c *Collector) GetMessagesTotal() map[string]int64 {
	return c.snapshot(c.messagesTotal)
}

// GetSendFailures returns send failures by platform
func (c *Collector) GetSendFailures() map[string]int64 {
	return c.snapshot(c.sendFailures)
}

func (c *Collector) snapshot(m map[string]*atomic.Int64) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]int64)
	for k, counter := range m {
		result[k] = counter.Load()
	}
	return result
}

// GetTokensTotal returns token counts
func (c *Collector) GetTokensTotal() (input, output int64) {
	return c.tokensInput.Load(), c.tokensOutput.Load()
}

// WritePrometheus writes metrics in Prometheus text format
func (c *Collector) WritePrometheus(w io.Writer) {
	fmt.Fprintln(w, "# HELP echobridge_messages_total Total messages delivered by platform")
	fmt.Fprintln(w, "# TYPE echobridge_messages_total counter")
	messages := c.GetMessagesTotal()
	for _, p := range sortedKeys(messages) {
		fmt.Fprintf(w, "echobridge_messages_total{platform=%q} %d\n", p, messages[p])
	}

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP echobridge_send_failures_total Failed deliveries by platform")
	fmt.Fprintln(w, "# TYPE echobridge_send_failures_total counter")
	failures := c.GetSendFailures()
	for _, p := range sortedKeys(failures) {
		fmt.Fprintf(w, "echobridge_send_failures_total{platform=%q} %d\n", p, failures[p])
	}

	fmt.Fprintln(w)

	input, output := c.GetTokensTotal()
	fmt.Fprintln(w, "# HELP echobridge_tokens_total Total tokens used")
	fmt.Fprintln(w, "# TYPE echobridge_tokens_total counter")
	fmt.Fprintf(w, "echobridge_tokens_total{type=\"input\"} %d\n", input)
	fmt.Fprintf(w, "echobridge_tokens_total{type=\"output\"} %d\n", output)

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP echobridge_cost_usd Estimated cumulative cost in USD")
	fmt.Fprintln(w, "# TYPE echobridge_cost_usd counter")
	fmt.Fprintf(w, "echobridge_cost_usd %.6f\n", float64(c.costMicroUSD.Load())/1e6)

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP echobridge_requests_total Assistant requests started")
	fmt.Fprintln(w, "# TYPE echobridge_requests_total counter")
	fmt.Fprintf(w, "echobridge_requests_total %d\n", c.requestsTotal.Load())

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP echobridge_decode_failures_total Malformed stream lines dropped")
	fmt.Fprintln(w, "# TYPE echobridge_decode_failures_total counter")
	fmt.Fprintf(w, "echobridge_decode_failures_total %d\n", c.decodeFailures.Load())

	fmt.Fprintln(w)

	fmt.Fprintln(w, "# HELP echobridge_processing Whether a request is in flight")
	fmt.Fprintln(w, "# TYPE echobridge_processing gauge")
	fmt.Fprintf(w, "echobridge_processing %d\n", c.processing.Load())
}

// sortedKeys returns sorted keys of a map
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		c.WritePrometheus(w)
	}
}
