// Package bridge wires the assistant engine, chat platforms, usage
// ledger, and persistence into one running service.
package bridge

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/EchoBridge/echobridge/internal/assistant"
	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/heartbeat"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/metrics"
	"github.com/EchoBridge/echobridge/internal/platform"
	"github.com/EchoBridge/echobridge/internal/ratelimit"
	"github.com/EchoBridge/echobridge/internal/router"
	"github.com/EchoBridge/echobridge/internal/session"
	"github.com/EchoBridge/echobridge/internal/store"
	"github.com/EchoBridge/echobridge/internal/usage"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// busyNotice is sent back when a chat message arrives mid-request.
const busyNotice = "⏳ Still working on the previous message. Send /stop to abort it."

// Bridge owns the full service graph. Construct with New, then Start.
type Bridge struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *store.SQLiteStore
	ledger    *usage.Ledger
	sessions  *session.Manager
	service   *assistant.Service
	router    *router.Router
	collector *metrics.Collector
	limiter   *ratelimit.Limiter
	heartbeat *heartbeat.Service
	startTime time.Time

	mu         sync.Mutex
	notifier   assistant.Notifier
	lastTotals types.TokenTotals
	metricsSrv *http.Server
}

// New builds the service graph from config. Nothing connects until
// Start.
func New(cfg *config.Config, log *logger.Logger) (*Bridge, error) {
	dbPath := cfg.Usage.DBPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	b := &Bridge{
		cfg:       cfg,
		log:       log.WithComponent("bridge"),
		store:     st,
		collector: metrics.NewCollector(),
		limiter:   ratelimit.New(cfg.Router.RateLimit),
		startTime: time.Now(),
	}

	b.ledger = usage.NewLedger(st, cfg.Usage.RetentionDays)
	b.sessions = session.NewManager(b.ledger)
	b.service = assistant.NewService(cfg.Assistant, b.sessions, b.ledger, b, log)
	b.service.SetDecodeFailureHook(b.collector.IncrementDecodeFailures)

	b.router = router.New(log, time.Duration(cfg.Router.InputTimeoutSeconds)*time.Second)
	if cfg.Platforms.Telegram.Enabled {
		b.router.Register(platform.NewTelegramAdapter(cfg.Platforms.Telegram, log))
	}
	if cfg.Platforms.Discord.Enabled {
		b.router.Register(platform.NewDiscordAdapter(cfg.Platforms.Discord, log))
	}
	b.router.SetHandler(b.handleChatMessage)

	b.heartbeat = heartbeat.New(cfg.Heartbeat, func(status, details string, progress int) error {
		_, err := b.router.SendStatusUpdate(status, details, progress)
		return err
	}, b.heartbeatStatus, log)

	return b, nil
}

// Start loads persisted usage, connects the platforms, and starts the
// background services.
func (b *Bridge) Start() error {
	if err := b.ledger.Load(); err != nil {
		b.log.Warn("⚠️ could not load usage history: %v", err)
	}
	b.restoreTranscript()

	available, _ := b.router.Initialize()
	b.log.Info("🔗 %d chat platform(s) available", available)

	b.heartbeat.Start()

	if b.cfg.Metrics.Enabled {
		b.startMetricsServer()
	}

	b.log.Info("✅ bridge started")
	return nil
}

// Shutdown stops everything, saving the transcript on the way out.
func (b *Bridge) Shutdown() {
	b.heartbeat.Stop()
	b.service.Stop()
	b.router.Cleanup()
	b.saveTranscript()

	b.mu.Lock()
	srv := b.metricsSrv
	b.metricsSrv = nil
	b.mu.Unlock()
	if srv != nil {
		srv.Close()
	}

	if err := b.store.Close(); err != nil {
		b.log.Warn("⚠️ store close failed: %v", err)
	}
	b.log.Info("⏹️ bridge stopped")
}

// SetNotifier installs the UI notifier. Engine callbacks are relayed
// to it in addition to the bridge's own mirroring.
func (b *Bridge) SetNotifier(n assistant.Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

// Service returns the assistant engine.
func (b *Bridge) Service() *assistant.Service {
	return b.service
}

// Sessions returns the session manager.
func (b *Bridge) Sessions() *session.Manager {
	return b.sessions
}

// Ledger returns the usage ledger.
func (b *Bridge) Ledger() *usage.Ledger {
	return b.ledger
}

// Router returns the platform router.
func (b *Bridge) Router() *router.Router {
	return b.router
}

// Metrics returns the metrics collector.
func (b *Bridge) Metrics() *metrics.Collector {
	return b.collector
}

// HandleUserInput submits one user message to the assistant. A busy
// engine rejects it without side effects.
func (b *Bridge) HandleUserInput(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	b.collector.IncrementRequests()

	go func() {
		if err := b.service.SendMessage(text); err != nil {
			if err == session.ErrBusy {
				b.log.Warn("⏳ request rejected: %v", err)
			} else {
				b.log.Error("❌ request failed: %v", err)
			}
		}
		b.saveTranscript()
	}()

	return nil
}

// RequestInput asks the chat platforms for input on the assistant's
// behalf (telegram preferred, then discord).
func (b *Bridge) RequestInput(prompt string, timeout time.Duration) (types.InputResult, error) {
	return b.router.RequestInput(prompt, "", timeout)
}

// SendChat delivers user-authored text to the chat platforms directly,
// without involving the assistant.
func (b *Bridge) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return b.deliver(text, false)
}

// handleChatMessage is the inbound path from the platform adapters.
// Commands are handled locally; everything else becomes user input,
// forwarded exactly once.
func (b *Bridge) handleChatMessage(msg types.ChatMessage) {
	if !b.limiter.Allow(msg.AuthorID) {
		b.log.Warn("🚦 rate limited %s on %s", msg.AuthorName, msg.Platform)
		return
	}

	switch strings.TrimSpace(msg.Text) {
	case "/new":
		b.service.NewSession()
		b.router.SendMessage("🆕 Started a new session.", "", false)
		return
	case "/stop":
		b.service.Stop()
		return
	case "/usage":
		b.router.SendMessage(b.ledger.Summary(time.Now()), "", false)
		return
	case "/status":
		status, details, progress := b.heartbeatStatus()
		b.router.SendStatusUpdate(status, details, progress)
		return
	}

	if b.service.Busy() {
		b.router.SendMessage(busyNotice, "", false)
		return
	}

	b.HandleUserInput(msg.Text)
}

// heartbeatStatus builds the periodic status card.
func (b *Bridge) heartbeatStatus() (string, string, int) {
	totals := b.sessions.Totals()
	today := b.ledger.Day(time.Now())

	state := "idle"
	if b.service.Busy() {
		state = "processing"
	}

	details := fmt.Sprintf(
		"State: %s\nUptime: %s\nSession tokens: %d in / %d out ($%.4f)\nToday: $%.4f across %d request(s)",
		state,
		time.Since(b.startTime).Round(time.Second),
		totals.Input, totals.Output, totals.CostUSD,
		today.CostUSD, today.RequestCount,
	)
	return "EchoBridge alive", details, -1
}

func (b *Bridge) startMetricsServer() {
	mux := http.NewServeMux()
	path := b.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux.HandleFunc(path, b.collector.Handler())

	addr := fmt.Sprintf("%s:%d", b.cfg.Metrics.Bind, b.cfg.Metrics.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	b.mu.Lock()
	b.metricsSrv = srv
	b.mu.Unlock()

	go func() {
		b.log.Info("📊 metrics on http://%s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error("❌ metrics server: %v", err)
		}
	}()
}

// restoreTranscript reloads the most recently updated transcript so a
// restart picks the conversation back up. Transcripts saved from an
// unbound session are keyed by their own row id; those restore without
// a resume token.
func (b *Bridge) restoreTranscript() {
	ids, err := b.store.ListTranscripts()
	if err != nil || len(ids) == 0 {
		return
	}

	tr, err := b.store.LoadTranscript(ids[0])
	if err != nil {
		b.log.Warn("⚠️ transcript reload failed: %v", err)
		return
	}
	if tr == nil || len(tr.Messages) == 0 {
		return
	}

	sessionID := tr.SessionID
	if sessionID == tr.ID {
		sessionID = ""
	}

	b.sessions.Restore(sessionID, tr.Messages, tr.StartedAt, types.TokenTotals{
		Input:   tr.TokensInput,
		Output:  tr.TokensOutput,
		CostUSD: tr.CostUSD,
	})
	b.log.Info("📥 restored session with %d message(s)", len(tr.Messages))
}

func (b *Bridge) saveTranscript() {
	sess := b.sessions.Current()
	if sess == nil || sess.Len() == 0 {
		return
	}

	totals := sess.Totals()
	err := b.store.SaveTranscript(&store.Transcript{
		SessionID:    sess.ID(),
		Messages:     sess.Messages(),
		TokensInput:  totals.Input,
		TokensOutput: totals.Output,
		CostUSD:      totals.CostUSD,
		StartedAt:    sess.StartTime(),
	})
	if err != nil {
		b.log.Warn("⚠️ transcript save failed: %v", err)
	}
}

// MessageAppended implements assistant.Notifier: relay to the UI and
// mirror assistant-originated entries to chat.
func (b *Bridge) MessageAppended(msg types.Message) {
	b.relay(func(n assistant.Notifier) { n.MessageAppended(msg) })

	if !b.cfg.Router.Mirror {
		return
	}

	switch msg.Kind {
	case types.KindAssistant, types.KindSystem:
		b.mirror(msg.Content, false)
	case types.KindError:
		b.mirror(msg.Content, true)
	}
}

func (b *Bridge) mirror(content string, urgent bool) {
	if err := b.deliver(content, urgent); err != nil {
		b.log.Debug("mirror skipped: %v", err)
	}
}

// deliver fans content out to chat and keeps the per-platform counters
// honest. Outcomes for platforms that were never sent to (unavailable)
// are not counted as send failures.
func (b *Bridge) deliver(content string, urgent bool) error {
	outcomes, err := b.router.SendMessage(content, "", urgent)
	available := b.router.AvailablePlatforms()
	for _, o := range outcomes {
		switch {
		case o.Err == nil:
			b.collector.IncrementMessages(o.Platform)
		case contains(available, o.Platform):
			b.collector.IncrementSendFailures(o.Platform)
		}
	}
	return err
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// ProcessingChanged implements assistant.Notifier.
func (b *Bridge) ProcessingChanged(busy bool) {
	b.collector.SetProcessing(busy)
	b.relay(func(n assistant.Notifier) { n.ProcessingChanged(busy) })
}

// SessionChanged implements assistant.Notifier.
func (b *Bridge) SessionChanged(sessionID string) {
	b.relay(func(n assistant.Notifier) { n.SessionChanged(sessionID) })
}

// TokensUpdated implements assistant.Notifier. The collector gets the
// delta from the last cumulative totals it saw.
func (b *Bridge) TokensUpdated(totals types.TokenTotals) {
	b.mu.Lock()
	last := b.lastTotals
	if totals.Input >= last.Input {
		b.lastTotals = totals
	} else {
		// Totals reset (new session).
		b.lastTotals = totals
		last = types.TokenTotals{}
	}
	b.mu.Unlock()

	if d := totals.Input - last.Input; d > 0 || totals.Output > last.Output {
		b.collector.AddTokens(d, totals.Output-last.Output, totals.CostUSD-last.CostUSD)
	}

	b.relay(func(n assistant.Notifier) { n.TokensUpdated(totals) })
}

func (b *Bridge) relay(fn func(assistant.Notifier)) {
	b.mu.Lock()
	n := b.notifier
	b.mu.Unlock()
	if n != nil {
		fn(n)
	}
}
