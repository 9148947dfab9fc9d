package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/pkg/types"
)

const (
	discordAPIBase = "https://discord.com/api/v10"
	discordGateway = "wss://gateway.discord.gg/?v=10&encoding=json"

	// GUILD_MESSAGES | DIRECT_MESSAGES | MESSAGE_CONTENT
	discordIntents = 1<<9 | 1<<12 | 1<<15

	// Gateway opcodes
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11

	// Embed accent colors
	colorBlurple = 0x5865F2
	colorRed     = 0xED4245
	colorYellow  = 0xFEE75C
)

// DiscordAdapter bridges Discord through the REST API for outbound
// messages and a Gateway websocket for inbound ones.
type DiscordAdapter struct {
	cfg     config.DiscordConfig
	client  *http.Client
	log     *logger.Logger
	pending pendingInputs
	handler InboundHandler

	mu            sync.Mutex
	running       bool
	connected     bool
	cancel        context.CancelFunc
	botID         string
	seq           int64
	lastChannelID string

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// discordUser represents a Discord user
type discordUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Bot           bool   `json:"bot"`
}

// discordMessage represents a Discord message
type discordMessage struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	ChannelID string       `json:"channel_id"`
	GuildID   string       `json:"guild_id,omitempty"`
	Author    *discordUser `json:"author"`
	Timestamp string       `json:"timestamp"`
}

// gatewayPayload represents a Discord Gateway message
type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloEvent represents the Hello event from Gateway
type helloEvent struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// discordEmbed is an outbound rich embed.
type discordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// NewDiscordAdapter creates a Discord adapter from config.
func NewDiscordAdapter(cfg config.DiscordConfig, log *logger.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.WithComponent("discord"),
	}
}

// Name implements Adapter.
func (d *DiscordAdapter) Name() string {
	return "discord"
}

// SetHandler implements Adapter.
func (d *DiscordAdapter) SetHandler(handler InboundHandler) {
	d.handler = handler
}

// Initialize verifies the token and starts the gateway connection.
func (d *DiscordAdapter) Initialize() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("discord adapter is already running")
	}
	d.running = true
	var ctx context.Context
	ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	d.log.Info("💬 Discord adapter starting...")

	user, err := d.getMe()
	if err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to connect to Discord: %w", err)
	}

	d.mu.Lock()
	d.botID = user.ID
	d.mu.Unlock()
	d.log.Info("💬 Discord connected: %s#%s", user.Username, user.Discriminator)

	go d.gatewayLoop(ctx)

	return nil
}

// IsAvailable implements Adapter.
func (d *DiscordAdapter) IsAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running && d.connected && (d.cfg.ChannelID != "" || d.lastChannelID != "")
}

// Cleanup closes the gateway connection and stops the adapter.
func (d *DiscordAdapter) Cleanup() error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running = false
	d.mu.Unlock()

	d.writeMu.Lock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.writeMu.Unlock()
	return nil
}

// getMe returns the bot user info
func (d *DiscordAdapter) getMe() (*discordUser, error) {
	resp, err := d.apiCall("GET", "/users/@me", nil)
	if err != nil {
		return nil, err
	}

	var user discordUser
	if err := json.Unmarshal(resp, &user); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &user, nil
}

// gatewayLoop keeps a gateway session alive, reconnecting with a
// fixed backoff until the adapter is stopped.
func (d *DiscordAdapter) gatewayLoop(ctx context.Context) {
	for {
		if err := d.runGateway(ctx); err != nil {
			d.log.Warn("💬 gateway disconnected: %v", err)
		}

		d.mu.Lock()
		d.connected = false
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			d.log.Info("💬 Discord adapter stopped")
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// runGateway handles one gateway session: hello, identify, heartbeats,
// dispatches. Returns when the connection drops or the server asks for
// a reconnect.
func (d *DiscordAdapter) runGateway(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, discordGateway, nil)
	if err != nil {
		return fmt.Errorf("gateway dial failed: %w", err)
	}

	d.writeMu.Lock()
	d.conn = conn
	d.writeMu.Unlock()
	defer func() {
		d.writeMu.Lock()
		if d.conn == conn {
			d.conn = nil
		}
		d.writeMu.Unlock()
		conn.Close()
	}()

	// First payload must be Hello with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h helloEvent
	if err := json.Unmarshal(hello.D, &h); err != nil {
		return fmt.Errorf("failed to parse hello: %w", err)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go d.heartbeatLoop(hbCtx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond)

	if err := d.sendPayload(conn, gatewayPayload{
		Op: opIdentify,
		D: mustMarshal(map[string]any{
			"token":   d.cfg.BotToken,
			"intents": discordIntents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "echobridge",
				"device":  "echobridge",
			},
		}),
	}); err != nil {
		return fmt.Errorf("identify failed: %w", err)
	}

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway read failed: %w", err)
		}

		if payload.S != nil {
			d.mu.Lock()
			d.seq = *payload.S
			d.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			d.handleDispatch(&payload)
		case opHeartbeat:
			d.sendHeartbeat(conn)
		case opReconnect:
			return fmt.Errorf("server requested reconnect")
		case opInvalidSession:
			return fmt.Errorf("invalid session")
		case opHeartbeatAck:
			// Keepalive acknowledged.
		}
	}
}

func (d *DiscordAdapter) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sendHeartbeat(conn)
		}
	}
}

func (d *DiscordAdapter) sendHeartbeat(conn *websocket.Conn) {
	d.mu.Lock()
	seq := d.seq
	d.mu.Unlock()

	var data json.RawMessage
	if seq > 0 {
		data = mustMarshal(seq)
	} else {
		data = json.RawMessage("null")
	}

	if err := d.sendPayload(conn, gatewayPayload{Op: opHeartbeat, D: data}); err != nil {
		d.log.Warn("💬 heartbeat send failed: %v", err)
	}
}

func (d *DiscordAdapter) sendPayload(conn *websocket.Conn, payload gatewayPayload) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (d *DiscordAdapter) handleDispatch(payload *gatewayPayload) {
	switch payload.T {
	case "READY":
		d.mu.Lock()
		d.connected = true
		d.mu.Unlock()
		d.log.Info("💬 Discord gateway ready")
	case "MESSAGE_CREATE":
		var dm discordMessage
		if err := json.Unmarshal(payload.D, &dm); err != nil {
			d.log.Warn("💬 failed to parse message: %v", err)
			return
		}
		d.handleMessage(&dm)
	}
}

// handleMessage filters an incoming message, lets a pending input
// request consume it, and otherwise forwards it to the handler.
func (d *DiscordAdapter) handleMessage(dm *discordMessage) {
	d.mu.Lock()
	botID := d.botID
	d.mu.Unlock()

	msg := types.ChatMessage{
		ID:        dm.ID,
		Text:      dm.Content,
		ChannelID: dm.ChannelID,
		Platform:  "discord",
	}
	if dm.Author != nil {
		msg.AuthorID = dm.Author.ID
		msg.AuthorName = dm.Author.Username
		msg.IsBot = dm.Author.Bot || dm.Author.ID == botID
	}
	if dm.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, dm.Timestamp); err == nil {
			msg.Timestamp = t
		}
	}

	if msg.Text == "" || !shouldAccept(msg, d.cfg.ChannelID, d.cfg.UserID) {
		return
	}

	d.mu.Lock()
	d.lastChannelID = dm.ChannelID
	d.mu.Unlock()

	d.log.Info("📨 [discord] %s: %s", msg.AuthorName, TruncateForPreview(msg.Text, 80))

	if d.pending.resolveOldest(msg.Text) {
		return
	}

	if d.handler != nil {
		d.handler(msg)
	}
}

// SendMessage implements Adapter. Urgent content goes out as a red
// embed; normal content as plain messages split to fit the limit.
func (d *DiscordAdapter) SendMessage(content string, urgent bool) error {
	channelID, err := d.sendChannelID()
	if err != nil {
		return err
	}

	if urgent {
		return d.sendEmbed(channelID, discordEmbed{
			Title:       "🚨 URGENT",
			Description: TruncateForPreview(content, discordSafeLength),
			Color:       colorRed,
		})
	}

	for _, part := range SplitMessage(content, discordSafeLength) {
		body := map[string]any{"content": part}
		if _, err := d.apiCall("POST", "/channels/"+channelID+"/messages", body); err != nil {
			return err
		}
	}
	return nil
}

// SendStatusUpdate implements Adapter.
func (d *DiscordAdapter) SendStatusUpdate(status, details string, progress int) error {
	channelID, err := d.sendChannelID()
	if err != nil {
		return err
	}

	description := details
	if progress >= 0 {
		if description != "" {
			description += "\n"
		}
		description += fmt.Sprintf("`%s` %d%%", ProgressBar(progress), progress)
	}

	return d.sendEmbed(channelID, discordEmbed{
		Title:       "📊 " + status,
		Description: description,
		Color:       colorBlurple,
	})
}

// RequestInput implements Adapter. The next accepted message in the
// channel resolves the oldest pending request.
func (d *DiscordAdapter) RequestInput(prompt string, timeout time.Duration) (types.InputResult, error) {
	channelID, err := d.sendChannelID()
	if err != nil {
		return types.InputResult{}, err
	}

	req := d.pending.add(prompt)

	err = d.sendEmbed(channelID, discordEmbed{
		Title:       "❓ Input needed",
		Description: fmt.Sprintf("%s\n\n*Reply in this channel within %s.*", prompt, timeout.Round(time.Second)),
		Color:       colorYellow,
	})
	if err != nil {
		d.pending.remove(req.id)
		return types.InputResult{}, err
	}

	return d.pending.await(req, timeout), nil
}

func (d *DiscordAdapter) sendEmbed(channelID string, embed discordEmbed) error {
	body := map[string]any{
		"embeds": []discordEmbed{embed},
	}
	_, err := d.apiCall("POST", "/channels/"+channelID+"/messages", body)
	return err
}

func (d *DiscordAdapter) sendChannelID() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.ChannelID != "" {
		return d.cfg.ChannelID, nil
	}
	if d.lastChannelID != "" {
		return d.lastChannelID, nil
	}
	return "", fmt.Errorf("no discord channel to send to")
}

// apiCall makes an API call to Discord
func (d *DiscordAdapter) apiCall(method, path string, body any) ([]byte, error) {
	url := discordAPIBase + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+d.cfg.BotToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discord API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
