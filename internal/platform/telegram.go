package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// TelegramAdapter bridges the Telegram Bot API over long polling.
type TelegramAdapter struct {
	cfg     config.TelegramConfig
	baseURL string
	client  *http.Client
	log     *logger.Logger
	pending pendingInputs
	handler InboundHandler

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	offset     int64
	lastChatID int64
}

// telegramUpdate represents a Telegram update from getUpdates
type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message,omitempty"`
}

// telegramMessage represents a Telegram message
type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *telegramUser `json:"from,omitempty"`
	Chat      *telegramChat `json:"chat"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
}

// telegramUser represents a Telegram user
type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// telegramChat represents a Telegram chat
type telegramChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// telegramResponse is the generic API response wrapper
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// NewTelegramAdapter creates a Telegram adapter from config.
func NewTelegramAdapter(cfg config.TelegramConfig, log *logger.Logger) *TelegramAdapter {
	return &TelegramAdapter{
		cfg:     cfg,
		baseURL: "https://api.telegram.org/bot" + cfg.BotToken,
		client: &http.Client{
			Timeout: 60 * time.Second, // Long polling timeout
		},
		log: log.WithComponent("telegram"),
	}
}

// Name implements Adapter.
func (t *TelegramAdapter) Name() string {
	return "telegram"
}

// SetHandler implements Adapter.
func (t *TelegramAdapter) SetHandler(handler InboundHandler) {
	t.handler = handler
}

// Initialize connects to Telegram and starts the polling loop.
func (t *TelegramAdapter) Initialize() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("telegram adapter is already running")
	}
	t.running = true
	var ctx context.Context
	ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	t.log.Info("📱 Telegram adapter starting...")

	me, err := t.getMe()
	if err != nil {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	t.log.Info("📱 Telegram connected: @%s", me.Username)

	go t.pollLoop(ctx)

	return nil
}

// IsAvailable implements Adapter.
func (t *TelegramAdapter) IsAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && (t.cfg.ChatID != "" || t.lastChatID != 0)
}

// Cleanup stops the polling loop.
func (t *TelegramAdapter) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.running = false
	return nil
}

// getMe returns bot info
func (t *TelegramAdapter) getMe() (*telegramUser, error) {
	resp, err := t.call("getMe", nil)
	if err != nil {
		return nil, err
	}

	var user telegramUser
	if err := json.Unmarshal(resp.Result, &user); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &user, nil
}

// pollLoop continuously polls for updates
func (t *TelegramAdapter) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.log.Info("📱 Telegram adapter stopped")
			return
		default:
			if err := t.poll(); err != nil {
				t.log.Error("❌ Telegram poll error: %v", err)
				time.Sleep(5 * time.Second) // Back off on error
			}
		}
	}
}

// poll fetches and processes updates
func (t *TelegramAdapter) poll() error {
	params := map[string]any{
		"offset":          t.offset,
		"timeout":         30, // Long polling
		"allowed_updates": []string{"message"},
	}

	resp, err := t.call("getUpdates", params)
	if err != nil {
		return err
	}

	var updates []telegramUpdate
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return fmt.Errorf("failed to parse updates: %w", err)
	}

	for _, update := range updates {
		// Advance offset to acknowledge this update
		if update.UpdateID >= t.offset {
			t.offset = update.UpdateID + 1
		}

		if update.Message != nil && update.Message.Text != "" {
			t.handleMessage(update.Message)
		}
	}

	return nil
}

// handleMessage filters an incoming message, lets a pending input
// request consume it, and otherwise forwards it to the handler.
func (t *TelegramAdapter) handleMessage(tgMsg *telegramMessage) {
	msg := types.ChatMessage{
		ID:        strconv.FormatInt(tgMsg.MessageID, 10),
		Text:      tgMsg.Text,
		ChannelID: strconv.FormatInt(tgMsg.Chat.ID, 10),
		Timestamp: time.Unix(tgMsg.Date, 0),
		Platform:  "telegram",
	}
	if tgMsg.From != nil {
		msg.AuthorID = strconv.FormatInt(tgMsg.From.ID, 10)
		msg.AuthorName = tgMsg.From.Username
		if msg.AuthorName == "" {
			msg.AuthorName = tgMsg.From.FirstName
		}
		msg.IsBot = tgMsg.From.IsBot
	}

	if !shouldAccept(msg, t.cfg.ChatID, t.cfg.UserID) {
		return
	}

	t.mu.Lock()
	t.lastChatID = tgMsg.Chat.ID
	t.mu.Unlock()

	t.log.Info("📨 [telegram] %s: %s", msg.AuthorName, TruncateForPreview(msg.Text, 80))

	if t.pending.resolveOldest(msg.Text) {
		return
	}

	if t.handler != nil {
		t.handler(msg)
	}
}

// SendMessage implements Adapter. Long content is split to fit
// Telegram's message limit.
func (t *TelegramAdapter) SendMessage(content string, urgent bool) error {
	if urgent {
		content = "🚨 *URGENT*\n\n" + content
	}

	for _, part := range SplitMessage(content, telegramSafeLength) {
		if err := t.send(part); err != nil {
			return err
		}
	}
	return nil
}

// SendStatusUpdate implements Adapter.
func (t *TelegramAdapter) SendStatusUpdate(status, details string, progress int) error {
	text := fmt.Sprintf("📊 *%s*", status)
	if details != "" {
		text += "\n" + details
	}
	if progress >= 0 {
		text += fmt.Sprintf("\n`%s` %d%%", ProgressBar(progress), progress)
	}
	return t.send(text)
}

// RequestInput implements Adapter. The reply is correlated FIFO with
// pending requests; a timeout is returned as a result, not an error.
func (t *TelegramAdapter) RequestInput(prompt string, timeout time.Duration) (types.InputResult, error) {
	req := t.pending.add(prompt)

	text := fmt.Sprintf("❓ *Input needed*\n\n%s\n\n_Reply in this chat within %s._", prompt, timeout.Round(time.Second))
	if err := t.send(text); err != nil {
		t.pending.remove(req.id)
		return types.InputResult{}, err
	}

	return t.pending.await(req, timeout), nil
}

// send delivers one message to the configured (or last seen) chat.
func (t *TelegramAdapter) send(text string) error {
	params := map[string]any{
		"text":       text,
		"parse_mode": "Markdown",
	}

	t.mu.Lock()
	chatID := t.cfg.ChatID
	lastChatID := t.lastChatID
	t.mu.Unlock()

	switch {
	case chatID != "":
		params["chat_id"] = chatID
	case lastChatID != 0:
		params["chat_id"] = lastChatID
	default:
		return fmt.Errorf("no telegram chat to send to")
	}

	_, err := t.call("sendMessage", params)
	return err
}

// call makes an API call to Telegram
func (t *TelegramAdapter) call(method string, params map[string]any) (*telegramResponse, error) {
	url := t.baseURL + "/" + method

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(respBody, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !tgResp.OK {
		return nil, fmt.Errorf("telegram API error: %s (code: %d)", tgResp.Description, tgResp.ErrorCode)
	}

	return &tgResp, nil
}
