// Package telegram integrates the Telegram Bot API as a channel adapter.
// In polling mode the adapter owns a long polling loop; in webhook mode raw
// updates arrive through the HTTP surface and only translation and delivery
// run here.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/mcp"
)

const channelID = "telegram"

// Adapter modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// dedupeWindow covers Telegram's webhook redelivery and polling restarts.
const dedupeWindow = 10 * time.Minute

// pollStopTimeout bounds the wait for the polling goroutine on shutdown,
// so Telegram releases the getUpdates lock before a new instance starts.
const pollStopTimeout = 10 * time.Second

// Options configures the adapter.
type Options struct {
	Token string

	// Mode is ModePolling (default) or ModeWebhook.
	Mode string

	// AllowFrom restricts senders by numeric id or username. Empty allows
	// everyone.
	AllowFrom []string
}

// Adapter translates Telegram updates into envelopes and replies back into
// chat messages.
type Adapter struct {
	*channels.BaseAdapter
	bot     *telego.Bot
	mode    string
	allow   *channels.Allowlist
	limiter *channels.SendLimiter
	dedupe  *channels.Deduper

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New validates the options and constructs the adapter. No network traffic
// happens until Initialize.
func New(opts Options) (*Adapter, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModePolling
	}
	if mode != ModePolling && mode != ModeWebhook {
		return nil, fmt.Errorf("unknown telegram mode %q", mode)
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Adapter{
		BaseAdapter: channels.NewBaseAdapter(channelID),
		bot:         bot,
		mode:        mode,
		allow:       channels.NewAllowlist(opts.AllowFrom),
		limiter:     channels.NewSendLimiter(1, 5),
		dedupe:      channels.NewDeduper(dedupeWindow),
	}, nil
}

// Initialize starts the long polling loop in polling mode. In webhook mode
// there is nothing to start.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.mode == ModeWebhook {
		slog.Info("telegram adapter ready (webhook mode)")
		return nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	a.pollCancel = cancel
	a.pollDone = make(chan struct{})

	updates, err := a.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected (polling mode)", "username", a.bot.Username())

	go func() {
		defer close(a.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				a.Receive(pollCtx, update)
			}
		}
	}()

	return nil
}

// Shutdown stops the polling loop and waits for it to exit.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.pollCancel == nil {
		return nil
	}
	a.pollCancel()

	select {
	case <-a.pollDone:
		slog.Info("telegram bot stopped")
	case <-ctx.Done():
		slog.Warn("telegram polling loop did not exit before shutdown deadline")
	case <-time.After(pollStopTimeout):
		slog.Warn("telegram polling loop did not exit within timeout")
	}
	return nil
}

// Receive translates one raw update, acknowledges slow commands and hands
// the envelope to the router. The polling loop and the webhook endpoint
// both enter here.
func (a *Adapter) Receive(ctx context.Context, raw any) *mcp.Message {
	msg := a.HandleExternalInput(ctx, raw)
	if msg == nil {
		return nil
	}
	if msg.Kind == mcp.KindError {
		// Unsupported updates answer directly when the chat is known;
		// there is nothing to route.
		if _, err := chatIDFrom(msg); err == nil {
			if err := a.Send(ctx, msg); err != nil {
				slog.Debug("telegram rejection reply failed", "error", err)
			}
		}
		return msg
	}
	a.acknowledge(msg)
	a.Dispatch(ctx, msg)
	return msg
}

// HandleExternalInput converts a Telegram update into an envelope. Accepts
// a decoded telego.Update or raw JSON bytes (webhook body). Duplicates and
// disallowed senders collapse to nil.
func (a *Adapter) HandleExternalInput(_ context.Context, raw any) *mcp.Message {
	update, err := decodeUpdate(raw)
	if err != nil {
		slog.Warn("telegram update not decodable", "error", err)
		return errorEnvelope("Atualização do Telegram inválida")
	}

	message := update.Message
	if message == nil || message.From == nil || message.Text == "" {
		env := errorEnvelope("Tipo de atualização não suportado")
		if message != nil {
			// Keep the chat address so the rejection reaches the user.
			env.Context["chat_id"] = message.Chat.ID
		}
		return env
	}

	if a.dedupe.Seen(fmt.Sprintf("%d|%d", message.Chat.ID, message.MessageID)) {
		slog.Debug("telegram update dropped as duplicate",
			"chat_id", message.Chat.ID, "message_id", message.MessageID)
		return nil
	}

	userID := strconv.FormatInt(message.From.ID, 10)
	if !a.allow.Allows(userID, message.From.Username) {
		slog.Debug("telegram message dropped, sender not allowed",
			"user_id", userID, "username", message.From.Username)
		return nil
	}

	msg := channels.ParseText(channelID, message.Text, map[string]any{
		"chat_id":    message.Chat.ID,
		"user_id":    userID,
		"username":   message.From.Username,
		"first_name": message.From.FirstName,
	})
	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"user_id", userID,
		"kind", msg.Kind,
		"preview", channels.Truncate(message.Text, 60),
	)
	return msg
}

// Send delivers a reply to the chat named by the envelope context. Quiz
// payloads go out with Markdown emphasis, everything else as plain text.
func (a *Adapter) Send(ctx context.Context, msg *mcp.Message) error {
	chatID, err := chatIDFrom(msg)
	if err != nil {
		slog.Error("telegram reply without usable chat_id", "message_id", msg.ID, "error", err)
		return err
	}

	text, isQuiz := channels.FormatReply(msg, true)
	if text == "" {
		return nil
	}
	return a.sendText(ctx, chatID, text, isQuiz)
}

func (a *Adapter) sendText(ctx context.Context, chatID int64, text string, markdown bool) error {
	if err := a.limiter.Wait(ctx, strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}

	params := tu.Message(tu.ID(chatID), text)
	if markdown {
		params.ParseMode = "Markdown"
	}
	if _, err := a.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// acknowledge tells the chat a summary or quiz is on the way. Detached and
// best-effort: webhook handling must not wait on the Bot API.
func (a *Adapter) acknowledge(msg *mcp.Message) {
	text := channels.AckText(msg)
	if text == "" {
		return
	}
	chatID, err := chatIDFrom(msg)
	if err != nil {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.sendText(sendCtx, chatID, text, false); err != nil {
			slog.Debug("telegram acknowledgement failed", "chat_id", chatID, "error", err)
		}
	}()
}

func decodeUpdate(raw any) (telego.Update, error) {
	switch v := raw.(type) {
	case telego.Update:
		return v, nil
	case *telego.Update:
		if v == nil {
			return telego.Update{}, errors.New("nil update")
		}
		return *v, nil
	case []byte:
		return unmarshalUpdate(v)
	case json.RawMessage:
		return unmarshalUpdate(v)
	default:
		return telego.Update{}, fmt.Errorf("unsupported payload type %T", raw)
	}
}

func unmarshalUpdate(data []byte) (telego.Update, error) {
	var update telego.Update
	if err := json.Unmarshal(data, &update); err != nil {
		return telego.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return update, nil
}

// chatIDFrom reads the chat id out of the envelope context. In-process it is
// an int64; after a JSON round trip it arrives as float64 or string.
func chatIDFrom(msg *mcp.Message) (int64, error) {
	if msg == nil || msg.Context == nil {
		return 0, errors.New("envelope has no context")
	}
	switch v := msg.Context["chat_id"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, errors.New("chat_id not in context")
	default:
		return 0, fmt.Errorf("chat_id has unsupported type %T", v)
	}
}

func errorEnvelope(text string) *mcp.Message {
	return mcp.NewError(channelID, "UNSUPPORTED_UPDATE", text, "")
}
