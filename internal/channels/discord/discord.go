// Package discord integrates the Discord gateway as a channel adapter.
// Commands work in guild text channels and in DMs; free-form questions are
// answered in DMs only, so guild chatter never reaches the model provider.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/mcp"
)

const channelID = "discord"

// discordMessageLimit is the Bot API cap on message content length.
const discordMessageLimit = 2000

// Options configures the adapter.
type Options struct {
	Token string

	// AllowFrom restricts senders by user id or username. Empty allows
	// everyone.
	AllowFrom []string
}

// Adapter translates Discord gateway events into envelopes and replies back
// into channel messages.
type Adapter struct {
	*channels.BaseAdapter
	session   *discordgo.Session
	allow     *channels.Allowlist
	botUserID string // populated on Initialize
}

// New validates the options and constructs the adapter. The gateway stays
// closed until Initialize.
func New(opts Options) (*Adapter, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{
		BaseAdapter: channels.NewBaseAdapter(channelID),
		session:     session,
		allow:       channels.NewAllowlist(opts.AllowFrom),
	}, nil
}

// Initialize opens the gateway connection and resolves the bot identity.
func (a *Adapter) Initialize(_ context.Context) error {
	a.session.AddHandler(a.onMessageCreate)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	a.botUserID = user.ID

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Shutdown closes the gateway connection.
func (a *Adapter) Shutdown(_ context.Context) error {
	slog.Info("discord bot stopping")
	return a.session.Close()
}

// onMessageCreate receives gateway message events. discordgo runs each
// handler on its own goroutine, so dispatching inline does not stall the
// event loop.
func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg := a.HandleExternalInput(context.Background(), m)
	if msg == nil {
		return
	}
	a.acknowledge(msg)
	a.Dispatch(context.Background(), msg)
}

// HandleExternalInput converts a gateway message event into an envelope.
// The bot's own messages, other bots, guild chatter that is not a command
// and disallowed senders all collapse to nil.
func (a *Adapter) HandleExternalInput(_ context.Context, raw any) *mcp.Message {
	m, ok := raw.(*discordgo.MessageCreate)
	if !ok || m == nil || m.Message == nil {
		slog.Warn("discord payload not decodable", "payload_type", fmt.Sprintf("%T", raw))
		return mcp.NewError(channelID, "UNSUPPORTED_UPDATE", "Evento do Discord inválido", "")
	}
	if m.Author == nil || m.Author.ID == a.botUserID || m.Author.Bot {
		return nil
	}

	content := strings.TrimSpace(a.stripBotMention(m.Content))
	if content == "" {
		return nil
	}
	if m.GuildID != "" && !strings.HasPrefix(content, "/") {
		slog.Debug("discord guild message ignored, not a command",
			"channel_id", m.ChannelID, "user_id", m.Author.ID)
		return nil
	}
	if !a.allow.Allows(m.Author.ID, m.Author.Username) {
		slog.Debug("discord message dropped, sender not allowed",
			"user_id", m.Author.ID, "username", m.Author.Username)
		return nil
	}

	msg := channels.ParseText(channelID, content, map[string]any{
		"channel_id":   m.ChannelID,
		"guild_id":     m.GuildID,
		"user_id":      m.Author.ID,
		"username":     m.Author.Username,
		"display_name": displayName(m),
	})
	slog.Debug("discord message received",
		"channel_id", m.ChannelID,
		"user_id", m.Author.ID,
		"kind", msg.Kind,
		"preview", channels.Truncate(content, 60),
	)
	return msg
}

// Send delivers a reply to the originating Discord channel. Content over
// the message limit goes out in chunks; discordgo paces requests against
// Discord's rate limit headers on its own.
func (a *Adapter) Send(_ context.Context, msg *mcp.Message) error {
	target, err := targetChannel(msg)
	if err != nil {
		slog.Error("discord reply without usable channel_id", "message_id", msg.ID, "error", err)
		return err
	}

	text, _ := channels.FormatReply(msg, false)
	if text == "" {
		return nil
	}
	return a.sendChunked(target, text)
}

func (a *Adapter) sendChunked(target, content string) error {
	for content != "" {
		chunk, rest := splitChunk(content)
		if _, err := a.session.ChannelMessageSend(target, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
		content = rest
	}
	return nil
}

// acknowledge posts the interim "Gerando..." note before the agent round
// trip. Detached and best-effort.
func (a *Adapter) acknowledge(msg *mcp.Message) {
	text := channels.AckText(msg)
	if text == "" {
		return
	}
	target, err := targetChannel(msg)
	if err != nil {
		return
	}
	go func() {
		if _, err := a.session.ChannelMessageSend(target, text); err != nil {
			slog.Debug("discord acknowledgement failed", "channel_id", target, "error", err)
		}
	}()
}

// stripBotMention removes a leading @bot mention so "@bot /quiz Go" parses
// as a command. Raw content renders mentions as <@id> or <@!id>.
func (a *Adapter) stripBotMention(content string) string {
	if a.botUserID == "" {
		return content
	}
	for _, prefix := range []string{"<@" + a.botUserID + ">", "<@!" + a.botUserID + ">"} {
		if strings.HasPrefix(content, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(content, prefix))
		}
	}
	return content
}

// splitChunk cuts content at the message limit, preferring a newline break
// in the second half so lines stay intact.
func splitChunk(content string) (chunk, rest string) {
	if len(content) <= discordMessageLimit {
		return content, ""
	}
	cutAt := discordMessageLimit
	if idx := strings.LastIndexByte(content[:discordMessageLimit], '\n'); idx > discordMessageLimit/2 {
		cutAt = idx + 1
	}
	return content[:cutAt], content[cutAt:]
}

// displayName picks the friendliest available name for the author. Server
// nickname wins over the global display name over the username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// targetChannel reads the Discord channel id out of the envelope context.
func targetChannel(msg *mcp.Message) (string, error) {
	if msg == nil || msg.Context == nil {
		return "", errors.New("envelope has no context")
	}
	id := msg.ContextString("channel_id")
	if id == "" {
		return "", errors.New("channel_id not in context")
	}
	return id, nil
}
