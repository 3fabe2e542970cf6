package telegram

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/estudolab/estudai/internal/channels"
	"github.com/estudolab/estudai/internal/mcp"
)

const testToken = "110201543:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw1"

func newTestAdapter(t *testing.T, opts Options) *Adapter {
	t.Helper()
	if opts.Token == "" {
		opts.Token = testToken
	}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func textUpdate(chatID int64, messageID int, userID int64, username, text string) telego.Update {
	return telego.Update{
		UpdateID: messageID,
		Message: &telego.Message{
			MessageID: messageID,
			From:      &telego.User{ID: userID, Username: username, FirstName: "Ana"},
			Chat:      telego.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	}
}

// TestNew_Validation rejects missing tokens and unknown modes.
func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New without token returned nil error")
	}
	if _, err := New(Options{Token: testToken, Mode: "push"}); err == nil {
		t.Error("New with unknown mode returned nil error")
	}
	if _, err := New(Options{Token: testToken, Mode: ModeWebhook}); err != nil {
		t.Errorf("New(webhook) error = %v", err)
	}
}

// TestAdapter_TranslateCommand turns a bot command into a study command
// envelope with the chat context attached.
func TestAdapter_TranslateCommand(t *testing.T) {
	a := newTestAdapter(t, Options{})

	msg := a.HandleExternalInput(context.Background(), textUpdate(42, 1, 7, "ana", "/resumo HTTP"))
	if msg == nil {
		t.Fatal("HandleExternalInput returned nil")
	}
	if msg.Kind != mcp.KindCommand || msg.Command != "resumo" {
		t.Fatalf("envelope = %s/%s, want command/resumo", msg.Kind, msg.Command)
	}
	if msg.Target != channels.StudyAgentID {
		t.Errorf("Target = %q, want %q", msg.Target, channels.StudyAgentID)
	}
	if msg.Parameters["topico"] != "HTTP" {
		t.Errorf("Parameters = %v", msg.Parameters)
	}
	if msg.UserID != "7" {
		t.Errorf("UserID = %q, want %q", msg.UserID, "7")
	}
	if msg.Context["chat_id"] != int64(42) {
		t.Errorf("chat_id = %v, want 42", msg.Context["chat_id"])
	}
	if msg.Context["username"] != "ana" || msg.Context["first_name"] != "Ana" {
		t.Errorf("context = %v", msg.Context)
	}
}

// TestAdapter_TranslateQuery turns plain text into a query envelope.
func TestAdapter_TranslateQuery(t *testing.T) {
	a := newTestAdapter(t, Options{})

	msg := a.HandleExternalInput(context.Background(), textUpdate(42, 2, 7, "ana", "o que é DNS?"))
	if msg == nil || msg.Kind != mcp.KindQuery {
		t.Fatalf("envelope = %v, want query", msg)
	}
	if msg.Query != "o que é DNS?" {
		t.Errorf("Query = %q", msg.Query)
	}
}

// TestAdapter_UnsupportedUpdate yields an error envelope for updates that
// carry no usable message.
func TestAdapter_UnsupportedUpdate(t *testing.T) {
	a := newTestAdapter(t, Options{})

	tests := []struct {
		name   string
		update telego.Update
	}{
		{name: "no message", update: telego.Update{UpdateID: 9}},
		{
			name: "no text",
			update: telego.Update{Message: &telego.Message{
				MessageID: 3,
				From:      &telego.User{ID: 7},
				Chat:      telego.Chat{ID: 42},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := a.HandleExternalInput(context.Background(), tt.update)
			if msg == nil || msg.Kind != mcp.KindError {
				t.Fatalf("envelope = %v, want error kind", msg)
			}
			if msg.ErrorMessage != "Tipo de atualização não suportado" {
				t.Errorf("ErrorMessage = %q", msg.ErrorMessage)
			}
			if msg.Source != channelID {
				t.Errorf("Source = %q, want %q", msg.Source, channelID)
			}
		})
	}
}

// TestAdapter_DuplicateUpdate collapses redelivered updates to nil.
func TestAdapter_DuplicateUpdate(t *testing.T) {
	a := newTestAdapter(t, Options{})
	update := textUpdate(42, 77, 7, "ana", "/start")

	if msg := a.HandleExternalInput(context.Background(), update); msg == nil {
		t.Fatal("first delivery dropped")
	}
	if msg := a.HandleExternalInput(context.Background(), update); msg != nil {
		t.Errorf("second delivery produced %v, want nil", msg)
	}
}

// TestAdapter_AllowFrom drops senders outside the allowlist, matching by id
// or username.
func TestAdapter_AllowFrom(t *testing.T) {
	a := newTestAdapter(t, Options{AllowFrom: []string{"@ana", "99"}})
	ctx := context.Background()

	if msg := a.HandleExternalInput(ctx, textUpdate(42, 1, 7, "ana", "oi")); msg == nil {
		t.Error("allowed username dropped")
	}
	if msg := a.HandleExternalInput(ctx, textUpdate(42, 2, 99, "", "oi")); msg == nil {
		t.Error("allowed id dropped")
	}
	if msg := a.HandleExternalInput(ctx, textUpdate(42, 3, 8, "bob", "oi")); msg != nil {
		t.Errorf("disallowed sender produced %v, want nil", msg)
	}
}

// TestAdapter_RawJSONUpdate decodes webhook bodies.
func TestAdapter_RawJSONUpdate(t *testing.T) {
	a := newTestAdapter(t, Options{Mode: ModeWebhook})

	body := []byte(`{
		"update_id": 5,
		"message": {
			"message_id": 11,
			"from": {"id": 7, "is_bot": false, "first_name": "Ana", "username": "ana"},
			"chat": {"id": 42, "type": "private"},
			"date": 1700000000,
			"text": "/quiz HTTP"
		}
	}`)

	msg := a.HandleExternalInput(context.Background(), body)
	if msg == nil || msg.Command != "quiz" {
		t.Fatalf("envelope = %v, want quiz command", msg)
	}
	if msg.Parameters["topico"] != "HTTP" {
		t.Errorf("Parameters = %v", msg.Parameters)
	}

	bad := a.HandleExternalInput(context.Background(), []byte("{nope"))
	if bad == nil || bad.Kind != mcp.KindError {
		t.Fatalf("envelope = %v, want error kind", bad)
	}
	if bad.ErrorMessage != "Atualização do Telegram inválida" {
		t.Errorf("ErrorMessage = %q", bad.ErrorMessage)
	}
}

// TestAdapter_ReceiveDispatches hands translated envelopes to the bound
// router callback.
func TestAdapter_ReceiveDispatches(t *testing.T) {
	a := newTestAdapter(t, Options{Mode: ModeWebhook})

	var got *mcp.Message
	a.Bind(func(_ context.Context, m *mcp.Message) { got = m })

	msg := a.Receive(context.Background(), textUpdate(42, 21, 7, "ana", "/start"))
	if msg == nil {
		t.Fatal("Receive returned nil")
	}
	if got != msg {
		t.Error("router callback did not receive the envelope")
	}
}

// TestAdapter_WebhookLifecycle needs no polling loop.
func TestAdapter_WebhookLifecycle(t *testing.T) {
	a := newTestAdapter(t, Options{Mode: ModeWebhook})
	ctx := context.Background()

	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

// TestChatIDFrom accepts the types a chat id takes across process and wire
// boundaries.
func TestChatIDFrom(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{name: "int64", value: int64(42), want: 42},
		{name: "float64", value: float64(42), want: 42},
		{name: "string", value: "42", want: 42},
		{name: "bad string", value: "x", wantErr: true},
		{name: "missing", value: nil, wantErr: true},
		{name: "wrong type", value: []int{1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := mcp.NewQuery(channelID, "oi")
			if tt.value != nil {
				msg.Context["chat_id"] = tt.value
			}
			got, err := chatIDFrom(msg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("chatIDFrom returned nil error")
				}
				return
			}
			if err != nil {
				t.Fatalf("chatIDFrom error = %v", err)
			}
			if got != tt.want {
				t.Errorf("chatIDFrom = %d, want %d", got, tt.want)
			}
		})
	}
}
