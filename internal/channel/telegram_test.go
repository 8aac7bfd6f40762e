package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shortsbot/internal/domain"
)

// fakeBotAPI is a minimal Bot API server recording calls by method name.
type fakeBotAPI struct {
	mu       sync.Mutex
	calls    map[string][]map[string]string
	uploads  [][]byte
	failWith map[string]string // method -> raw JSON response
	block    chan struct{}     // sendVideo waits on this when non-nil
}

func newFakeBotAPI(t *testing.T) (*fakeBotAPI, *httptest.Server) {
	f := &fakeBotAPI{calls: make(map[string][]map[string]string), failWith: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	fields := make(map[string]string)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if method == "sendVideo" && f.block != nil {
			select {
			case <-f.block:
			case <-r.Context().Done():
				return
			}
		}
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			if fh := r.MultipartForm.File["video"]; len(fh) > 0 {
				file, _ := fh[0].Open()
				data, _ := io.ReadAll(file)
				file.Close()
				f.mu.Lock()
				f.uploads = append(f.uploads, data)
				f.mu.Unlock()
			}
		}
	} else {
		r.ParseForm()
		for k, v := range r.Form {
			fields[k] = v[0]
		}
	}

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], fields)
	n := len(f.calls[method])
	fail, failing := f.failWith[method]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		io.WriteString(w, fail)
		return
	}

	switch method {
	case "getMe":
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Shorts","username":"shorts_test_bot"}}`)
	case "sendMessage", "sendVideo":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":1,"type":"private"}}}`, 100+n)
	default:
		io.WriteString(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) lastCall(method string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[method]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	f, srv := newFakeBotAPI(t)
	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
		HTTPClient:  srv.Client(),
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	return tg, f
}

func TestNewTelegram_GetMe(t *testing.T) {
	tg, _ := newTestTelegram(t)
	if tg.Username() != "shorts_test_bot" {
		t.Fatalf("username = %q", tg.Username())
	}
}

func TestNewTelegram_Unauthorized(t *testing.T) {
	f, srv := newFakeBotAPI(t)
	f.failWith["getMe"] = `{"ok":false,"error_code":401,"description":"Unauthorized"}`

	_, err := NewTelegram(TelegramConfig{Token: "bad", APIEndpoint: srv.URL + "/bot%s/%s", HTTPClient: srv.Client(), Logger: testLogger()})
	if domain.KindOf(err) != domain.KindRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestSendText(t *testing.T) {
	tg, f := newTestTelegram(t)

	id, err := tg.SendText(context.Background(), domain.OutboundText{ChatID: 42, Text: "*hi*", ParseMode: "Markdown", ReplyTo: 9})
	if err != nil {
		t.Fatal(err)
	}
	if id != 101 {
		t.Fatalf("message id = %d", id)
	}
	call := f.lastCall("sendMessage")
	if call["chat_id"] != "42" || call["text"] != "*hi*" || call["parse_mode"] != "Markdown" || call["reply_to_message_id"] != "9" {
		t.Fatalf("unexpected params: %v", call)
	}
}

func TestSendText_Blocked(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.failWith["sendMessage"] = `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`

	_, err := tg.SendText(context.Background(), domain.OutboundText{ChatID: 42, Text: "hi"})
	if domain.KindOf(err) != domain.KindBlocked {
		t.Fatalf("expected blocked, got %v", err)
	}
}

func TestSendVideo(t *testing.T) {
	tg, f := newTestTelegram(t)

	media := &domain.Media{
		VideoID:  "abc123",
		Duration: 42 * time.Second,
		Body:     io.NopCloser(bytes.NewReader([]byte("fake mp4 payload"))),
	}
	err := tg.SendVideo(context.Background(), domain.OutboundVideo{
		ChatID:    42,
		ReplyTo:   55,
		Caption:   "[title](https://youtube.com/shorts/abc123)",
		ParseMode: "Markdown",
		Media:     media,
	})
	if err != nil {
		t.Fatal(err)
	}

	call := f.lastCall("sendVideo")
	if call["chat_id"] != "42" || call["reply_to_message_id"] != "55" || call["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected params: %v", call)
	}
	if call["caption"] != "[title](https://youtube.com/shorts/abc123)" || call["supports_streaming"] != "true" || call["duration"] != "42" {
		t.Fatalf("unexpected params: %v", call)
	}
	if len(f.uploads) != 1 || string(f.uploads[0]) != "fake mp4 payload" {
		t.Fatalf("unexpected upload: %q", f.uploads)
	}
}

func TestSendVideo_TooLarge(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.failWith["sendVideo"] = `{"ok":false,"error_code":413,"description":"Request Entity Too Large"}`

	err := tg.SendVideo(context.Background(), domain.OutboundVideo{ChatID: 1, Media: &domain.Media{Body: io.NopCloser(strings.NewReader("x"))}})
	if domain.KindOf(err) != domain.KindTooLarge {
		t.Fatalf("expected too large, got %v", err)
	}
}

func TestSendVideo_Rejected(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.failWith["sendVideo"] = `{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier"}`

	err := tg.SendVideo(context.Background(), domain.OutboundVideo{ChatID: 1, Media: &domain.Media{Body: io.NopCloser(strings.NewReader("x"))}})
	if domain.KindOf(err) != domain.KindRejected {
		t.Fatalf("expected rejected, got %v", err)
	}
	if domain.DescriptionOf(err) != "Bad Request: wrong file identifier" {
		t.Fatalf("description = %q", domain.DescriptionOf(err))
	}
}

func TestSendVideo_DeadlineCancelsUpload(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.block = make(chan struct{})
	t.Cleanup(func() { close(f.block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tg.SendVideo(ctx, domain.OutboundVideo{ChatID: 1, Media: &domain.Media{Body: io.NopCloser(strings.NewReader("payload"))}})
	if domain.KindOf(err) != domain.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("SendVideo must return when the deadline passes")
	}
}

func TestSendVideo_NoMedia(t *testing.T) {
	tg, _ := newTestTelegram(t)
	if err := tg.SendVideo(context.Background(), domain.OutboundVideo{ChatID: 1}); err == nil {
		t.Fatal("expected error without media")
	}
}

func TestDeleteMessage(t *testing.T) {
	tg, f := newTestTelegram(t)

	if err := tg.DeleteMessage(context.Background(), 42, 101); err != nil {
		t.Fatal(err)
	}
	call := f.lastCall("deleteMessage")
	if call["chat_id"] != "42" || call["message_id"] != "101" {
		t.Fatalf("unexpected params: %v", call)
	}
}

func TestSetWebhook(t *testing.T) {
	tg, f := newTestTelegram(t)

	if err := tg.SetWebhook(context.Background(), "https://bot.example.com/webhook", "s3cret"); err != nil {
		t.Fatal(err)
	}
	call := f.lastCall("setWebhook")
	if call["url"] != "https://bot.example.com/webhook" || call["secret_token"] != "s3cret" {
		t.Fatalf("unexpected params: %v", call)
	}

	if err := tg.RemoveWebhook(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.lastCall("deleteWebhook") == nil {
		t.Fatal("deleteWebhook not called")
	}
}

func TestCtxReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &ctxReader{ctx: ctx, r: strings.NewReader("abcdef")}

	buf := make([]byte, 3)
	if n, err := r.Read(buf); err != nil || n != 3 {
		t.Fatalf("read = %d, %v", n, err)
	}
	cancel()
	if _, err := r.Read(buf); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConvertUpdate(t *testing.T) {
	var update tgbotapi.Update
	raw := `{
		"update_id": 9,
		"message": {
			"message_id": 3,
			"date": 1700000000,
			"from": {"id": 42, "first_name": "Go", "username": "gopher"},
			"chat": {"id": 4242, "type": "private"},
			"text": "/start@shorts_test_bot",
			"entities": [{"type": "bot_command", "offset": 0, "length": 22}]
		}
	}`
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		t.Fatal(err)
	}

	msg, ok := ConvertUpdate(update)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Command != "start" || !msg.IsCommand() {
		t.Fatalf("command = %q", msg.Command)
	}
	if msg.ChatID != 4242 || msg.Sender.ID != 42 || msg.Sender.FirstName != "Go" || msg.MessageID != 3 || msg.UpdateID != 9 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ReceivedAt.Unix() != 1700000000 {
		t.Fatalf("received at = %v", msg.ReceivedAt)
	}
}

func TestConvertUpdate_NoMessage(t *testing.T) {
	if _, ok := ConvertUpdate(tgbotapi.Update{UpdateID: 1}); ok {
		t.Fatal("update without message must be skipped")
	}
	if _, ok := ConvertUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}}); ok {
		t.Fatal("message without sender must be skipped")
	}
}

func TestNewAPIClient_BoundsRequests(t *testing.T) {
	client := newAPIClient(30)

	poll := 30 * time.Second
	if client.Timeout <= poll {
		t.Fatalf("client timeout %v must exceed the long-poll wait %v", client.Timeout, poll)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T, want *http.Transport", client.Transport)
	}
	if tr.ResponseHeaderTimeout <= poll || tr.ResponseHeaderTimeout >= client.Timeout {
		t.Errorf("ResponseHeaderTimeout = %v, want between %v and %v", tr.ResponseHeaderTimeout, poll, client.Timeout)
	}
	if tr.IdleConnTimeout == 0 || tr.TLSHandshakeTimeout == 0 {
		t.Error("idle and TLS handshake timeouts must be set")
	}
}

func TestNewTelegram_DefaultClient(t *testing.T) {
	_, srv := newFakeBotAPI(t)
	tg, err := NewTelegram(TelegramConfig{
		Token:       "123:abc",
		APIEndpoint: srv.URL + "/bot%s/%s",
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if tg.bot.Client.(*http.Client).Timeout == 0 {
		t.Fatal("default Bot API client must have a timeout")
	}
}
