package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"shortsbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	texts   []domain.OutboundText
	videos  []domain.OutboundVideo
	deleted []int

	textErr    error
	videoErr   error
	deleteErr  error
	blockVideo bool // SendVideo waits for ctx to be done
}

func (f *fakeTransport) SendText(ctx context.Context, msg domain.OutboundText) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return 0, f.textErr
	}
	f.nextID++
	f.texts = append(f.texts, msg)
	return 1000 + f.nextID, nil
}

func (f *fakeTransport) SendVideo(ctx context.Context, msg domain.OutboundVideo) error {
	if f.blockVideo {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return f.videoErr
	}
	f.videos = append(f.videos, msg)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.deleteErr
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.texts {
		out = append(out, t.Text)
	}
	return out
}

// closeTracker records whether the media stream was closed.
type closeTracker struct {
	io.Reader
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	title string
	err   error
	body  *closeTracker
}

func (f *fakeResolver) Resolve(ctx context.Context, url string) (*domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.body = &closeTracker{Reader: strings.NewReader("mp4")}
	return &domain.Media{Title: f.title, URL: url, VideoID: "abc123", Body: f.body}, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRegistry struct {
	mu          sync.Mutex
	users       map[int64]domain.User
	getCalls    int
	createCalls int
	getErr      error
	createErr   error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{users: make(map[int64]domain.User)}
}

func (f *fakeRegistry) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeRegistry) CreateUser(ctx context.Context, u domain.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.users[u.ID]; ok {
		return false, nil
	}
	f.users[u.ID] = u
	return true, nil
}

func (f *fakeRegistry) CountUsers(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeRegistry) Close() error { return nil }

func textMessage(text string) domain.InboundMessage {
	return domain.InboundMessage{
		UpdateID:  1,
		ChatID:    42,
		MessageID: 7,
		Sender:    domain.User{ID: 42, Username: "gopher", FirstName: "Go"},
		Text:      text,
	}
}
