package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"aninotify/internal/db"
	"aninotify/internal/report"
)

type fakeSubscribers struct {
	users []db.User
	err   error
}

func (f fakeSubscribers) ListSubscribers(ctx context.Context, titleID string) ([]db.User, error) {
	return f.users, f.err
}

type countingChannel struct {
	calls  atomic.Int32
	failOn string
}

func (c *countingChannel) Name() string           { return "counting" }
func (c *countingChannel) Enabled(u db.User) bool { return u.Username != "disabled" }
func (c *countingChannel) Send(ctx context.Context, u db.User, title db.Title, ep db.Episode) error {
	c.calls.Add(1)
	if u.Username == c.failOn {
		return errors.New("boom")
	}
	return nil
}

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Capture(err error, fields report.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

var (
	testTitle   = db.Title{ID: "21", Title: "One Piece"}
	testEpisode = db.Episode{TitleID: "21", Number: 1100, Dub: true, Providers: "gogoanime,zoro", Title: "The Dawn", Image: "https://img/ep.jpg"}
)

func TestNotify_NoSubscribersNoDeliveries(t *testing.T) {
	ch := &countingChannel{}
	n := New(fakeSubscribers{}, nil, 2, ch)

	s := n.Notify(context.Background(), testTitle, testEpisode)
	if s != (Summary{}) {
		t.Fatalf("Summary = %+v, want zero", s)
	}
	if ch.calls.Load() != 0 {
		t.Fatalf("deliveries = %d, want 0", ch.calls.Load())
	}
}

func TestNotifyAll_CountsFailuresAndSkipsDisabled(t *testing.T) {
	ch := &countingChannel{failOn: "bob"}
	sink := &recordingSink{}
	users := []db.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}, {ID: 3, Username: "disabled"}}
	n := New(fakeSubscribers{users: users}, sink, 2, ch)

	eps := []db.Episode{testEpisode, {TitleID: "21", Number: 1101, Providers: "zoro"}}
	s := n.NotifyAll(context.Background(), testTitle, eps)

	want := Summary{Subscribers: 3, Attempted: 4, Failed: 2}
	if s != want {
		t.Fatalf("Summary = %+v, want %+v", s, want)
	}
	if len(sink.errs) != 2 {
		t.Fatalf("captured = %d, want 2", len(sink.errs))
	}
}

func TestNotify_SubscriberLookupFailureIsReported(t *testing.T) {
	sink := &recordingSink{}
	n := New(fakeSubscribers{err: errors.New("db down")}, sink, 1, &countingChannel{})

	if s := n.Notify(context.Background(), testTitle, testEpisode); s != (Summary{}) {
		t.Fatalf("Summary = %+v, want zero", s)
	}
	if len(sink.errs) != 1 {
		t.Fatalf("captured = %d, want 1", len(sink.errs))
	}
}

func TestDiscord_PostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := NewDiscord(0)
	u := db.User{Username: "alice", DiscordWebhook: srv.URL}
	if err := d.Send(context.Background(), u, testTitle, testEpisode); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Color != 11730954 || e.Author.Name != "Ani-Notify" {
		t.Fatalf("embed = %+v", e)
	}
	if e.Title != "Episode 1100 (Dub) of One Piece is out!" {
		t.Fatalf("title = %q", e.Title)
	}
	if !strings.Contains(e.Description, "You can watch it on Gogoanime, Zoro") || !strings.Contains(e.Description, "Language: Dub") {
		t.Fatalf("description = %q", e.Description)
	}
	if e.Image == nil || e.Image.URL != "https://img/ep.jpg" {
		t.Fatalf("image = %+v", e.Image)
	}
}

func TestDiscord_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown webhook", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	err := NewDiscord(5).Send(context.Background(), db.User{DiscordWebhook: srv.URL}, testTitle, testEpisode)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Send() error = %v, want status 404", err)
	}
}

func TestNtfy_PostsPlainTextWithAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("Content-Type = %q, want text/plain", ct)
		}
		if a := r.Header.Get("Attach"); a != "https://img/ep.jpg" {
			t.Errorf("Attach = %q", a)
		}
		if title := r.Header.Get("Title"); title != "Episode 1100 (Dub) of One Piece is out!" {
			t.Errorf("Title = %q", title)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(body), "Episode 1100 (Dub) of One Piece is out!\n\nTitle: The Dawn") {
			t.Errorf("body = %q", body)
		}
	}))
	t.Cleanup(srv.Close)

	if err := NewNtfy().Send(context.Background(), db.User{NtfyURL: srv.URL}, testTitle, testEpisode); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestNtfy_NoImageNoAttachHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Attach"]; ok {
			t.Errorf("Attach header set without image")
		}
	}))
	t.Cleanup(srv.Close)

	ep := testEpisode
	ep.Image = ""
	if err := NewNtfy().Send(context.Background(), db.User{NtfyURL: srv.URL}, testTitle, ep); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

type fakeSender struct {
	chatID int64
	html   string
}

func (f *fakeSender) SendHTML(chatID int64, html string) error {
	f.chatID = chatID
	f.html = html
	return nil
}

func TestTelegram_SendsToChat(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegram(sender)

	if tg.Enabled(db.User{}) {
		t.Fatalf("Enabled() = true for user without chat id")
	}
	u := db.User{TelegramChatID: 99}
	if err := tg.Send(context.Background(), u, testTitle, testEpisode); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sender.chatID != 99 || !strings.Contains(sender.html, "<b>Language:</b> Dub") {
		t.Fatalf("sent to %d: %q", sender.chatID, sender.html)
	}
}
