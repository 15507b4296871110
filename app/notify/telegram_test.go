package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type mediaItem struct {
	Type    string `json:"type"`
	Media   string `json:"media"`
	Caption string `json:"caption"`
}

type call struct {
	method string
	fields map[string]string
	files  []string
}

type fakeTelegram struct {
	mu      sync.Mutex
	calls   []call
	failing map[string]bool
}

func (f *fakeTelegram) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/bottest-token/") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		method := strings.TrimPrefix(r.URL.Path, "/bottest-token/")

		c := call{method: method, fields: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("Failed to parse multipart body: %v", err)
			}
			for k, v := range r.MultipartForm.Value {
				c.fields[k] = v[0]
			}
			for k := range r.MultipartForm.File {
				c.files = append(c.files, k)
			}
		} else {
			if err := r.ParseForm(); err != nil {
				t.Errorf("Failed to parse form body: %v", err)
			}
			for k, v := range r.PostForm {
				c.fields[k] = v[0]
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, c)
		failing := f.failing[method]
		f.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"Bad Request: wrong file"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})
}

func (f *fakeTelegram) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func newTestNotifier(t *testing.T, failing ...string) (Notifier, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{failing: map[string]bool{}}
	for _, m := range failing {
		fake.failing[m] = true
	}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	return NewNotifier(server.URL, "test-token", "-100123", time.Second), fake
}

func TestPublishAlbum(t *testing.T) {
	n, fake := newTestNotifier(t)

	posts := []Post{
		{Title: "A", Caption: "A", Photo: []byte{0xFF, 0xD8, 0xFF}},
		{Title: "B", Caption: "B", PhotoURL: "https://cdn/b.jpg"},
		{Title: "C", Caption: "C"},
	}

	if !n.Publish(context.Background(), posts) {
		t.Fatal("Expected publish to succeed")
	}

	if got := fake.methods(); len(got) != 1 || got[0] != "sendMediaGroup" {
		t.Fatalf("Expected [sendMediaGroup], got %v", got)
	}

	c := fake.calls[0]
	if c.fields["chat_id"] != "-100123" {
		t.Errorf("Expected chat id, got %q", c.fields["chat_id"])
	}

	var media []mediaItem
	if err := json.Unmarshal([]byte(c.fields["media"]), &media); err != nil {
		t.Fatal(err)
	}
	if len(media) != 2 {
		t.Fatalf("Expected 2 media items, got %d", len(media))
	}
	if !strings.HasPrefix(media[0].Media, "attach://") || media[1].Media != "https://cdn/b.jpg" {
		t.Errorf("Unexpected media references: %+v", media)
	}
	attached := strings.TrimPrefix(media[0].Media, "attach://")
	if len(c.files) != 1 || c.files[0] != attached {
		t.Errorf("Expected one uploaded file %s, got %v", attached, c.files)
	}
}

func TestPublishSinglePhoto(t *testing.T) {
	n, fake := newTestNotifier(t)

	posts := []Post{
		{Title: "A", Caption: "A\nhttps://site/article.html?path=x", PhotoURL: "https://cdn/a.jpg"},
		{Title: "B", Caption: "B"},
	}

	if !n.Publish(context.Background(), posts) {
		t.Fatal("Expected publish to succeed")
	}

	if got := fake.methods(); len(got) != 1 || got[0] != "sendPhoto" {
		t.Fatalf("Expected [sendPhoto], got %v", got)
	}
	if fake.calls[0].fields["photo"] != "https://cdn/a.jpg" {
		t.Errorf("Expected original URL to be sent, got %q", fake.calls[0].fields["photo"])
	}
	if !strings.Contains(fake.calls[0].fields["caption"], "article.html") {
		t.Errorf("Expected caption with permalink, got %q", fake.calls[0].fields["caption"])
	}
}

func TestPublishTextOnly(t *testing.T) {
	n, fake := newTestNotifier(t)

	if !n.Publish(context.Background(), []Post{{Title: "A", Caption: "A"}, {Title: "B", Caption: "B"}}) {
		t.Fatal("Expected publish to succeed")
	}

	if got := fake.methods(); len(got) != 1 || got[0] != "sendMessage" {
		t.Fatalf("Expected [sendMessage], got %v", got)
	}
	text := fake.calls[0].fields["text"]
	if !strings.Contains(text, "• A\n• B") {
		t.Errorf("Expected bullet list, got %q", text)
	}
}

func TestPublishTextListsTitlesOnly(t *testing.T) {
	n, fake := newTestNotifier(t)

	posts := []Post{
		{Title: "A", Caption: "A\nhttps://site/article.html?path=a"},
		{Title: "B", Caption: "B\nhttps://site/article.html?path=b"},
	}
	if !n.Publish(context.Background(), posts) {
		t.Fatal("Expected publish to succeed")
	}

	text := fake.calls[0].fields["text"]
	if !strings.HasSuffix(text, "\n\n• A\n• B") {
		t.Errorf("Expected one bullet per title, got %q", text)
	}
	if strings.Contains(text, "article.html") {
		t.Errorf("Expected no permalinks in the text list, got %q", text)
	}
}

func TestPublishChannelUsername(t *testing.T) {
	fake := &fakeTelegram{failing: map[string]bool{}}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	n := NewNotifier(server.URL, "test-token", "@anime_news", time.Second)
	if !n.Publish(context.Background(), []Post{{Title: "A", Caption: "A"}}) {
		t.Fatal("Expected publish to succeed")
	}
	if got := fake.calls[0].fields["chat_id"]; got != "@anime_news" {
		t.Errorf("Expected chat id @anime_news, got %q", got)
	}
}

func TestPublishCancelledContext(t *testing.T) {
	n, fake := newTestNotifier(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if n.Publish(ctx, []Post{{Title: "A", Caption: "A", PhotoURL: "https://cdn/a.jpg"}}) {
		t.Error("Expected publish to fail on a cancelled context")
	}
	if len(fake.methods()) != 0 {
		t.Errorf("Expected no API calls, got %v", fake.methods())
	}
}

func TestPublishFallbacks(t *testing.T) {
	posts := []Post{
		{Title: "A", Caption: "A", PhotoURL: "https://cdn/a.jpg"},
		{Title: "B", Caption: "B", PhotoURL: "https://cdn/b.jpg"},
	}

	n, fake := newTestNotifier(t, "sendMediaGroup")
	if !n.Publish(context.Background(), posts) {
		t.Fatal("Expected fallback to single photo to succeed")
	}
	if got := strings.Join(fake.methods(), ","); got != "sendMediaGroup,sendPhoto" {
		t.Errorf("Expected album then photo, got %s", got)
	}

	n, fake = newTestNotifier(t, "sendMediaGroup", "sendPhoto")
	if !n.Publish(context.Background(), posts) {
		t.Fatal("Expected fallback to text to succeed")
	}
	if got := strings.Join(fake.methods(), ","); got != "sendMediaGroup,sendPhoto,sendMessage" {
		t.Errorf("Expected album, photo, message, got %s", got)
	}

	n, _ = newTestNotifier(t, "sendMediaGroup", "sendPhoto", "sendMessage")
	if n.Publish(context.Background(), posts) {
		t.Error("Expected publish to report failure when every path fails")
	}
}

func TestPublishLimitsToFourPosts(t *testing.T) {
	n, fake := newTestNotifier(t)

	var posts []Post
	for i := 0; i < 6; i++ {
		posts = append(posts, Post{Title: "T", Caption: "T", PhotoURL: "https://cdn/x.jpg"})
	}

	n.Publish(context.Background(), posts)

	var media []mediaItem
	if err := json.Unmarshal([]byte(fake.calls[0].fields["media"]), &media); err != nil {
		t.Fatal(err)
	}
	if len(media) != 4 {
		t.Errorf("Expected 4 media items, got %d", len(media))
	}
}

func TestPublishNothing(t *testing.T) {
	n, fake := newTestNotifier(t)
	if !n.Publish(context.Background(), nil) {
		t.Error("Expected empty publish to succeed")
	}
	if len(fake.methods()) != 0 {
		t.Errorf("Expected no API calls, got %v", fake.methods())
	}
}

func TestSendVideo(t *testing.T) {
	n, fake := newTestNotifier(t)

	if !n.SendVideo(context.Background(), "Trailer", "https://www.youtube.com/watch?v=abc", "https://i.ytimg.com/vi/abc/hq.jpg") {
		t.Fatal("Expected send to succeed")
	}
	if !n.SendVideo(context.Background(), "Trailer", "https://www.youtube.com/watch?v=abc", "") {
		t.Fatal("Expected send to succeed")
	}

	if got := strings.Join(fake.methods(), ","); got != "sendPhoto,sendMessage" {
		t.Errorf("Expected photo then message, got %s", got)
	}
	if !strings.Contains(fake.calls[0].fields["caption"], "https://www.youtube.com/watch?v=abc") {
		t.Errorf("Expected caption with link, got %q", fake.calls[0].fields["caption"])
	}

	failing, _ := newTestNotifier(t, "sendPhoto")
	if failing.SendVideo(context.Background(), "Trailer", "https://y", "https://thumb") {
		t.Error("Expected failure to be reported")
	}
}

func TestNewNotifierWithoutToken(t *testing.T) {
	if _, ok := NewNotifier("", "", "chat", time.Second).(Noop); !ok {
		t.Error("Expected noop notifier without a token")
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("ا", 2000)
	got := truncate(long, maxCaptionLen)
	if utf8.RuneCountInString(got) != maxCaptionLen {
		t.Errorf("Expected %d runes, got %d", maxCaptionLen, utf8.RuneCountInString(got))
	}
	if truncate("short", 10) != "short" {
		t.Error("Expected short strings untouched")
	}
}

func TestRedactToken(t *testing.T) {
	err := redact(errTest("Post \"http://h/bot123:abc/sendPhoto\": dial tcp"), "123:abc")
	if strings.Contains(err.Error(), "123:abc") {
		t.Errorf("Expected token to be redacted, got %s", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
