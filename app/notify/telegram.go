package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bergham123/anime-news-bot/app/fault"
)

const (
	DefaultAPIBase = "https://api.telegram.org"

	maxPosts      = 4
	maxCaptionLen = 1024
	maxTextLen    = 4096

	newsHeading  = "📰 أحدث أخبار الأنمي"
	videoHeading = "🎥 %s\nشاهد على يوتيوب:\n%s"
)

// Post is one item offered to the channel. Photo holds rendered JPEG bytes;
// when it is nil PhotoURL is sent as is.
type Post struct {
	Title    string
	Caption  string
	Photo    []byte
	PhotoURL string
}

func (p Post) hasImage() bool {
	return len(p.Photo) > 0 || p.PhotoURL != ""
}

func (p Post) file(name string) tgbotapi.RequestFileData {
	if len(p.Photo) > 0 {
		return tgbotapi.FileBytes{Name: name, Bytes: p.Photo}
	}
	return tgbotapi.FileURL(p.PhotoURL)
}

// Notifier delivers posts to the channel and only reports success or failure.
type Notifier interface {
	Publish(ctx context.Context, posts []Post) bool
	SendVideo(ctx context.Context, title, link, thumbURL string) bool
}

// NewNotifier builds a Telegram notifier. Without a token a noop notifier is returned.
// The bot is not probed with getMe, so an unreachable API never blocks startup.
func NewNotifier(apiBase, token, chatID string, timeout time.Duration) Notifier {
	token = strings.TrimSpace(token)
	if token == "" {
		return Noop{}
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}

	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(strings.TrimRight(apiBase, "/") + "/bot%s/%s")

	t := &Telegram{bot: bot, token: token}
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		t.chatID = id
	} else {
		t.channel = chatID
	}
	return t
}

// Telegram sends to one chat, addressed by numeric id or by @channel name.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	token   string
	chatID  int64
	channel string
}

// Publish sends up to four posts: an album when at least two carry an image,
// a single photo when one does, a text list of titles otherwise. A failed album
// falls back to a single photo, and a failed photo to the text list.
func (t *Telegram) Publish(ctx context.Context, posts []Post) bool {
	if len(posts) == 0 {
		return true
	}

	candidates := posts[:min(len(posts), maxPosts)]

	var withImage []Post
	for _, p := range candidates {
		if p.hasImage() {
			withImage = append(withImage, p)
		}
	}

	if len(withImage) >= 2 {
		err := t.sendMediaGroup(ctx, withImage)
		if err == nil {
			return true
		}
		slog.Error("Failed to send media group", "posts", len(withImage), "error", err)
	}

	if len(withImage) >= 1 {
		err := t.sendPhoto(ctx, withImage[0])
		if err == nil {
			return true
		}
		slog.Error("Failed to send photo", "title", withImage[0].Title, "error", err)
	}

	lines := make([]string, 0, len(candidates))
	for _, p := range candidates {
		lines = append(lines, "• "+p.Title)
	}
	text := newsHeading + "\n\n" + strings.Join(lines, "\n")

	if err := t.sendMessage(ctx, text); err != nil {
		slog.Error("Failed to send message", "error", err)
		return false
	}
	return true
}

func (t *Telegram) SendVideo(ctx context.Context, title, link, thumbURL string) bool {
	caption := fmt.Sprintf(videoHeading, title, link)

	var err error
	if thumbURL != "" {
		err = t.sendPhoto(ctx, Post{Title: title, Caption: caption, PhotoURL: thumbURL})
	} else {
		err = t.sendMessage(ctx, caption)
	}
	if err != nil {
		slog.Error("Failed to send video", "title", title, "error", err)
		return false
	}
	return true
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, truncate(text, maxTextLen))
	msg.ChannelUsername = t.channel
	return t.request(ctx, "sendMessage", msg)
}

func (t *Telegram) sendPhoto(ctx context.Context, post Post) error {
	photo := tgbotapi.NewPhoto(t.chatID, post.file("photo.jpg"))
	photo.ChannelUsername = t.channel
	photo.Caption = truncate(post.Caption, maxCaptionLen)
	return t.request(ctx, "sendPhoto", photo)
}

func (t *Telegram) sendMediaGroup(ctx context.Context, posts []Post) error {
	media := make([]interface{}, 0, len(posts))
	for i, p := range posts {
		item := tgbotapi.NewInputMediaPhoto(p.file(fmt.Sprintf("photo%d.jpg", i)))
		item.Caption = truncate(p.Caption, maxCaptionLen)
		media = append(media, item)
	}

	group := tgbotapi.NewMediaGroup(t.chatID, media)
	group.ChannelUsername = t.channel
	return t.request(ctx, "sendMediaGroup", group)
}

// request sends c unless ctx is already done. The client timeout bounds the call itself.
func (t *Telegram) request(ctx context.Context, method string, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return fault.Fetch("send", method, err)
	}
	if _, err := t.bot.Request(c); err != nil {
		return fault.Fetch("send", method, redact(err, t.token))
	}
	return nil
}

// redact keeps the bot token out of logged transport errors.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// Noop accepts everything and sends nothing. Used for dry runs.
type Noop struct{}

func (Noop) Publish(context.Context, []Post) bool {
	return true
}

func (Noop) SendVideo(context.Context, string, string, string) bool {
	return true
}
