package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"aninotify/internal/db"
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Color       int           `json:"color"`
	Author      discordAuthor `json:"author"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Image       *discordImage `json:"image,omitempty"`
	Footer      discordFooter `json:"footer"`
}

type discordAuthor struct {
	Name string `json:"name"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Discord posts an embed to the subscriber's webhook. Calls share Limiter.
type Discord struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

func NewDiscord(perSecond float64) *Discord {
	d := &Discord{HTTPClient: defaultHTTPClient()}
	if perSecond > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return d
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Enabled(u db.User) bool { return strings.TrimSpace(u.DiscordWebhook) != "" }

func (d *Discord) Send(ctx context.Context, u db.User, title db.Title, ep db.Episode) error {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	embed := discordEmbed{
		Color:       embedColor,
		Author:      discordAuthor{Name: authorName},
		Title:       Headline(title, ep),
		Description: Details(ep),
		Footer:      discordFooter{Text: footerText},
	}
	if ep.Image != "" {
		embed.Image = &discordImage{URL: ep.Image}
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.DiscordWebhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(d.HTTPClient, req, "discord")
}

// Ntfy posts a plain text message to the subscriber's topic URL.
type Ntfy struct {
	HTTPClient *http.Client
}

func NewNtfy() *Ntfy {
	return &Ntfy{HTTPClient: defaultHTTPClient()}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Enabled(u db.User) bool { return strings.TrimSpace(u.NtfyURL) != "" }

func (n *Ntfy) Send(ctx context.Context, u db.User, title db.Title, ep db.Episode) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.NtfyURL, strings.NewReader(PlainText(title, ep)))
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", mime.QEncoding.Encode("utf-8", Headline(title, ep)))
	req.Header.Set("Tags", "tv")
	if ep.Image != "" {
		req.Header.Set("Attach", ep.Image)
	}
	return do(n.HTTPClient, req, "ntfy")
}

func do(client *http.Client, req *http.Request, name string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HTMLSender delivers an HTML formatted chat message.
type HTMLSender interface {
	SendHTML(chatID int64, html string) error
}

type TelegramSender struct {
	api *tgbotapi.BotAPI
}

func NewTelegramSender(api *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

func (s *TelegramSender) SendHTML(chatID int64, html string) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := s.api.Send(msg)
	return err
}

// Telegram sends the episode to the subscriber's chat through the bot.
type Telegram struct {
	Sender HTMLSender
}

func NewTelegram(sender HTMLSender) *Telegram {
	return &Telegram{Sender: sender}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled(u db.User) bool { return t.Sender != nil && u.TelegramChatID != 0 }

func (t *Telegram) Send(ctx context.Context, u db.User, title db.Title, ep db.Episode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.Sender.SendHTML(u.TelegramChatID, FormatEpisodeHTML(title, ep)); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
