package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llm-price-tracker/internal/changes"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, log changes.ChangeLog) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, log changes.ChangeLog) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderText(log, "[LLM Price Alert]"),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	resp, err := post(ctx, n.client, url, body)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("date", log.Date).Int("changes", len(log.Changes)).Msg("告警已发送 (Telegram)")
	return nil
}

// DiscordNotifier posts an embed to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	websiteURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a Discord webhook notifier.
func NewDiscordNotifier(webhookURL, websiteURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		websiteURL: strings.TrimRight(websiteURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// discordDescriptionLimit stays under Discord's 4096 character embed cap.
const discordDescriptionLimit = 4000

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Notify implements Notifier.
func (d *DiscordNotifier) Notify(ctx context.Context, log changes.ChangeLog) error {
	description := renderText(log, "**LLM Price Alert**")
	if runes := []rune(description); len(runes) > discordDescriptionLimit {
		description = string(runes[:discordDescriptionLimit-3]) + "..."
	}

	embed := discordEmbed{
		Title:       "LLM Price Tracker Update",
		Description: description,
		Color:       dominantColor(log.Summary),
		Timestamp:   log.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if d.websiteURL != "" {
		embed.Footer = &discordFooter{Text: "View full changelog: " + d.websiteURL + "/changelog"}
	}

	body, err := json.Marshal(map[string]any{"embeds": []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	resp, err := post(ctx, d.client, d.webhookURL, body)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	d.logger.Info().Str("date", log.Date).Int("changes", len(log.Changes)).Msg("alert sent (Discord)")
	return nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

// Multi fans a changelog out to several notifiers; every channel is tried.
type Multi []Notifier

// Notify implements Notifier and returns the first error encountered.
func (m Multi) Notify(ctx context.Context, log changes.ChangeLog) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, log); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*DiscordNotifier)(nil)
	_ Notifier = Multi(nil)
)
