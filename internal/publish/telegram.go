package publish

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
)

const (
	TelegramAPIURL = "https://api.telegram.org"

	// Telegram rejects messages over 4096 characters.
	maxMessageRunes = 4000
	overflowReserve = 32
)

// Poster sends a JSON body and decodes the JSON response.
type Poster interface {
	Post(ctx context.Context, url string, body, out any) error
}

// TelegramSink posts one HTML digest message per feed. Client is the retrying
// JSON client; retries and backoff come from its configuration.
type TelegramSink struct {
	client  Poster
	baseURL string
	token   string
	chatID  string
}

func NewTelegramSink(client Poster, token, chatID string) *TelegramSink {
	return &TelegramSink{client: client, baseURL: TelegramAPIURL, token: token, chatID: chatID}
}

type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Publish sends the digest. An empty feed sends nothing.
func (t *TelegramSink) Publish(ctx context.Context, clusterID int, locale string, items []news.FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.baseURL, "/"), t.token)
	var resp telegramResponse
	err := t.client.Post(ctx, url, sendMessage{
		ChatID:                t.chatID,
		Text:                  Digest(clusterID, locale, items),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram API error: %s", resp.Description)
	}
	logger.Info("feed digest sent to telegram", "key", Key(clusterID, locale), "items", len(items))
	return nil
}

// Digest renders the feed as a Telegram HTML message: a header, then one numbered
// linked title per item with its sources. Items that do not fit are counted in the
// footer.
func Digest(clusterID int, locale string, items []news.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 <b>Feed %d · %s</b>\n", clusterID, strings.ToUpper(locale))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n\n")

	footer := "\n━━━━━━━━━━━━━━━━━━━━"
	for i, item := range items {
		entry := digestEntry(i+1, item)
		if len([]rune(b.String()))+len([]rune(entry))+len([]rune(footer)) > maxMessageRunes-overflowReserve {
			fmt.Fprintf(&b, "<i>+%d more</i>\n", len(items)-i)
			break
		}
		b.WriteString(entry)
	}
	b.WriteString(footer)
	return b.String()
}

func digestEntry(n int, item news.FeedItem) string {
	title := html.EscapeString(item.Title)
	var b strings.Builder
	if len(item.Link) > 0 {
		fmt.Fprintf(&b, "<b>%d.</b> <a href=\"%s\">%s</a>\n", n, html.EscapeString(item.Link[0]), title)
	} else {
		fmt.Fprintf(&b, "<b>%d.</b> %s\n", n, title)
	}
	if item.Subtitle != "" && item.Subtitle != item.Title {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(news.Truncate(item.Subtitle, 200)))
	}
	if len(item.SourceDomain) > 0 {
		fmt.Fprintf(&b, "🔗 %s\n", html.EscapeString(strings.Join(item.SourceDomain, ", ")))
	}
	b.WriteString("\n")
	return b.String()
}
