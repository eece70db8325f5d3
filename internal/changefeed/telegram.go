package changefeed

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stagecal/stagecal/internal/logging"
)

// sender is the part of tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

const (
	telegramQueueSize    = 64
	telegramSendTimeout  = 10 * time.Second
	telegramDrainTimeout = 5 * time.Second
)

var errTelegramQueueFull = stderrors.New("telegram queue is full")

// TelegramPublisher posts a short summary of each change to one chat.
// Messages are queued and sent by a single worker, so a slow Telegram API
// never holds up the mutating request.
type TelegramPublisher struct {
	bot    sender
	chatID int64
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan tgbotapi.MessageConfig
	done   chan struct{}
}

// NewTelegramPublisher authenticates the bot token.
func NewTelegramPublisher(token string, chatID int64, logger *logging.Logger) (*TelegramPublisher, error) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram publisher needs a bot token and chat id")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: telegramSendTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramPublisher(bot, chatID, logger), nil
}

func newTelegramPublisher(bot sender, chatID int64, logger *logging.Logger) *TelegramPublisher {
	if logger == nil {
		logger = logging.Discard()
	}
	p := &TelegramPublisher{
		bot:    bot,
		chatID: chatID,
		logger: logger,
		queue:  make(chan tgbotapi.MessageConfig, telegramQueueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues the message. It fails only when the queue is full or the
// publisher is closed; send errors are logged by the worker.
func (p *TelegramPublisher) Publish(_ context.Context, topic string, payload any) error {
	text := formatChange(topic, payload)
	if text == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(p.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("telegram publisher closed")
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return errTelegramQueueFull
	}
}

func (p *TelegramPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if _, err := p.bot.Send(msg); err != nil {
			p.logger.Warn("telegram send failed", "chat_id", p.chatID, "error", err)
		}
	}
}

// Close stops accepting messages and waits briefly for queued ones.
func (p *TelegramPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-time.After(telegramDrainTimeout):
		return fmt.Errorf("timeout draining telegram queue")
	}
}

func formatChange(topic string, payload any) string {
	switch v := payload.(type) {
	case *EventChanged:
		if v.Event == nil {
			return ""
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("📅 <b>Event %s</b>\n", html.EscapeString(v.Action)))
		sb.WriteString(fmt.Sprintf("<b>%s</b>", html.EscapeString(orDash(v.Event.EventName))))
		if v.Event.ArtistName != "" {
			sb.WriteString(" · " + html.EscapeString(v.Event.ArtistName))
		}
		sb.WriteString("\n")
		if v.Event.StartTime != nil {
			sb.WriteString(v.Event.StartTime.Format("2006-01-02 15:04"))
		}
		if place := joinNonEmpty(", ", v.Event.Venue, v.Event.City); place != "" {
			sb.WriteString(" @ " + html.EscapeString(place))
		}
		return strings.TrimRight(sb.String(), "\n")
	case *StatusChanged:
		if v.Status == nil {
			return ""
		}
		return fmt.Sprintf("🏷 <b>Status %s</b>\n%s <code>%s</code>",
			html.EscapeString(v.Action), html.EscapeString(v.Status.Name), html.EscapeString(v.Status.Color))
	default:
		return fmt.Sprintf("<code>%s</code>", html.EscapeString(topic))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
