package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "daywatch/pkg/logx"
)

const telegramTimeout = 10 * time.Second

type TelegramConfig struct {
	Enabled bool
	Token   string
	ChatID  int64
}

// TelegramChannel sends notifications through a Telegram bot. The bot
// is created lazily on first send because telebot validates the token
// against the API during construction.
type TelegramChannel struct {
	cfg TelegramConfig
	log logx.Logger

	mu  sync.Mutex
	bot *tele.Bot
}

func NewTelegramChannel(cfg TelegramConfig, log logx.Logger) *TelegramChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Enabled && (cfg.Token == "" || cfg.ChatID == 0) {
		log.Warn("telegram channel enabled but token or chat id missing; disabling")
		cfg.Enabled = false
	}
	return &TelegramChannel{cfg: cfg, log: log}
}

func (c *TelegramChannel) Name() string  { return "telegram" }
func (c *TelegramChannel) Enabled() bool { return c.cfg.Enabled }

func (c *TelegramChannel) Send(ctx context.Context, title, message string, prio Priority) error {
	bot, err := c.client()
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s*%s*\n\n%s", emojiPrefix(prio), escapeMarkdown(title), escapeMarkdown(message))
	_, err = bot.Send(tele.ChatID(c.cfg.ChatID), text, tele.ModeMarkdown)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// client returns the cached bot, constructing it on first use. A failed
// construction is not cached so a transient API outage can recover.
func (c *TelegramChannel) client() (*tele.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   c.cfg.Token,
		Client:  &http.Client{Timeout: telegramTimeout},
		Offline: false,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	c.bot = bot
	return bot, nil
}

func emojiPrefix(p Priority) string {
	switch p {
	case PriorityLow:
		return "ℹ️ "
	case PriorityHigh:
		return "⚠️ "
	case PriorityCritical:
		return "\U0001f6a8 "
	default:
		return "\U0001f514 "
	}
}

// escapeMarkdown neutralizes the markdown control characters
// Telegram's legacy parser trips over in user-supplied text.
func escapeMarkdown(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '_', '*', '`', '[':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
