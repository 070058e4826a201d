package notify

import (
	"context"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Telegram API rejects bursts past roughly one message per second per chat.
const telegramSendInterval = time.Second

// Telegram delivers notifications to a single chat. Sends are paced and any
// API failure is logged and dropped.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	logger  *log.Logger
	timeout time.Duration
}

// NewTelegram authenticates the bot token and returns a chat-bound sink.
func NewTelegram(token string, chatID int64, logger *log.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(telegramSendInterval), 5),
		logger:  logger,
		timeout: 10 * time.Second,
	}, nil
}

// Send implements Sink. Errors are reported to the caller but are safe to
// ignore; the sink has already logged them.
func (t *Telegram) Send(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.limiter.Wait(ctx); err != nil {
		t.logger.Printf("notify telegram: pacing aborted: %v", err)
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Printf("notify telegram: send failed: %v", err)
		return err
	}
	return nil
}
