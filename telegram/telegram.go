// Package telegram delivers composed messages to the destination chat
// with a single plain-text fallback on formatting rejection.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Outcome is the terminal result of a delivery attempt.
type Outcome int

const (
	Failed Outcome = iota
	Sent
	SentPlain
)

// String returns a log-friendly label for the outcome.
func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case SentPlain:
		return "sent_plain"
	default:
		return "failed"
	}
}

// Delivery reports how a delivery attempt ended. Err is set only when
// the outcome is Failed.
type Delivery struct {
	Outcome   Outcome
	MessageID int64
	Err       error
}

type errorClass int

const (
	errOther errorClass = iota
	errBadFormat
	errUnauthorized
	errForbidden
)

// Sender is the slice of the Telegram bot API the dispatcher uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher sends messages to a single destination chat.
type Dispatcher struct {
	api    Sender
	chatID int64
}

// NewDispatcher creates a dispatcher for the given chat.
func NewDispatcher(api Sender, chatID int64) *Dispatcher {
	return &Dispatcher{api: api, chatID: chatID}
}

// Deliver sends the message with MarkdownV2 formatting. A bad-format
// rejection triggers exactly one retry with formatting stripped; any
// other error class is terminal for this invocation. All three
// outcomes are values so the caller decides whether to commit state.
func (d *Dispatcher) Deliver(ctx context.Context, message string) Delivery {
	msg := tgbotapi.NewMessage(d.chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	sent, err := d.api.Send(msg)
	if err == nil {
		return Delivery{Outcome: Sent, MessageID: int64(sent.MessageID)}
	}

	if classifyError(err) != errBadFormat {
		return Delivery{Outcome: Failed, Err: err}
	}

	slog.Warn("markdown rejected, retrying as plain text", "error", err)

	plain := tgbotapi.NewMessage(d.chatID, StripFormatting(message))
	sent, retryErr := d.api.Send(plain)
	if retryErr != nil {
		return Delivery{Outcome: Failed, Err: retryErr}
	}
	return Delivery{Outcome: SentPlain, MessageID: int64(sent.MessageID)}
}

func classifyError(err error) errorClass {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return errOther
	}
	switch apiErr.Code {
	case 401:
		return errUnauthorized
	case 403:
		return errForbidden
	case 400:
		if strings.Contains(strings.ToLower(apiErr.Message), "can't parse") {
			return errBadFormat
		}
	}
	return errOther
}

// Formatting control characters dropped when falling back to plain
// text. Escaped occurrences are kept as literals.
const controlChars = "*_~`"

// StripFormatting removes escape markers and markup control characters
// so the message can be resent without a parse mode.
func StripFormatting(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' {
			if i+1 < len(runes) {
				b.WriteRune(runes[i+1])
				i++
			}
			continue
		}
		if strings.ContainsRune(controlChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
