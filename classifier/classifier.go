// Package classifier assigns a category to a tweet via a single
// chat-completion call.
package classifier

import (
	"context"
	"fmt"
	"strings"
)

// Category is the classification outcome for a tweet. It steers which
// message template is used; Ignore means the tweet is never forwarded.
type Category int

const (
	Ignore Category = iota
	Partnership
	Announcement
	AMA
)

// String returns the lowercase label used on the wire and in logs.
func (c Category) String() string {
	switch c {
	case Partnership:
		return "partnership"
	case Announcement:
		return "announcement"
	case AMA:
		return "ama"
	default:
		return "ignore"
	}
}

// ParseCategory normalizes a free-text classifier reply and matches it
// against the known labels. Anything unmatched maps to Ignore.
func ParseCategory(raw string) Category {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(s)

	switch s {
	case "partnership":
		return Partnership
	case "announcement":
		return Announcement
	case "ama":
		return AMA
	default:
		return Ignore
	}
}

const classifyPrompt = "You are a tweet classifier. Categorize the tweet into one of three categories: " +
	"'partnership', 'announcement', or 'ama'. If it does not fit, return 'ignore'. " +
	"Respond with the single category word only."

// Completer issues a single-turn chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Classifier categorizes tweets.
type Classifier struct {
	llm Completer
}

// New creates a classifier backed by the given completion client.
func New(llm Completer) *Classifier {
	return &Classifier{llm: llm}
}

// Classify issues one classification request. On a transport or
// service error it returns Ignore along with the error; the caller
// decides whether to record the tweet as ignored. There is no retry:
// failing toward "skip" is safer than risking a double post.
func (c *Classifier) Classify(ctx context.Context, text string) (Category, error) {
	reply, err := c.llm.Complete(ctx, classifyPrompt, "Categorize the following tweet:\n\n"+text)
	if err != nil {
		return Ignore, fmt.Errorf("classification request: %w", err)
	}
	return ParseCategory(reply), nil
}
