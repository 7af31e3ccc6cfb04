// Package composer rewrites a tweet into a Telegram announcement:
// paraphrase, MarkdownV2 escaping, and per-category templating.
package composer

import (
	"context"
	"log/slog"
	"strings"

	"tweet-notifier/classifier"
)

// reservedChars is the MarkdownV2 reserved set. Every occurrence in
// body text must carry a leading backslash or Telegram rejects the
// message; partial escaping is a correctness bug, not a style choice.
const reservedChars = "_*[]()~`>#+-=|{}.!"

// Message templates per category. Literal text is pre-escaped so the
// rendered message is valid MarkdownV2 as-is. The {link} slot sits
// inside the URL part of an inline link, which has its own escaping
// rule (see EscapeLinkURL).
var templates = map[classifier.Category]string{
	classifier.Partnership:  "🤝 *New Partnership Alert\\!* 🤝\n\n{body}\n\nFollow us on X to stay tuned\\!\n\n🔗 [Tweet Link]({link})",
	classifier.Announcement: "🚀 *Big Announcement\\!* 🚀\n\n{body}\n\nStay updated with the latest news\\!\n\n🔗 [Tweet Link]({link})",
	classifier.AMA:          "🎧 *AMA Session Incoming\\!* 🎧\n\n{body}\n\nDon't miss out\\! Join us for insights and discussions\\.\n\n🔗 [Tweet Link]({link})",
}

const rewritePrompt = "You are a creative social media writer crafting content for Telegram.\n" +
	"Rewrite the following tweet to sound engaging and natural for a Telegram announcement.\n" +
	"Avoid repeating words or phrases like 'new partnership alert' or 'big announcement' that are already in the template.\n" +
	"Avoid including the tweet link."

// EscapeText escapes every MarkdownV2 reserved character in s with a
// preceding backslash.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reservedChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeLinkURL escapes a URL for the (...) part of an inline link.
// Only ')' and '\' are reserved there; escaping the full set would
// corrupt the URL.
func EscapeLinkURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ')' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Render substitutes the escaped body and link into the category's
// template. An unknown category falls back to the Announcement
// template; with a closed enum this should be unreachable.
func Render(category classifier.Category, body, link string) string {
	tpl, ok := templates[category]
	if !ok {
		tpl = templates[classifier.Announcement]
	}
	return strings.NewReplacer("{body}", body, "{link}", link).Replace(tpl)
}

// Completer issues a single-turn chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Composer builds deliverable Telegram messages from raw tweets.
type Composer struct {
	llm Completer
}

// New creates a composer backed by the given completion client.
func New(llm Completer) *Composer {
	return &Composer{llm: llm}
}

// Compose rewrites the tweet, escapes it, and renders the category
// template. A paraphrase failure falls back to the original text, so
// composition itself never fails. The returned string is directly
// deliverable under Telegram's MarkdownV2 validation.
func (c *Composer) Compose(ctx context.Context, text string, category classifier.Category, link string) string {
	body := text
	rewritten, err := c.llm.Complete(ctx, rewritePrompt, text)
	if err != nil {
		slog.Warn("rewrite failed, using original tweet text", "error", err)
	} else if rewritten != "" {
		body = rewritten
	}

	return Render(category, EscapeText(body), EscapeLinkURL(link))
}
