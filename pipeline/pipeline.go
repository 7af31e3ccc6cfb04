// Package pipeline sequences the classify-and-deliver flow and owns
// the dedup gating around it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"tweet-notifier/classifier"
	"tweet-notifier/fingerprint"
	"tweet-notifier/state"
)

// ErrNoItem is returned when the input carries no usable tweet.
// Absent or unparseable input is a recognized no-op, not a failure.
var ErrNoItem = errors.New("no valid tweet data")

// Item is one unit of raw input: the tweet text and its link.
type Item struct {
	Text string
	Link string
}

// ParseItem decodes the external input, a JSON object with `tweet`
// and `tweet_link` fields.
func ParseItem(raw string) (*Item, error) {
	var payload struct {
		Tweet     string `json:"tweet"`
		TweetLink string `json:"tweet_link"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, ErrNoItem
	}

	text := strings.TrimSpace(payload.Tweet)
	if text == "" {
		return nil, ErrNoItem
	}

	return &Item{
		Text: text,
		Link: strings.TrimSpace(payload.TweetLink),
	}, nil
}

// Outcome is the terminal state of one pipeline invocation.
type Outcome int

const (
	// OutcomeSkippedDuplicate: the raw tweet matched the last delivery
	// or the ignored set; nothing was called, nothing was written.
	OutcomeSkippedDuplicate Outcome = iota
	// OutcomeIgnored: classification decided Ignore; the fingerprint
	// was recorded so the tweet is never classified again.
	OutcomeIgnored
	// OutcomeSkippedSameMessage: the composed message matched the last
	// sent message; skipped without delivery or state mutation.
	OutcomeSkippedSameMessage
	// OutcomeDelivered: sent with formatting; state committed.
	OutcomeDelivered
	// OutcomeDeliveredPlain: sent via the plain-text fallback; state
	// committed.
	OutcomeDeliveredPlain
	// OutcomeDeliveryFailed: delivery failed terminally; state left
	// unchanged so a re-invocation attempts delivery again.
	OutcomeDeliveryFailed
)

// String returns a log-friendly label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeSkippedSameMessage:
		return "skipped_same_message"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDeliveredPlain:
		return "delivered_plain"
	default:
		return "delivery_failed"
	}
}

// DeliveryStatus mirrors the dispatcher's terminal outcomes.
type DeliveryStatus int

const (
	DeliveryFailed DeliveryStatus = iota
	DeliverySent
	DeliverySentPlain
)

// Classifier assigns a category to a tweet.
type Classifier interface {
	Classify(ctx context.Context, text string) (classifier.Category, error)
}

// Composer renders a deliverable message for a non-ignored tweet.
type Composer interface {
	Compose(ctx context.Context, text string, category classifier.Category, link string) string
}

// Dispatcher delivers a composed message.
type Dispatcher interface {
	Deliver(ctx context.Context, message string) (DeliveryStatus, error)
}

// StateStore loads and persists the dedup state.
type StateStore interface {
	Load() *state.State
	Save(s *state.State) error
}

// Runner executes the pipeline for one item.
type Runner struct {
	classifier Classifier
	composer   Composer
	dispatcher Dispatcher
	store      StateStore
}

// NewRunner creates a pipeline runner. All collaborators are explicit
// dependencies so tests can substitute doubles.
func NewRunner(cls Classifier, cmp Composer, dsp Dispatcher, store StateStore) *Runner {
	return &Runner{
		classifier: cls,
		composer:   cmp,
		dispatcher: dsp,
		store:      store,
	}
}

// Run executes one invocation of the pipeline. State is committed only
// on a terminal outcome: immediately after an ignore decision, or
// after a successful delivery. Skip paths and failed deliveries never
// mutate persisted state, which makes re-invocation safe.
func (r *Runner) Run(ctx context.Context, item *Item) Outcome {
	st := r.store.Load()
	fp := fingerprint.Hash(item.Text)

	if st.IsDuplicateOrIgnored(fp) {
		slog.Info("skipping duplicate or ignored tweet", "hash", fp)
		return OutcomeSkippedDuplicate
	}

	category, err := r.classifier.Classify(ctx, item.Text)
	if err != nil {
		// Fail safe toward skip rather than risk a double post.
		slog.Warn("classification failed, treating as ignore", "hash", fp, "error", err)
		category = classifier.Ignore
	}

	if category == classifier.Ignore {
		st.MarkIgnored(fp)
		r.persist(st)
		slog.Info("tweet recorded as ignored", "hash", fp)
		return OutcomeIgnored
	}

	message := r.composer.Compose(ctx, item.Text, category, item.Link)

	// Two different raw tweets can refine to the identical output;
	// catch that at the message level before dispatching.
	if fingerprint.Hash(message) == fingerprint.Hash(st.LastSentMessage) {
		slog.Info("composed message matches last sent message, skipping", "hash", fp)
		return OutcomeSkippedSameMessage
	}

	status, err := r.dispatcher.Deliver(ctx, message)
	switch status {
	case DeliverySent, DeliverySentPlain:
		st.RecordDelivery(fp, message)
		r.persist(st)
		slog.Info("tweet delivered", "hash", fp, "category", category, "plain", status == DeliverySentPlain)
		if status == DeliverySentPlain {
			return OutcomeDeliveredPlain
		}
		return OutcomeDelivered
	default:
		slog.Error("delivery failed", "hash", fp, "category", category, "error", err)
		return OutcomeDeliveryFailed
	}
}

// persist saves best-effort: a failed save means the next invocation
// re-evaluates this tweet, which is safe under the dedup gating.
func (r *Runner) persist(st *state.State) {
	if err := r.store.Save(st); err != nil {
		slog.Error("failed to persist dedup state", "error", err)
	}
}
