package pipeline

import (
	"context"
	"errors"
	"testing"

	"tweet-notifier/classifier"
	"tweet-notifier/fingerprint"
	"tweet-notifier/state"
)

// Mocks

type mockClassifier struct {
	category classifier.Category
	err      error
	calls    int
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (classifier.Category, error) {
	m.calls++
	if m.err != nil {
		return classifier.Ignore, m.err
	}
	return m.category, nil
}

type mockComposer struct {
	message string
	calls   int
}

func (m *mockComposer) Compose(ctx context.Context, text string, category classifier.Category, link string) string {
	m.calls++
	if m.message != "" {
		return m.message
	}
	return "composed: " + text + " -> " + link
}

type mockDispatcher struct {
	status DeliveryStatus
	err    error
	calls  int
	sent   []string
}

func (m *mockDispatcher) Deliver(ctx context.Context, message string) (DeliveryStatus, error) {
	m.calls++
	m.sent = append(m.sent, message)
	return m.status, m.err
}

type mockStore struct {
	st      *state.State
	saveErr error
	saves   int
}

func newMockStore() *mockStore {
	return &mockStore{st: state.NewState()}
}

func (m *mockStore) Load() *state.State {
	return m.st
}

func (m *mockStore) Save(s *state.State) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.st = s
	return nil
}

func newRunner(cls *mockClassifier, cmp *mockComposer, dsp *mockDispatcher, store *mockStore) *Runner {
	return NewRunner(cls, cmp, dsp, store)
}

// ParseItem

func TestParseItem(t *testing.T) {
	item, err := ParseItem(`{"tweet":"We partnered with Acme","tweet_link":"http://x/1"}`)
	if err != nil {
		t.Fatalf("ParseItem failed: %v", err)
	}
	if item.Text != "We partnered with Acme" {
		t.Errorf("Text = %q", item.Text)
	}
	if item.Link != "http://x/1" {
		t.Errorf("Link = %q", item.Link)
	}
}

func TestParseItemTrims(t *testing.T) {
	item, err := ParseItem(`{"tweet":"  hello  ","tweet_link":" http://x/1 "}`)
	if err != nil {
		t.Fatalf("ParseItem failed: %v", err)
	}
	if item.Text != "hello" || item.Link != "http://x/1" {
		t.Errorf("item = %+v, want trimmed fields", item)
	}
}

func TestParseItemInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"garbage", "not json at all"},
		{"missing tweet", `{"tweet_link":"http://x/1"}`},
		{"blank tweet", `{"tweet":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseItem(tt.raw); !errors.Is(err, ErrNoItem) {
				t.Errorf("ParseItem(%q) err = %v, want ErrNoItem", tt.raw, err)
			}
		})
	}
}

// Runner

func TestRunDeliversAndCommits(t *testing.T) {
	cls := &mockClassifier{category: classifier.Partnership}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()

	item := &Item{Text: "We partnered with Acme", Link: "http://x/1"}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeDelivered {
		t.Fatalf("outcome = %v, want OutcomeDelivered", outcome)
	}

	wantHash := fingerprint.Hash("we partnered with acme")
	if store.st.LastTweetHash != wantHash {
		t.Errorf("LastTweetHash = %q, want fingerprint of normalized tweet", store.st.LastTweetHash)
	}
	if store.st.LastSentMessage != dsp.sent[0] {
		t.Error("LastSentMessage should match the delivered message")
	}
	if store.saves != 1 {
		t.Errorf("saved %d times, want 1", store.saves)
	}
}

func TestRunSkipsDuplicateWithoutCalls(t *testing.T) {
	cls := &mockClassifier{category: classifier.Partnership}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()
	store.st.RecordDelivery(fingerprint.Hash("We partnered with Acme"), "old message")

	item := &Item{Text: "We partnered with Acme", Link: "http://x/1"}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeSkippedDuplicate {
		t.Fatalf("outcome = %v, want OutcomeSkippedDuplicate", outcome)
	}
	if cls.calls != 0 || cmp.calls != 0 || dsp.calls != 0 {
		t.Error("skip path must not invoke classifier, composer, or dispatcher")
	}
	if store.saves != 0 {
		t.Error("skip path must not write state")
	}
}

func TestRunIdempotentAcrossInvocations(t *testing.T) {
	cls := &mockClassifier{category: classifier.Announcement}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()
	runner := newRunner(cls, cmp, dsp, store)

	item := &Item{Text: "Big news!", Link: "http://x/2"}

	if got := runner.Run(context.Background(), item); got != OutcomeDelivered {
		t.Fatalf("first run outcome = %v, want OutcomeDelivered", got)
	}
	if got := runner.Run(context.Background(), item); got != OutcomeSkippedDuplicate {
		t.Fatalf("second run outcome = %v, want OutcomeSkippedDuplicate", got)
	}

	if cls.calls != 1 {
		t.Errorf("classifier called %d times across both runs, want 1", cls.calls)
	}
	if dsp.calls != 1 {
		t.Errorf("dispatcher called %d times across both runs, want 1", dsp.calls)
	}
}

func TestRunIgnoreRecordsAndPersists(t *testing.T) {
	cls := &mockClassifier{category: classifier.Ignore}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()
	runner := newRunner(cls, cmp, dsp, store)

	item := &Item{Text: "gm everyone", Link: ""}

	if got := runner.Run(context.Background(), item); got != OutcomeIgnored {
		t.Fatalf("outcome = %v, want OutcomeIgnored", got)
	}
	if store.saves != 1 {
		t.Errorf("ignore decision saved %d times, want immediate persist", store.saves)
	}
	fp := fingerprint.Hash("gm everyone")
	if _, ok := store.st.IgnoredHashes[fp]; !ok {
		t.Error("fingerprint missing from ignored set")
	}
	if cmp.calls != 0 || dsp.calls != 0 {
		t.Error("ignored tweet must not be composed or dispatched")
	}

	// Resubmission skips at the dedup gate, no second classification.
	if got := runner.Run(context.Background(), item); got != OutcomeSkippedDuplicate {
		t.Fatalf("resubmitted outcome = %v, want OutcomeSkippedDuplicate", got)
	}
	if cls.calls != 1 {
		t.Errorf("classifier called %d times, want 1", cls.calls)
	}
}

func TestRunClassifierErrorTreatedAsIgnore(t *testing.T) {
	cls := &mockClassifier{err: errors.New("api down")}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()

	item := &Item{Text: "some tweet", Link: ""}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeIgnored {
		t.Fatalf("outcome = %v, want OutcomeIgnored on classifier failure", outcome)
	}
	if _, ok := store.st.IgnoredHashes[fingerprint.Hash("some tweet")]; !ok {
		t.Error("failed classification should record the tweet as ignored")
	}
}

func TestRunSkipsIdenticalComposedMessage(t *testing.T) {
	cls := &mockClassifier{category: classifier.Partnership}
	cmp := &mockComposer{message: "the rendered message"}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()
	// A different raw tweet previously refined to the same output.
	store.st.RecordDelivery(fingerprint.Hash("different raw text"), "the rendered message")

	item := &Item{Text: "superficially different tweet", Link: "http://x/3"}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeSkippedSameMessage {
		t.Fatalf("outcome = %v, want OutcomeSkippedSameMessage", outcome)
	}
	if dsp.calls != 0 {
		t.Error("identical composed message must not be dispatched")
	}
	if store.saves != 0 {
		t.Error("message-level skip must not write state")
	}
}

func TestRunDeliveredPlain(t *testing.T) {
	cls := &mockClassifier{category: classifier.AMA}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySentPlain}
	store := newMockStore()

	item := &Item{Text: "AMA tomorrow", Link: "http://x/4"}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeDeliveredPlain {
		t.Fatalf("outcome = %v, want OutcomeDeliveredPlain", outcome)
	}
	if store.st.LastTweetHash != fingerprint.Hash("AMA tomorrow") {
		t.Error("plain-text delivery must still commit state")
	}
}

func TestRunDeliveryFailureLeavesStateUntouched(t *testing.T) {
	cls := &mockClassifier{category: classifier.Announcement}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliveryFailed, err: errors.New("forbidden")}
	store := newMockStore()
	runner := newRunner(cls, cmp, dsp, store)

	item := &Item{Text: "launch day", Link: "http://x/5"}

	if got := runner.Run(context.Background(), item); got != OutcomeDeliveryFailed {
		t.Fatalf("outcome = %v, want OutcomeDeliveryFailed", got)
	}
	if store.saves != 0 {
		t.Error("failed delivery must not commit state")
	}
	if store.st.LastTweetHash != "" {
		t.Error("failed delivery must not update the last delivered hash")
	}

	// A re-invocation attempts delivery again rather than being deduped.
	dsp.status = DeliverySent
	dsp.err = nil
	if got := runner.Run(context.Background(), item); got != OutcomeDelivered {
		t.Fatalf("retried outcome = %v, want OutcomeDelivered", got)
	}
}

func TestRunSaveFailureIsNotFatal(t *testing.T) {
	cls := &mockClassifier{category: classifier.Partnership}
	cmp := &mockComposer{}
	dsp := &mockDispatcher{status: DeliverySent}
	store := newMockStore()
	store.saveErr = errors.New("disk full")

	item := &Item{Text: "We partnered with Acme", Link: "http://x/1"}
	outcome := newRunner(cls, cmp, dsp, store).Run(context.Background(), item)

	if outcome != OutcomeDelivered {
		t.Errorf("outcome = %v, want OutcomeDelivered despite save failure", outcome)
	}
}
