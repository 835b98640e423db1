package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"onboardbot/internal/ai"
	"onboardbot/internal/engine"
	"onboardbot/internal/model"
	"onboardbot/internal/store"
	"onboardbot/internal/transport"
)

type fakeStore struct {
	mu      sync.Mutex
	records []model.UserRecord
	docs    map[string][]byte

	getAllErr  error
	saveAllErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]byte)}
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }

func (s *fakeStore) GetAll(ctx context.Context) ([]model.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	out := make([]model.UserRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeStore) SaveAll(ctx context.Context, records []model.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveAllErr != nil {
		return s.saveAllErr
	}
	s.records = make([]model.UserRecord, len(records))
	copy(s.records, records)
	return nil
}

func (s *fakeStore) SaveDocument(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = data
	return "documents/" + name, nil
}

func (s *fakeStore) byAddress(address string) (model.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Address == address {
			return rec, true
		}
	}
	return model.UserRecord{}, false
}

type sentMessage struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeValidator struct {
	mu      sync.Mutex
	refs    []string
	verdict ai.Verdict
}

func (f *fakeValidator) ValidateDocument(ctx context.Context, path string) (ai.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, path)
	return f.verdict, nil
}

func textMessage(from, body string) transport.Message {
	return transport.Message{From: from, Body: body}
}

func imageMessage(from, mime string, data []byte) transport.Message {
	return transport.Message{
		From:     from,
		HasMedia: true,
		MimeType: mime,
		Download: func(ctx context.Context) (*transport.Media, error) {
			return &transport.Media{MimeType: mime, Data: data}, nil
		},
	}
}

func TestOnboardingScenario(t *testing.T) {
	st := newFakeStore()
	sender := &fakeSender{}
	validator := &fakeValidator{verdict: ai.Verdict{Valid: true, Rationale: "looks fine"}}
	d := New(st, sender, validator, engine.New(), nil)
	ctx := context.Background()

	steps := []struct {
		msg       transport.Message
		wantReply string
	}{
		{textMessage("+1555", "hi"), engine.ReplyAskName},
		{textMessage("+1555", "Asha"), engine.ReplyAskDistrict},
		{textMessage("+1555", "Pune"), engine.ReplyAskCity},
		{textMessage("+1555", "Pune"), engine.ReplyAskState},
		{textMessage("+1555", "MH"), engine.ReplyAskDocument},
		{imageMessage("+1555", "image/jpeg", []byte("jpegbytes")), engine.ReplyCompleted},
	}
	for i, step := range steps {
		d.HandleMessage(ctx, step.msg)
		got := sender.last(t)
		if got.to != "+1555" || got.text != step.wantReply {
			t.Fatalf("step %d: sent %q to %q, want %q", i, got.text, got.to, step.wantReply)
		}
	}

	rec, ok := st.byAddress("+1555")
	if !ok {
		t.Fatal("record not persisted")
	}
	if rec.Conversation != model.StateCompleted {
		t.Fatalf("state = %s, want completed", rec.Conversation)
	}
	if rec.Name != "Asha" || rec.District != "Pune" || rec.City != "Pune" || rec.State != "MH" {
		t.Fatalf("captured fields wrong: %+v", rec)
	}
	if rec.DocumentRef == "" {
		t.Fatal("document reference not recorded")
	}
	if got := st.docs; len(got) != 1 {
		t.Fatalf("stored %d documents, want 1", len(got))
	}
	if len(validator.refs) != 1 || validator.refs[0] != rec.DocumentRef {
		t.Fatalf("validator saw %v, want [%s]", validator.refs, rec.DocumentRef)
	}

	// Restart returns to the beginning but keeps what was collected.
	d.HandleMessage(ctx, textMessage("+1555", "restart"))
	if got := sender.last(t); got.text != engine.ReplyRestarted {
		t.Fatalf("restart reply = %q, want %q", got.text, engine.ReplyRestarted)
	}
	rec, _ = st.byAddress("+1555")
	if rec.Conversation != model.StateWelcome {
		t.Fatalf("state after restart = %s, want welcome", rec.Conversation)
	}
	if rec.Name != "Asha" || rec.DocumentRef == "" {
		t.Fatalf("restart dropped collected fields: %+v", rec)
	}
}

func TestNonImageAttachmentRejected(t *testing.T) {
	st := newFakeStore()
	sender := &fakeSender{}
	d := New(st, sender, nil, engine.New(), nil)
	ctx := context.Background()

	for _, body := range []string{"hi", "Asha", "Pune", "Pune", "MH"} {
		d.HandleMessage(ctx, textMessage("+1777", body))
	}
	d.HandleMessage(ctx, imageMessage("+1777", "application/pdf", []byte("%PDF")))

	if got := sender.last(t); got.text != engine.ReplyNeedValidFile {
		t.Fatalf("reply = %q, want %q", got.text, engine.ReplyNeedValidFile)
	}
	rec, _ := st.byAddress("+1777")
	if rec.Conversation != model.StateRequestingDocument {
		t.Fatalf("state = %s, want requesting_document", rec.Conversation)
	}
	if len(st.docs) != 0 {
		t.Fatalf("stored %d documents, want 0", len(st.docs))
	}
}

func TestConcurrentEventsLoseNoRecords(t *testing.T) {
	st := newFakeStore()
	sender := &fakeSender{}
	d := New(st, sender, nil, engine.New(), nil)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.HandleMessage(context.Background(), textMessage(fmt.Sprintf("+1%04d", i), "hello"))
		}(i)
	}
	wg.Wait()

	records, err := st.GetAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != n {
		t.Fatalf("persisted %d records, want %d", len(records), n)
	}
	for _, rec := range records {
		if rec.Conversation != model.StateAskingName {
			t.Fatalf("record %s in state %s, want asking_name", rec.Address, rec.Conversation)
		}
	}
}

func TestSelfAndBroadcastEventsDropped(t *testing.T) {
	st := newFakeStore()
	sender := &fakeSender{}
	d := New(st, sender, nil, engine.New(), nil)
	ctx := context.Background()

	d.HandleMessage(ctx, transport.Message{From: "+1555", Body: "hi", FromSelf: true})
	d.HandleMessage(ctx, transport.Message{From: "status", Body: "hi", Broadcast: true})

	if sender.count() != 0 {
		t.Fatalf("sent %d replies, want 0", sender.count())
	}
	if records, _ := st.GetAll(ctx); len(records) != 0 {
		t.Fatalf("created %d records, want 0", len(records))
	}
}

func TestStorageFailureApologizes(t *testing.T) {
	st := newFakeStore()
	st.getAllErr = fmt.Errorf("%w: disk full", store.ErrStorageUnavailable)
	sender := &fakeSender{}
	d := New(st, sender, nil, engine.New(), nil)

	d.HandleMessage(context.Background(), textMessage("+1555", "hi"))

	if got := sender.last(t); got.text != replyInternalError {
		t.Fatalf("reply = %q, want apology", got.text)
	}
	if d.Halted() {
		t.Fatal("transient storage failure must not halt the dispatcher")
	}
}

func TestCorruptStateHalts(t *testing.T) {
	st := newFakeStore()
	st.getAllErr = fmt.Errorf("%w: bad json", store.ErrCorruptState)
	sender := &fakeSender{}
	var fatal error
	d := New(st, sender, nil, engine.New(), func(err error) { fatal = err })
	ctx := context.Background()

	d.HandleMessage(ctx, textMessage("+1555", "hi"))

	if !d.Halted() {
		t.Fatal("dispatcher did not halt on corrupt state")
	}
	if !errors.Is(fatal, store.ErrCorruptState) {
		t.Fatalf("onFatal got %v, want ErrCorruptState", fatal)
	}
	if sender.count() != 0 {
		t.Fatal("no reply should be sent when halting")
	}

	// Later events are dropped silently, even after the store recovers.
	st.mu.Lock()
	st.getAllErr = nil
	st.mu.Unlock()
	d.HandleMessage(ctx, textMessage("+1556", "hi"))
	if sender.count() != 0 {
		t.Fatal("halted dispatcher must not process events")
	}
}

func TestRepliesFollowArrivalOrderPerAddress(t *testing.T) {
	st := newFakeStore()
	sender := &fakeSender{}
	d := New(st, sender, nil, engine.New(), nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.HandleMessage(ctx, textMessage("+1555", "hi"))
		d.HandleMessage(ctx, textMessage("+1555", "Asha"))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch deadlocked")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d replies, want 2", len(sender.sent))
	}
	if sender.sent[0].text != engine.ReplyAskName || sender.sent[1].text != engine.ReplyAskDistrict {
		t.Fatalf("replies out of order: %+v", sender.sent)
	}
}
