// Package engine implements the pure conversation state machine. It performs
// no I/O: document storage and AI validation are requested as effect
// descriptions that the dispatcher executes.
package engine

import (
	"fmt"
	"strings"
	"time"

	"onboardbot/internal/model"
)

// Result is the outcome of one transition: the mutated record, the reply to
// send, and an optional request to persist the event's attachment.
type Result struct {
	Record model.UserRecord
	Reply  string
	Doc    *model.DocumentRequest
}

// Engine maps (record, inbound event) to a Result. It is stateless and safe
// to share across events without synchronization.
type Engine struct {
	now func() time.Time
}

// New constructs an engine using the wall clock.
func New() *Engine {
	return NewWithClock(time.Now)
}

// NewWithClock constructs an engine with an injected clock for tests.
func NewWithClock(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Transition advances the record according to the inbound event.
// Text-bearing states capture the message body verbatim: no trimming, no
// length limit, no format validation. Last write wins on repeats.
func (e *Engine) Transition(rec model.UserRecord, ev model.Inbound) Result {
	switch rec.Conversation {
	case model.StateWelcome:
		rec.Conversation = model.StateAskingName
		return e.done(rec, ReplyAskName)

	case model.StateAskingName:
		rec.Name = ev.Body
		rec.Conversation = model.StateAskingDistrict
		return e.done(rec, ReplyAskDistrict)

	case model.StateAskingDistrict:
		rec.District = ev.Body
		rec.Conversation = model.StateAskingCity
		return e.done(rec, ReplyAskCity)

	case model.StateAskingCity:
		rec.City = ev.Body
		rec.Conversation = model.StateAskingState
		return e.done(rec, ReplyAskState)

	case model.StateAskingState:
		rec.State = ev.Body
		rec.Conversation = model.StateRequestingDocument
		return e.done(rec, ReplyAskDocument)

	case model.StateRequestingDocument:
		return e.handleDocument(rec, ev)

	case model.StateCompleted:
		if strings.EqualFold(ev.Body, "restart") {
			rec.Conversation = model.StateWelcome
			return e.done(rec, ReplyRestarted)
		}
		return Result{Record: rec, Reply: ReplyAlreadyDone}

	default:
		// Unrecognized state on a persisted record: reply defensively and
		// leave the record untouched so nothing is lost.
		return Result{Record: rec, Reply: ReplyUnknownState}
	}
}

func (e *Engine) handleDocument(rec model.UserRecord, ev model.Inbound) Result {
	if ev.Attachment == nil {
		return Result{Record: rec, Reply: ReplyNeedImage}
	}
	if !strings.HasPrefix(ev.Attachment.MimeType, "image/") {
		return Result{Record: rec, Reply: ReplyNeedValidFile}
	}

	name := fmt.Sprintf("document_%s_%d.%s",
		rec.ID, e.now().UnixMilli(), mimeExtension(ev.Attachment.MimeType))
	rec.Conversation = model.StateCompleted
	res := e.done(rec, ReplyCompleted)
	res.Doc = &model.DocumentRequest{Name: name}
	return res
}

func (e *Engine) done(rec model.UserRecord, reply string) Result {
	e.touch(&rec)
	return Result{Record: rec, Reply: reply}
}

// touch bumps UpdatedAt, keeping it strictly increasing even when the clock
// reads the same instant twice.
func (e *Engine) touch(rec *model.UserRecord) {
	now := e.now().UTC()
	if !now.After(rec.UpdatedAt) {
		now = rec.UpdatedAt.Add(time.Millisecond)
	}
	rec.UpdatedAt = now
}

func mimeExtension(mimeType string) string {
	if idx := strings.IndexByte(mimeType, '/'); idx >= 0 && idx+1 < len(mimeType) {
		return mimeType[idx+1:]
	}
	return "bin"
}
