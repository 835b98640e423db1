// Package dispatch routes inbound chat events through the conversation
// engine. It owns the find-or-create step, executes document effects, and
// serializes record mutations so concurrent chats cannot lose each other's
// writes.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"onboardbot/internal/ai"
	"onboardbot/internal/engine"
	"onboardbot/internal/logger"
	"onboardbot/internal/model"
	"onboardbot/internal/store"
	"onboardbot/internal/transport"
)

// replyInternalError is sent when an event cannot be processed. The user
// never sees internal error details.
const replyInternalError = "Sorry, there was an error processing your message. Please try again."

// Sender delivers plain-text replies. Satisfied by transport.Client.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Validator judges a stored document image. Satisfied by *ai.Client.
type Validator interface {
	ValidateDocument(ctx context.Context, path string) (ai.Verdict, error)
}

// Dispatcher connects a transport to the engine and the record store.
//
// Locking: addrMu serializes events per channel address so replies follow
// arrival order, storeMu serializes whole load-mutate-save cycles across
// addresses. The engine result is re-applied to a freshly loaded collection,
// so a cycle never overwrites records another address changed in between.
type Dispatcher struct {
	store     store.Store
	sender    Sender
	validator Validator
	engine    *engine.Engine
	onFatal   func(error)

	storeMu sync.Mutex

	addrMuGuard sync.Mutex
	addrMu      map[string]*sync.Mutex

	halted atomic.Bool
}

// New wires a dispatcher. validator may be nil to skip document validation;
// onFatal may be nil, in which case corrupt state only halts the dispatcher.
func New(st store.Store, sender Sender, validator Validator, eng *engine.Engine, onFatal func(error)) *Dispatcher {
	if eng == nil {
		eng = engine.New()
	}
	return &Dispatcher{
		store:     st,
		sender:    sender,
		validator: validator,
		engine:    eng,
		onFatal:   onFatal,
		addrMu:    make(map[string]*sync.Mutex),
	}
}

// Halted reports whether the dispatcher stopped after detecting corrupt
// persisted state.
func (d *Dispatcher) Halted() bool {
	return d.halted.Load()
}

// HandleMessage processes one inbound event end to end. It is the transport
// handler: safe for concurrent calls, never panics outward.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.DISP.LogAttrs(ctx, slog.LevelError, "handler panic",
				slog.String("event", "dispatch.panic"),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if msg.FromSelf || msg.Broadcast {
		logger.DISP.LogAttrs(ctx, slog.LevelDebug, "event dropped",
			slog.String("event", "dispatch.drop"),
			slog.String("address", msg.From),
			slog.Bool("from_self", msg.FromSelf),
			slog.Bool("broadcast", msg.Broadcast),
		)
		return
	}
	if d.halted.Load() {
		return
	}

	ctx = logger.WithRID(logger.WithAddress(ctx, msg.From), shortRID())
	start := time.Now()

	mu := d.lockAddress(msg.From)
	defer mu.Unlock()

	rec, created, err := d.findOrCreate(ctx, msg.From)
	if err != nil {
		d.reportFailure(ctx, msg.From, err)
		return
	}

	ev := model.Inbound{Address: msg.From, Body: msg.Body}
	if msg.HasMedia {
		ev.Attachment = &model.Attachment{MimeType: msg.MimeType}
	}

	res := d.engine.Transition(rec, ev)

	if res.Doc != nil {
		ref, err := d.saveDocument(ctx, msg, res.Doc.Name)
		if err != nil {
			// The record stays in requesting_document so the user can retry.
			d.reportFailure(ctx, msg.From, err)
			return
		}
		res.Record.DocumentRef = ref
		d.validateDocument(ctx, msg.From, ref)
	}

	if res.Record != rec || created {
		if err := d.persist(ctx, res.Record); err != nil {
			d.reportFailure(ctx, msg.From, err)
			return
		}
	}

	d.reply(ctx, msg.From, res.Reply)

	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "event processed",
		slog.String("event", "dispatch.done"),
		slog.String("address", msg.From),
		slog.String("state", string(res.Record.Conversation)),
		slog.Duration("duration", logger.Took(start)),
	)
}

// findOrCreate loads the record for address, creating and persisting a fresh
// one before the first reply so a crash cannot greet the same user twice
// with different records.
func (d *Dispatcher) findOrCreate(ctx context.Context, address string) (model.UserRecord, bool, error) {
	d.storeMu.Lock()
	defer d.storeMu.Unlock()

	records, err := d.store.GetAll(ctx)
	if err != nil {
		return model.UserRecord{}, false, err
	}
	for _, rec := range records {
		if rec.Address == address {
			return rec, false, nil
		}
	}

	rec := model.NewUserRecord(address, time.Now())
	records = append(records, rec)
	if err := d.store.SaveAll(ctx, records); err != nil {
		return model.UserRecord{}, false, err
	}
	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "record created",
		slog.String("event", "dispatch.create"),
		slog.String("address", address),
		slog.String("record_id", rec.ID),
	)
	return rec, true, nil
}

// persist re-applies the mutated record to a freshly loaded collection and
// writes the whole collection back under storeMu.
func (d *Dispatcher) persist(ctx context.Context, rec model.UserRecord) error {
	d.storeMu.Lock()
	defer d.storeMu.Unlock()

	records, err := d.store.GetAll(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return d.store.SaveAll(ctx, records)
}

func (d *Dispatcher) saveDocument(ctx context.Context, msg transport.Message, name string) (string, error) {
	if msg.Download == nil {
		return "", errors.New("dispatch: media event without download")
	}
	media, err := msg.Download(ctx)
	if err != nil {
		return "", err
	}
	ref, err := d.store.SaveDocument(ctx, name, media.Data)
	if err != nil {
		return "", err
	}
	logger.DISP.LogAttrs(ctx, slog.LevelInfo, "document stored",
		slog.String("event", "dispatch.document"),
		slog.String("address", msg.From),
		slog.String("document_ref", ref),
		slog.Int("bytes", len(media.Data)),
	)
	return ref, nil
}

// validateDocument asks the AI for a verdict on the stored image. The verdict
// is advisory: it is logged for review and never blocks completion.
func (d *Dispatcher) validateDocument(ctx context.Context, address, ref string) {
	if d.validator == nil {
		return
	}
	verdict, err := d.validator.ValidateDocument(ctx, ref)
	if err != nil {
		logger.DISP.LogAttrs(ctx, slog.LevelWarn, "validation unavailable",
			slog.String("event", "dispatch.validate"),
			slog.String("address", address),
			slog.String("err", err.Error()),
		)
		return
	}
	level := slog.LevelInfo
	if !verdict.Valid {
		level = slog.LevelWarn
	}
	logger.DISP.LogAttrs(ctx, level, "document verdict",
		slog.String("event", "dispatch.validate"),
		slog.String("address", address),
		slog.String("document_ref", ref),
		slog.Bool("valid", verdict.Valid),
		slog.String("rationale", logger.SanitizeLimit(verdict.Rationale, 200)),
	)
}

// reportFailure logs a processing error and apologizes to the user. Corrupt
// persisted state instead halts the dispatcher: continuing would risk
// overwriting the collection users already completed.
func (d *Dispatcher) reportFailure(ctx context.Context, address string, err error) {
	if errors.Is(err, store.ErrCorruptState) {
		if d.halted.CompareAndSwap(false, true) {
			logger.DISP.LogAttrs(ctx, slog.LevelError, "corrupt state, halting",
				slog.String("event", "dispatch.halt"),
				slog.String("err", err.Error()),
			)
			if d.onFatal != nil {
				d.onFatal(err)
			}
		}
		return
	}
	logger.DISP.LogAttrs(ctx, slog.LevelError, "event failed",
		slog.String("event", "dispatch.fail"),
		slog.String("address", address),
		slog.String("err", err.Error()),
	)
	d.reply(ctx, address, replyInternalError)
}

// reply delivers text to address. Delivery failures are logged and dropped;
// there is no redelivery queue.
func (d *Dispatcher) reply(ctx context.Context, address, text string) {
	if d.sender == nil || text == "" {
		return
	}
	if err := d.sender.Send(ctx, address, text); err != nil {
		logger.DISP.LogAttrs(ctx, slog.LevelError, "reply delivery failed",
			slog.String("event", "dispatch.send"),
			slog.String("address", address),
			slog.String("err", err.Error()),
		)
	}
}

func (d *Dispatcher) lockAddress(address string) *sync.Mutex {
	d.addrMuGuard.Lock()
	mu, ok := d.addrMu[address]
	if !ok {
		mu = &sync.Mutex{}
		d.addrMu[address] = mu
	}
	d.addrMuGuard.Unlock()
	mu.Lock()
	return mu
}

func shortRID() string {
	id := uuid.NewString()
	return id[:8]
}
