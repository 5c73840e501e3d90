package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/rentops/internal/types"
)

// ErrAutosaverClosed is returned by Queue after Close.
var ErrAutosaverClosed = errors.New("autosaver closed")

// DefaultAutosaveDelay is the quiet window before a draft is written.
const DefaultAutosaveDelay = time.Second

const flushTimeout = 10 * time.Second

// FieldWriter validates and persists field patches.
type FieldWriter interface {
	ValidateFields(ctx context.Context, propertyID string, patch types.Fields) error
	PatchFields(ctx context.Context, propertyID string, patch types.Fields) (*PropertyDetail, error)
}

type draft struct {
	fields types.Fields
	actor  string
	timer  *time.Timer
	// gen identifies the timer that may write this draft. Timers from
	// earlier Queue calls see a different gen and do nothing.
	gen uint64
}

// Autosaver debounces field edits. Patches queued for the same property are
// merged, later values winning, and written once no new patch has arrived
// for the delay. Writes for one property run one at a time, in the order
// they were claimed.
type Autosaver struct {
	writer FieldWriter
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*draft
	// tails holds the done channel of the last claimed write per property.
	tails  map[string]chan struct{}
	gen    uint64
	closed bool
	wg     sync.WaitGroup
}

// NewAutosaver creates an Autosaver. delay <= 0 selects DefaultAutosaveDelay.
func NewAutosaver(writer FieldWriter, delay time.Duration, logger *slog.Logger) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		writer:  writer,
		delay:   delay,
		logger:  logger.With("component", "autosave"),
		pending: make(map[string]*draft),
		tails:   make(map[string]chan struct{}),
	}
}

// Queue validates patch and schedules it for writing. The write happens
// after the delay unless another patch for the property arrives first.
func (a *Autosaver) Queue(ctx context.Context, propertyID string, patch types.Fields) error {
	if len(patch) == 0 {
		return invalid("fields", "is required")
	}
	if err := a.writer.ValidateFields(ctx, propertyID, patch); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAutosaverClosed
	}

	d, ok := a.pending[propertyID]
	if !ok {
		d = &draft{fields: types.Fields{}}
		a.pending[propertyID] = d
	} else {
		d.timer.Stop()
	}
	for k, v := range patch {
		d.fields[k] = v
	}
	d.actor = ActorFromContext(ctx)
	a.gen++
	gen := a.gen
	d.gen = gen
	d.timer = time.AfterFunc(a.delay, func() { a.fire(propertyID, gen) })
	return nil
}

// Pending returns the number of properties with unsaved drafts.
func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush writes the draft of one property immediately. It returns once every
// draft write claimed for the property before the call has finished, so a
// write made after Flush is never overwritten by an older draft.
func (a *Autosaver) Flush(ctx context.Context, propertyID string) error {
	a.mu.Lock()
	d, ok := a.pending[propertyID]
	if !ok {
		prev := a.tails[propertyID]
		a.mu.Unlock()
		if prev != nil {
			<-prev
		}
		return nil
	}
	d.timer.Stop()
	delete(a.pending, propertyID)
	prev, done := a.claim(propertyID)
	a.mu.Unlock()

	defer a.release(propertyID, done)
	if prev != nil {
		<-prev
	}
	_, err := a.writer.PatchFields(WithActor(ctx, d.actor), propertyID, d.fields)
	return err
}

// Close stops accepting drafts, writes everything pending and waits for
// in-flight writes.
func (a *Autosaver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	drafts := a.pending
	a.pending = make(map[string]*draft)
	type claimed struct {
		d          *draft
		prev, done chan struct{}
	}
	writes := make(map[string]claimed, len(drafts))
	for id, d := range drafts {
		d.timer.Stop()
		prev, done := a.claim(id)
		writes[id] = claimed{d: d, prev: prev, done: done}
	}
	a.mu.Unlock()

	var errs []error
	for id, c := range writes {
		if c.prev != nil {
			<-c.prev
		}
		if err := a.write(id, c.d); err != nil {
			errs = append(errs, err)
		}
		a.release(id, c.done)
	}
	a.wg.Wait()
	return errors.Join(errs...)
}

func (a *Autosaver) fire(propertyID string, gen uint64) {
	a.mu.Lock()
	d, ok := a.pending[propertyID]
	if a.closed || !ok || d.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.pending, propertyID)
	prev, done := a.claim(propertyID)
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	defer a.release(propertyID, done)
	if prev != nil {
		<-prev
	}
	_ = a.write(propertyID, d)
}

// claim reserves the next write slot of a property. The caller must hold
// a.mu, wait on prev when it is non-nil, and call release with done.
func (a *Autosaver) claim(propertyID string) (prev, done chan struct{}) {
	prev = a.tails[propertyID]
	done = make(chan struct{})
	a.tails[propertyID] = done
	return prev, done
}

func (a *Autosaver) release(propertyID string, done chan struct{}) {
	a.mu.Lock()
	if a.tails[propertyID] == done {
		delete(a.tails, propertyID)
	}
	a.mu.Unlock()
	close(done)
}

func (a *Autosaver) write(propertyID string, d *draft) error {
	ctx, cancel := context.WithTimeout(WithActor(context.Background(), d.actor), flushTimeout)
	defer cancel()

	if _, err := a.writer.PatchFields(ctx, propertyID, d.fields); err != nil {
		a.logger.Error("autosave failed",
			"action", "flush",
			"property_id", propertyID,
			"fields", len(d.fields),
			"error", err,
		)
		return err
	}
	a.logger.Debug("draft saved", "action", "flush", "property_id", propertyID, "fields", len(d.fields))
	return nil
}
