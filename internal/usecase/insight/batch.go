package insight

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"langcard-insight/internal/domain/entity"
)

// BatchItem is one named request of a batch.
type BatchItem struct {
	ID           string              `json:"id"`
	Action       entity.Action       `json:"action"`
	SelectedText string              `json:"selectedText"`
	Context      *entity.NoteContext `json:"context"`
}

type batchSlot struct {
	generation uint64
	state      State
	current    *Ticket
}

// Batch tracks many independent named requests. Supersession applies only within
// one identifier; there is no retry scheduling.
type Batch struct {
	requester Requester
	metrics   MetricsRecorder

	mu    sync.Mutex
	slots map[string]*batchSlot

	wg sync.WaitGroup
}

// NewBatch creates an empty batch tracker. metrics may be nil.
func NewBatch(requester Requester, metrics MetricsRecorder) *Batch {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Batch{
		requester: requester,
		metrics:   metrics,
		slots:     make(map[string]*batchSlot),
	}
}

// Request starts a request in slot id, superseding the slot's in-flight request.
func (b *Batch) Request(ctx context.Context, id string, action entity.Action, selectedText string, nc *entity.NoteContext) *Ticket {
	t := newTicket()

	b.mu.Lock()
	slot, ok := b.slots[id]
	if !ok {
		slot = &batchSlot{}
		b.slots[id] = slot
	}
	prev := slot.current
	slot.generation++
	gen := slot.generation
	slot.current = t
	slot.state = State{Loading: true}
	b.mu.Unlock()

	if prev != nil {
		prev.resolve(Outcome{Superseded: true})
	}

	req := entity.NewInsightRequest(action, selectedText, nc)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		resp, err := b.requester.MakeRequest(ctx, req)

		b.mu.Lock()
		if slot.generation != gen {
			b.mu.Unlock()
			b.metrics.RecordSuperseded()
			return
		}
		slot.current = nil
		var o Outcome
		if err != nil {
			o = Outcome{Err: err, Message: UserMessage(err)}
			slot.state = State{Error: o.Message, ErrorKind: entity.KindOf(err)}
		} else {
			o = Outcome{Response: resp}
			slot.state = State{Response: resp}
		}
		b.mu.Unlock()
		t.resolve(o)
	}()
	return t
}

// State returns the state of slot id.
func (b *Batch) State(id string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.slots[id]
	if !ok {
		return State{}, false
	}
	return slot.state, true
}

// States returns a snapshot of every slot.
func (b *Batch) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.slots))
	for id, slot := range b.slots {
		out[id] = slot.state
	}
	return out
}

// Run issues every item concurrently and waits for all of them. When an id
// appears more than once the later item supersedes the earlier one.
// It returns early with ctx's error if ctx ends first.
func (b *Batch) Run(ctx context.Context, items []BatchItem) (map[string]Outcome, error) {
	tickets := make([]*Ticket, len(items))
	for i, item := range items {
		tickets[i] = b.Request(ctx, item.ID, item.Action, item.SelectedText, item.Context)
	}

	outcomes := make([]Outcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tickets {
		g.Go(func() error {
			o, err := t.Wait(gctx)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Outcome, len(items))
	for i, item := range items {
		if prev, ok := out[item.ID]; ok && !prev.Superseded && outcomes[i].Superseded {
			continue
		}
		out[item.ID] = outcomes[i]
	}
	return out, nil
}

// Wait blocks until every background request has finished.
func (b *Batch) Wait() {
	b.wg.Wait()
}
