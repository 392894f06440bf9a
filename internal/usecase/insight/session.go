package insight

import (
	"context"
	"sync"
	"time"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/retry"
)

// State is the observable state of a request stream.
type State struct {
	Loading   bool                    `json:"loading"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind entity.ErrorKind        `json:"errorKind,omitempty"`
	Response  *entity.InsightResponse `json:"response,omitempty"`
}

// Outcome is the final result of one logical request.
type Outcome struct {
	Response *entity.InsightResponse
	Err      error
	// Message is the user-facing text for Err.
	Message string
	// Superseded is set when a newer request replaced this one before it settled.
	Superseded bool
	// AutoRetries counts the re-invocations scheduled by the auto-retry policy.
	AutoRetries int
}

// Ticket tracks one logical request, including its auto-retries.
type Ticket struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

func (t *Ticket) resolve(o Outcome) {
	t.once.Do(func() {
		t.outcome = o
		close(t.done)
	})
}

// Done is closed once the outcome is known.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the final outcome. It is only meaningful after Done is closed.
func (t *Ticket) Outcome() Outcome {
	<-t.done
	return t.outcome
}

// Wait blocks until the outcome is known or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// AutoRetry re-issues requests that failed with a retryable error. Default: true
	AutoRetry *bool
	// RetryDelay is the wait before an auto-retry. Default: 2s
	RetryDelay time.Duration
	// MaxAutoRetries bounds auto-retries per logical request. Zero means the
	// default of 2; a negative value allows none.
	MaxAutoRetries int
	// OnSuccess is called after a response is applied to the state.
	OnSuccess func(resp *entity.InsightResponse)
	// OnError is called after an error is applied to the state.
	OnError func(message string, err error)
	// Sleeper replaces the auto-retry timer.
	Sleeper retry.Sleeper
	// Metrics receives supersession counts.
	Metrics MetricsRecorder
}

// DefaultSessionOptions returns auto-retry on, 2s delay, 2 auto-retries.
func DefaultSessionOptions() SessionOptions {
	on := true
	return SessionOptions{
		AutoRetry:      &on,
		RetryDelay:     2 * time.Second,
		MaxAutoRetries: 2,
	}
}

// Session is one request stream, typically one UI surface.
//
// Each Request supersedes the previous one: the older request keeps running (the
// call is not aborted) but its settlement is discarded. Only the settlement of the
// latest request can change the state or fire callbacks.
type Session struct {
	requester Requester
	opts      SessionOptions
	autoRetry bool

	mu         sync.Mutex
	generation uint64
	state      State
	current    *Ticket

	wg sync.WaitGroup
}

// NewSession creates a session over requester.
func NewSession(requester Requester, opts SessionOptions) *Session {
	def := DefaultSessionOptions()
	autoRetry := *def.AutoRetry
	if opts.AutoRetry != nil {
		autoRetry = *opts.AutoRetry
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.MaxAutoRetries == 0 {
		opts.MaxAutoRetries = def.MaxAutoRetries
	} else if opts.MaxAutoRetries < 0 {
		opts.MaxAutoRetries = 0
	}
	if opts.Sleeper == nil {
		opts.Sleeper = retry.Sleep
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Session{
		requester: requester,
		opts:      opts,
		autoRetry: autoRetry,
	}
}

// Request supersedes any in-flight request, resets the state to loading and
// starts a new request in the background.
func (s *Session) Request(ctx context.Context, action entity.Action, selectedText string, nc *entity.NoteContext) *Ticket {
	t := newTicket()

	s.mu.Lock()
	prev := s.current
	s.generation++
	gen := s.generation
	s.current = t
	s.state = State{Loading: true}
	s.mu.Unlock()

	if prev != nil {
		prev.resolve(Outcome{Superseded: true})
	}

	s.wg.Add(1)
	go s.run(ctx, gen, t, action, selectedText, nc)
	return t
}

// Cancel supersedes the in-flight request, if any, without issuing a new one.
func (s *Session) Cancel() {
	s.mu.Lock()
	prev := s.current
	s.generation++
	s.current = nil
	s.state.Loading = false
	s.mu.Unlock()

	if prev != nil {
		prev.resolve(Outcome{Superseded: true})
	}
}

// State returns a snapshot of the observable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until every background request of the session has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) run(ctx context.Context, gen uint64, t *Ticket, action entity.Action, selectedText string, nc *entity.NoteContext) {
	defer s.wg.Done()

	for retries := 0; ; retries++ {
		req := entity.NewInsightRequest(action, selectedText, nc)
		resp, err := s.requester.MakeRequest(ctx, req)

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			s.opts.Metrics.RecordSuperseded()
			return
		}

		if err == nil {
			s.state = State{Response: resp}
			s.current = nil
			s.mu.Unlock()

			t.resolve(Outcome{Response: resp, AutoRetries: retries})
			if s.opts.OnSuccess != nil {
				s.opts.OnSuccess(resp)
			}
			return
		}

		msg := UserMessage(err)
		s.state = State{Error: msg, ErrorKind: entity.KindOf(err)}
		again := s.autoRetry && entity.IsRetryable(err) && retries < s.opts.MaxAutoRetries && ctx.Err() == nil
		if !again {
			s.current = nil
		}
		s.mu.Unlock()

		if s.opts.OnError != nil {
			s.opts.OnError(msg, err)
		}
		if !again {
			t.resolve(Outcome{Err: err, Message: msg, AutoRetries: retries})
			return
		}

		if sleepErr := s.opts.Sleeper(ctx, s.opts.RetryDelay); sleepErr != nil {
			s.settleAbandoned(gen, t, err, msg, retries)
			return
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		s.generation++
		gen = s.generation
		s.state = State{Loading: true}
		s.mu.Unlock()
	}
}

// settleAbandoned resolves t with the last error when an auto-retry could not be
// scheduled because ctx ended during the delay.
func (s *Session) settleAbandoned(gen uint64, t *Ticket, err error, msg string, retries int) {
	s.mu.Lock()
	current := gen == s.generation
	if current {
		s.current = nil
	}
	s.mu.Unlock()
	if current {
		t.resolve(Outcome{Err: err, Message: msg, AutoRetries: retries})
	}
}
