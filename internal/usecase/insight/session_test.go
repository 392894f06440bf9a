package insight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langcard-insight/internal/domain/entity"
)

// requesterFunc adapts a function to Requester.
type requesterFunc func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error)

func (f requesterFunc) MakeRequest(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	return f(ctx, req)
}

type reply struct {
	resp *entity.InsightResponse
	err  error
}

type pendingCall struct {
	req   *entity.InsightRequest
	reply chan reply
}

// gatedRequester blocks every call until the test answers it.
type gatedRequester struct {
	calls chan pendingCall
}

func newGatedRequester() *gatedRequester {
	return &gatedRequester{calls: make(chan pendingCall, 8)}
}

func (g *gatedRequester) MakeRequest(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	c := pendingCall{req: req, reply: make(chan reply, 1)}
	g.calls <- c
	select {
	case r := <-c.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedRequester) next(t *testing.T) pendingCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a request")
		return pendingCall{}
	}
}

func waitOutcome(t *testing.T, ticket *Ticket) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := ticket.Wait(ctx)
	require.NoError(t, err)
	return o
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func retryableErr() error {
	return entity.NewBackendError(errors.New("HTTP 503: overloaded"), true)
}

func TestSession_LatestRequestWins(t *testing.T) {
	gated := newGatedRequester()
	metrics := &mockMetrics{}
	var successes []*entity.InsightResponse
	var mu sync.Mutex
	s := NewSession(gated, SessionOptions{
		Metrics: metrics,
		OnSuccess: func(resp *entity.InsightResponse) {
			mu.Lock()
			successes = append(successes, resp)
			mu.Unlock()
		},
	})

	ticketA := s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext())
	callA := gated.next(t)
	ticketB := s.Request(context.Background(), entity.ActionDefine, "犬", testNoteContext())
	callB := gated.next(t)

	outcomeA := waitOutcome(t, ticketA)
	assert.True(t, outcomeA.Superseded)
	assert.True(t, s.State().Loading)

	respB := &entity.InsightResponse{SelectedText: "犬", Insight: "dog"}
	callB.reply <- reply{resp: respB}
	outcomeB := waitOutcome(t, ticketB)
	assert.Same(t, respB, outcomeB.Response)

	// A settles after B and must not change anything.
	callA.reply <- reply{resp: &entity.InsightResponse{SelectedText: "猫", Insight: "cat"}}
	s.Wait()

	state := s.State()
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Same(t, respB, state.Response)

	mu.Lock()
	assert.Equal(t, []*entity.InsightResponse{respB}, successes)
	mu.Unlock()

	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.superseded)
	metrics.mu.Unlock()
}

func TestSession_SupersededErrorIsDropped(t *testing.T) {
	gated := newGatedRequester()
	var errorCalls atomic.Int32
	s := NewSession(gated, SessionOptions{
		OnError: func(string, error) { errorCalls.Add(1) },
	})

	s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext())
	callA := gated.next(t)
	ticketB := s.Request(context.Background(), entity.ActionDefine, "犬", testNoteContext())
	callB := gated.next(t)

	callA.reply <- reply{err: entity.NewBackendError(errors.New("HTTP 401"), false)}
	callB.reply <- reply{resp: &entity.InsightResponse{Insight: "dog"}}
	waitOutcome(t, ticketB)
	s.Wait()

	assert.Equal(t, int32(0), errorCalls.Load())
	assert.Empty(t, s.State().Error)
	assert.Equal(t, "dog", s.State().Response.Insight)
}

func TestSession_NonRetryableError(t *testing.T) {
	var calls atomic.Int32
	var gotMessage string
	var gotErr error
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		calls.Add(1)
		return nil, entity.ErrTextTooLong
	}), SessionOptions{
		Sleeper: noSleep,
		OnError: func(msg string, err error) {
			gotMessage = msg
			gotErr = err
		},
	})

	o := waitOutcome(t, s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext()))
	s.Wait()

	assert.ErrorIs(t, o.Err, entity.ErrTextTooLong)
	assert.Equal(t, UserMessage(entity.ErrTextTooLong), o.Message)
	assert.Equal(t, 0, o.AutoRetries)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, o.Message, gotMessage)
	assert.ErrorIs(t, gotErr, entity.ErrTextTooLong)

	state := s.State()
	assert.False(t, state.Loading)
	assert.Equal(t, o.Message, state.Error)
	assert.Equal(t, entity.KindTextTooLong, state.ErrorKind)
	assert.Nil(t, state.Response)
}

func TestSession_AutoRetryIsBounded(t *testing.T) {
	var calls atomic.Int32
	var errorCalls atomic.Int32
	rec := &recordingSleeper{}
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		calls.Add(1)
		return nil, retryableErr()
	}), SessionOptions{
		RetryDelay:     2 * time.Second,
		MaxAutoRetries: 2,
		Sleeper:        rec.sleep,
		OnError:        func(string, error) { errorCalls.Add(1) },
	})

	o := waitOutcome(t, s.Request(context.Background(), entity.ActionExplain, "猫", testNoteContext()))
	s.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), errorCalls.Load())
	assert.Equal(t, 2, o.AutoRetries)
	assert.True(t, entity.IsRetryable(o.Err))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.recorded())
	assert.False(t, s.State().Loading)
}

func TestSession_AutoRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		if calls.Add(1) == 1 {
			return nil, retryableErr()
		}
		return &entity.InsightResponse{Insight: "cat"}, nil
	}), SessionOptions{Sleeper: noSleep})

	o := waitOutcome(t, s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext()))
	s.Wait()

	require.NoError(t, o.Err)
	assert.Equal(t, "cat", o.Response.Insight)
	assert.Equal(t, 1, o.AutoRetries)
	assert.Empty(t, s.State().Error)
}

func TestSession_AutoRetryDisabled(t *testing.T) {
	var calls atomic.Int32
	off := false
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		calls.Add(1)
		return nil, retryableErr()
	}), SessionOptions{AutoRetry: &off, Sleeper: noSleep})

	o := waitOutcome(t, s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext()))
	s.Wait()

	assert.Error(t, o.Err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSession_NegativeMaxAutoRetriesDisablesRetry(t *testing.T) {
	var calls atomic.Int32
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		calls.Add(1)
		return nil, retryableErr()
	}), SessionOptions{MaxAutoRetries: -1, Sleeper: noSleep})

	waitOutcome(t, s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext()))
	s.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSession_StaleAutoRetryIsDropped(t *testing.T) {
	var callsA atomic.Int32
	sleeping := make(chan struct{}, 1)
	release := make(chan struct{})
	s := NewSession(requesterFunc(func(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
		if req.SelectedText == "猫" {
			callsA.Add(1)
			return nil, retryableErr()
		}
		return &entity.InsightResponse{Insight: "dog"}, nil
	}), SessionOptions{
		Sleeper: func(ctx context.Context, _ time.Duration) error {
			sleeping <- struct{}{}
			<-release
			return nil
		},
	})

	ticketA := s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext())
	select {
	case <-sleeping:
	case <-time.After(2 * time.Second):
		t.Fatal("auto-retry was not scheduled")
	}

	ticketB := s.Request(context.Background(), entity.ActionDefine, "犬", testNoteContext())
	oB := waitOutcome(t, ticketB)
	close(release)
	s.Wait()

	assert.True(t, waitOutcome(t, ticketA).Superseded)
	assert.Equal(t, "dog", oB.Response.Insight)
	assert.Equal(t, int32(1), callsA.Load())
	assert.Equal(t, "dog", s.State().Response.Insight)
}

func TestSession_ContextEndsDuringRetryDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(requesterFunc(func(context.Context, *entity.InsightRequest) (*entity.InsightResponse, error) {
		return nil, retryableErr()
	}), SessionOptions{
		Sleeper: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	o := waitOutcome(t, s.Request(ctx, entity.ActionDefine, "猫", testNoteContext()))
	s.Wait()

	assert.False(t, o.Superseded)
	assert.True(t, entity.IsRetryable(o.Err))
	assert.Equal(t, 0, o.AutoRetries)
	assert.NotEmpty(t, s.State().Error)
}

func TestSession_Cancel(t *testing.T) {
	gated := newGatedRequester()
	var successCalls atomic.Int32
	s := NewSession(gated, SessionOptions{
		OnSuccess: func(*entity.InsightResponse) { successCalls.Add(1) },
	})

	ticket := s.Request(context.Background(), entity.ActionDefine, "猫", testNoteContext())
	call := gated.next(t)
	s.Cancel()

	assert.True(t, waitOutcome(t, ticket).Superseded)
	call.reply <- reply{resp: &entity.InsightResponse{Insight: "cat"}}
	s.Wait()

	assert.Equal(t, int32(0), successCalls.Load())
	state := s.State()
	assert.False(t, state.Loading)
	assert.Nil(t, state.Response)
}

func TestTicket_WaitHonoursContext(t *testing.T) {
	ticket := newTicket()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ticket.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	ticket.resolve(Outcome{AutoRetries: 1})
	ticket.resolve(Outcome{AutoRetries: 2})
	assert.Equal(t, 1, ticket.Outcome().AutoRetries)
}
