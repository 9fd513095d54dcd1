package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/blockwatch/internal/logger"
)

// fakePubSub is an in-memory PubSubConn for driving the dispatch loop.
type fakePubSub struct {
	mu         sync.Mutex
	msgs       chan Message
	recvErr    error
	subscribes [][]string
	closed     bool
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{msgs: make(chan Message, 16)}
}

func (f *fakePubSub) ReceiveMessage(ctx context.Context) (Message, error) {
	f.mu.Lock()
	err := f.recvErr
	f.mu.Unlock()
	if err != nil {
		return Message{}, err
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg, ok := <-f.msgs:
		if !ok {
			return Message{}, errors.New("connection closed")
		}
		return msg, nil
	}
}

func (f *fakePubSub) failReceives(err error) {
	f.mu.Lock()
	f.recvErr = err
	f.mu.Unlock()
	// Unblock a pending ReceiveMessage.
	select {
	case f.msgs <- Message{}:
	default:
	}
}

func (f *fakePubSub) Subscribe(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, channels)
	return nil
}

func (f *fakePubSub) Unsubscribe(_ context.Context, _ ...string) error { return nil }

func (f *fakePubSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeConnector returns scripted results per Connect call.
type fakeConnector struct {
	mu       sync.Mutex
	results  []func() (PubSubConn, error)
	calls    int
	channels [][]string
}

func (f *fakeConnector) Connect(_ context.Context, channels []string) (PubSubConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, append([]string(nil), channels...))
	idx := f.calls
	f.calls++
	if idx < len(f.results) {
		return f.results[idx]()
	}
	// Past the script: repeat the last entry.
	return f.results[len(f.results)-1]()
}

func (f *fakeConnector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) kinds() []StateKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]StateKind, len(r.states))
	for i, s := range r.states {
		kinds[i] = s.Kind
	}
	return kinds
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func fastConfig() Config {
	return Config{
		ReconnectDelay:    2 * time.Millisecond,
		MaxReconnectDelay: 4 * time.Millisecond,
	}
}

func TestConnDeliversMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var mu sync.Mutex
	var received []Message
	handler := func(_ context.Context, msg Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	}

	conn := New(NewRedisConnector(client), handler, DefaultConfig(), logger.NewNopLogger())
	ctx := context.Background()

	if err := conn.Subscribe(ctx, ChannelJobsAll); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := conn.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if got := conn.State().Kind; got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}

	mr.Publish(ChannelJobsAll, `{"event":"stats:updated"}`)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].Channel != ChannelJobsAll {
		t.Errorf("channel = %q, want %q", received[0].Channel, ChannelJobsAll)
	}
}

func TestConnOpenTwice(t *testing.T) {
	ps := newFakePubSub()
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps, nil },
	}}

	conn := New(connector, func(context.Context, Message) {}, fastConfig(), logger.NewNopLogger())
	ctx := context.Background()

	if err := conn.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Open(ctx); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open() error = %v, want ErrAlreadyOpen", err)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	ps := newFakePubSub()
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps, nil },
	}}

	conn := New(connector, func(context.Context, Message) {}, fastConfig(), logger.NewNopLogger())
	ctx := context.Background()

	if err := conn.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	for range 3 {
		if err := conn.Subscribe(ctx, "jobs:u1"); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	ps.mu.Lock()
	subscribeCalls := len(ps.subscribes)
	ps.mu.Unlock()
	if subscribeCalls != 1 {
		t.Errorf("subscribe control messages = %d, want 1", subscribeCalls)
	}

	if got := conn.Channels(); len(got) != 1 || got[0] != "jobs:u1" {
		t.Errorf("Channels() = %v, want [jobs:u1]", got)
	}
}

func TestReconnectCapStopsRetrying(t *testing.T) {
	ps := newFakePubSub()
	connErr := errors.New("connection refused")
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps, nil },
		func() (PubSubConn, error) { return nil, connErr },
	}}

	recorder := &stateRecorder{}
	cfg := fastConfig()
	cfg.MaxAttempts = 5

	conn := New(connector, func(context.Context, Message) {}, cfg, logger.NewNopLogger())
	conn.OnStateChange(recorder.record)

	if err := conn.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	// Break the live connection; every reconnect attempt then fails.
	ps.failReceives(errors.New("broken pipe"))

	waitFor(t, 2*time.Second, func() bool {
		return conn.State().Kind == StateFailed
	})

	// 1 initial connect + exactly 5 failed reconnect attempts.
	if got := connector.callCount(); got != 6 {
		t.Errorf("connect calls = %d, want 6", got)
	}

	// No further attempts after failure.
	time.Sleep(50 * time.Millisecond)
	if got := connector.callCount(); got != 6 {
		t.Errorf("connect calls after failure = %d, want 6", got)
	}

	final := conn.State()
	if final.Attempt != 5 {
		t.Errorf("final attempt = %d, want 5", final.Attempt)
	}
	if !errors.Is(final.Err, connErr) {
		t.Errorf("final err = %v, want %v", final.Err, connErr)
	}
}

func TestReconnectRestoresChannels(t *testing.T) {
	ps0 := newFakePubSub()
	ps1 := newFakePubSub()
	calls := 0
	var mu sync.Mutex
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps0, nil },
		func() (PubSubConn, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, errors.New("still down")
			}
			return ps1, nil
		},
	}}

	recorder := &stateRecorder{}
	conn := New(connector, func(context.Context, Message) {}, fastConfig(), logger.NewNopLogger())
	conn.OnStateChange(recorder.record)
	ctx := context.Background()

	if err := conn.Subscribe(ctx, ChannelJobsAll, "jobs:u1"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := conn.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	ps0.failReceives(errors.New("broken pipe"))

	waitFor(t, 2*time.Second, func() bool {
		return conn.State().Kind == StateConnected && connector.callCount() >= 3
	})

	// The reconnect must re-establish the full channel set.
	connector.mu.Lock()
	last := connector.channels[len(connector.channels)-1]
	connector.mu.Unlock()
	if len(last) != 2 || last[0] != ChannelJobsAll || last[1] != "jobs:u1" {
		t.Errorf("reconnect channels = %v, want [jobs:all jobs:u1]", last)
	}

	// Transitions must include reconnecting before the final connected.
	kinds := recorder.kinds()
	sawReconnecting := false
	for _, k := range kinds {
		if k == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("state transitions %v missing reconnecting", kinds)
	}
	if kinds[len(kinds)-1] != StateConnected {
		t.Errorf("final state = %v, want connected", kinds[len(kinds)-1])
	}
}

func TestCloseDuringReconnectDropsFreshConnection(t *testing.T) {
	ps0 := newFakePubSub()
	ps1 := newFakePubSub()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps0, nil },
		func() (PubSubConn, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return ps1, nil
		},
	}}

	conn := New(connector, func(context.Context, Message) {}, fastConfig(), logger.NewNopLogger())
	if err := conn.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ps0.failReceives(errors.New("broken pipe"))

	// Wait until the reconnect attempt is inside the connector.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never reached the connector")
	}

	closed := make(chan error, 1)
	go func() { closed <- conn.Close() }()

	// Let Close mark the Conn shut down, then hand reconnect its fresh
	// connection.
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	// The connection established after shutdown must not leak.
	waitFor(t, time.Second, func() bool {
		ps1.mu.Lock()
		defer ps1.mu.Unlock()
		return ps1.closed
	})

	if got := conn.State().Kind; got != StateDisconnected {
		t.Errorf("state after close = %v, want disconnected", got)
	}
}

func TestUnboundedRetryReportsDegraded(t *testing.T) {
	ps := newFakePubSub()
	connector := &fakeConnector{results: []func() (PubSubConn, error){
		func() (PubSubConn, error) { return ps, nil },
		func() (PubSubConn, error) { return nil, errors.New("connection refused") },
	}}

	conn := New(connector, func(context.Context, Message) {}, fastConfig(), logger.NewNopLogger())
	if err := conn.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	ps.failReceives(errors.New("broken pipe"))

	waitFor(t, 2*time.Second, func() bool {
		s := conn.State()
		return s.Kind == StateDegraded && s.Attempt > degradedThreshold
	})
}
