package correlation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentmeshio/meshcore/internal/ports"
	"github.com/stretchr/testify/require"
)

// fakeClock is a deterministic ports.Clock: Now is fixed until Advance moves
// it forward, firing any timer whose deadline the advance crosses.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	return f.NewTimer(d).C()
}

func (f *fakeClock) NewTimer(d time.Duration) ports.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := &fakeTimer{deadline: f.now.Add(d), c: make(chan time.Time, 1)}
	f.timers = append(f.timers, ft)
	return ft
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has elapsed.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	for _, ft := range f.timers {
		ft.fire(f.now)
	}
}

type fakeTimer struct {
	mu       sync.Mutex
	deadline time.Time
	fired    bool
	stopped  bool
	c        chan time.Time
}

func (ft *fakeTimer) C() <-chan time.Time { return ft.c }

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	wasPending := !ft.fired && !ft.stopped
	ft.stopped = true
	return wasPending
}

func (ft *fakeTimer) fire(now time.Time) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.fired || ft.stopped || now.Before(ft.deadline) {
		return
	}
	ft.fired = true
	ft.c <- now
}

func TestAwaitCompletesOnRecordResponse(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("c1", "task.weather", 1000)

	go func() {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, tr.RecordResponse("c1", Response{SenderAgentID: "a1", Payload: "sunny"}))
	}()

	resp, err := tr.Await(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "sunny", resp.Payload)
}

func TestRecordResponseIsIdempotentForCompletion(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("c1", "task.weather", 1000)

	require.NoError(t, tr.RecordResponse("c1", Response{SenderAgentID: "a1", Payload: "first"}))
	require.NoError(t, tr.RecordResponse("c1", Response{SenderAgentID: "a2", Payload: "second"}))

	resp, err := tr.Await(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "first", resp.Payload)

	entry, ok := tr.Get("c1")
	require.True(t, ok)
	require.Len(t, entry.Responses(), 2)
	require.Equal(t, StateCompleted, entry.State())
}

func TestAwaitFailsOnTimeout(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("c1", "task.weather", 20)

	_, err := tr.Await(context.Background(), "c1")
	require.ErrorIs(t, err, ErrTimeout)

	entry, _ := tr.Get("c1")
	require.Equal(t, StateTimedOut, entry.State())
}

func TestCancelFailsPromise(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("c1", "task.weather", 5000)
	require.NoError(t, tr.Cancel("c1"))

	_, err := tr.Await(context.Background(), "c1")
	require.ErrorIs(t, err, ErrCancelled)
}

func TestTimeoutRacingResponseCompletesExactlyOnce(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("c1", "task.weather", 15)

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = tr.RecordResponse("c1", Response{SenderAgentID: "a1", Payload: "late"})
	}()

	_, err := tr.Await(context.Background(), "c1")
	// Whichever wins the race, the promise must complete exactly once: a
	// second completion attempt is a documented no-op, never a panic or a
	// changed result.
	entry, _ := tr.Get("c1")
	require.Contains(t, []State{StateCompleted, StateTimedOut}, entry.State())
	_ = err
}

func TestAddChildTracksLineageWithoutAffectingCompletion(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	tr.Create("parent", "turn", 5000)
	tr.Create("child", "task.weather", 5000)

	require.NoError(t, tr.AddChild("parent", "child"))
	require.Equal(t, []string{"child"}, tr.Children("parent"))

	entry, _ := tr.Get("parent")
	require.Equal(t, StatePending, entry.State())
}

func TestUnknownIDErrors(t *testing.T) {
	tr := New(nil, nil, time.Second, time.Hour, time.Hour)
	require.ErrorIs(t, tr.RecordResponse("missing", Response{}), ErrUnknownID)
	require.ErrorIs(t, tr.Cancel("missing"), ErrUnknownID)
	_, err := tr.Await(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestAwaitFailsOnTimeoutWithFakeClock(t *testing.T) {
	clock := newFakeClock()
	tr := New(nil, nil, time.Second, time.Hour, time.Hour, WithClock(clock))
	tr.Create("c1", "task.weather", 1000)

	done := make(chan struct{})
	var err error
	go func() {
		_, err = tr.Await(context.Background(), "c1")
		close(done)
	}()

	clock.Advance(999 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("context timed out before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	<-done
	require.ErrorIs(t, err, ErrTimeout)
}

func TestCleanupSweepRemovesOldContexts(t *testing.T) {
	tr := New(nil, nil, time.Second, 10*time.Millisecond, 20*time.Millisecond)
	tr.Create("c1", "task.weather", 100000)

	tr.StartCleanup()
	defer tr.StopCleanup()

	require.Eventually(t, func() bool {
		_, ok := tr.Get("c1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
