package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type likeState struct {
	Liked bool
	Count int
}

// setLiked moves to target and adjusts the counter only on an actual change,
// mirroring an idempotent like/unlike endpoint.
func setLiked(target bool) func(likeState) likeState {
	return func(s likeState) likeState {
		if s.Liked == target {
			return s
		}
		s.Liked = target
		if target {
			s.Count++
		} else {
			s.Count--
		}
		return s
	}
}

// gate lets a test decide when and how a Call finishes.
type gate chan error

func (g gate) call(ctx context.Context) error {
	select {
	case err := <-g:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not settle")
		return nil
	}
}

func TestMutate_AppliesBeforeServerAnswers(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{Count: 3})

	g := make(gate)
	done := c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(true), Call: g.call})

	got, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, likeState{Liked: true, Count: 4}, got)
	assert.Equal(t, 1, c.Pending("p1"))

	g <- nil
	require.NoError(t, wait(t, done))
	got, _ = c.Get("p1")
	assert.Equal(t, likeState{Liked: true, Count: 4}, got)
	assert.Equal(t, 0, c.Pending("p1"))
}

func TestMutate_FailureRestoresExactState(t *testing.T) {
	var hookKey string
	var hookErr error
	c := New[string, likeState](Config[string]{OnError: func(k string, err error) { hookKey, hookErr = k, err }})
	before := likeState{Liked: true, Count: 10}
	c.Put("p1", before)

	boom := errors.New("boom")
	g := make(gate, 1)
	g <- boom
	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(false), Call: g.call}))

	assert.ErrorIs(t, err, boom)
	got, _ := c.Get("p1")
	assert.Equal(t, before, got)
	assert.Equal(t, "p1", hookKey)
	assert.ErrorIs(t, hookErr, boom)
}

func TestMutate_ToggleTwiceIsIdentity(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	before := likeState{Count: 7}
	c.Put("p1", before)

	ok := func(context.Context) error { return nil }
	require.NoError(t, wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(true), Call: ok})))
	require.NoError(t, wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(false), Call: ok})))

	got, _ := c.Get("p1")
	assert.Equal(t, before, got)
}

func TestMutate_OverlappingRollbacksCompose(t *testing.T) {
	tests := []struct {
		name        string
		first, last error
		want        likeState
	}{
		{name: "both succeed", want: likeState{Liked: false, Count: 0}},
		{name: "first fails", first: errors.New("x"), want: likeState{Liked: false, Count: 0}},
		{name: "second fails", last: errors.New("x"), want: likeState{Liked: true, Count: 1}},
		{name: "both fail", first: errors.New("x"), last: errors.New("y"), want: likeState{Liked: false, Count: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[string, likeState](Config[string]{})
			c.Put("p1", likeState{})

			g1, g2 := make(gate), make(gate)
			d1 := c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(true), Call: g1.call})
			d2 := c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(false), Call: g2.call})

			got, _ := c.Get("p1")
			assert.Equal(t, likeState{}, got)

			g1 <- tt.first
			wait(t, d1)
			g2 <- tt.last
			wait(t, d2)

			got, _ = c.Get("p1")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, c.Pending("p1"))
		})
	}
}

func TestMutate_LaterSuccessFoldsAfterEarlierFailure(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{Count: 2})

	g1, g2 := make(gate), make(gate)
	d1 := c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(true), Call: g1.call})
	d2 := c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(false), Call: g2.call})

	g2 <- nil
	require.NoError(t, wait(t, d2))
	assert.Equal(t, 1, c.Pending("p1"), "second op waits behind the first")

	g1 <- errors.New("rejected")
	require.Error(t, wait(t, d1))

	got, _ := c.Get("p1")
	assert.Equal(t, likeState{Count: 2}, got)
	assert.Equal(t, 0, c.Pending("p1"))
}

func TestMutate_ReconcileReplacesBaseWhenIdle(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{Count: 1})

	server := likeState{Liked: true, Count: 42}
	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply:     setLiked(true),
		Call:      func(context.Context) error { return nil },
		Reconcile: func(context.Context) (likeState, error) { return server, nil },
	}))
	require.NoError(t, err)

	got, _ := c.Get("p1")
	assert.Equal(t, server, got)
}

func TestMutate_StaleReconcileDoesNotOverwriteNewer(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply: setLiked(true),
		Call:  func(context.Context) error { return nil },
		Reconcile: func(context.Context) (likeState, error) {
			close(started)
			<-release
			return likeState{Liked: true, Count: 1}, nil
		},
	})
	<-started

	newer := likeState{Liked: false, Count: 7}
	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply:     setLiked(false),
		Call:      func(context.Context) error { return nil },
		Reconcile: func(context.Context) (likeState, error) { return newer, nil },
	}))
	require.NoError(t, err)

	close(release)
	require.NoError(t, wait(t, slow))

	got, _ := c.Get("p1")
	assert.Equal(t, newer, got)
}

func TestMutate_PutWinsOverInFlightReconcile(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{})

	started := make(chan struct{})
	release := make(chan struct{})
	res := c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply: setLiked(true),
		Call:  func(context.Context) error { return nil },
		Reconcile: func(context.Context) (likeState, error) {
			close(started)
			<-release
			return likeState{Liked: true, Count: 1}, nil
		},
	})
	<-started

	truth := likeState{Liked: true, Count: 9}
	c.Put("p1", truth)
	close(release)
	require.NoError(t, wait(t, res))

	got, _ := c.Get("p1")
	assert.Equal(t, truth, got)
}

func TestMutate_ReconcileFailureKeepsOptimisticState(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{})

	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply:     setLiked(true),
		Call:      func(context.Context) error { return nil },
		Reconcile: func(context.Context) (likeState, error) { return likeState{}, errors.New("offline") },
	}))
	require.NoError(t, err)

	got, _ := c.Get("p1")
	assert.Equal(t, likeState{Liked: true, Count: 1}, got)
}

func TestMutate_TimeoutRollsBack(t *testing.T) {
	c := New[string, likeState](Config[string]{Timeout: 30 * time.Millisecond})
	c.Put("p1", likeState{})

	never := make(gate)
	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{Apply: setLiked(true), Call: never.call}))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	got, _ := c.Get("p1")
	assert.Equal(t, likeState{}, got)
}

func TestSubscribe(t *testing.T) {
	c := New[string, likeState](Config[string]{})

	var mu sync.Mutex
	var seen []likeState
	cancel := c.Subscribe(func(key string, s likeState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	c.Put("p1", likeState{Count: 1})
	err := wait(t, c.Mutate(context.Background(), "p1", Mutation[likeState]{
		Apply: setLiked(true),
		Call:  func(context.Context) error { return errors.New("no") },
	}))
	require.Error(t, err)

	cancel()
	c.Put("p1", likeState{Count: 9})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []likeState{
		{Count: 1},
		{Liked: true, Count: 2},
		{Count: 1},
	}, seen)
}

func TestForget(t *testing.T) {
	c := New[string, likeState](Config[string]{})
	c.Put("p1", likeState{Count: 2})
	c.Forget("p1")

	_, ok := c.Get("p1")
	assert.False(t, ok)
	assert.Zero(t, c.Pending("p1"))
}

func TestGet_UnknownKey(t *testing.T) {
	c := New[int, likeState](Config[int]{})
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Pending(1))
}
