package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, capacity int) *Queue {
	t.Helper()
	q, err := New(capacity)
	require.NoError(t, err)
	return q
}

func req(id string, key uint64) *Request {
	return &Request{ID: id, Key: key}
}

func drain(t *testing.T, q *Queue) []string {
	t.Helper()
	var ids []string
	for q.Len() > 0 {
		r, ok := q.Remove()
		require.True(t, ok)
		ids = append(ids, r.ID)
	}
	return ids
}

// returnsWithin fails the test if fn does not return before d.
func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call did not return within %v", d)
	}
}

// blocksFor reports whether fn is still running after d. The goroutine is
// left running; callers must unblock it.
func blocksFor(d time.Duration, fn func()) (blocked bool, done <-chan struct{}) {
	ch := make(chan struct{})
	go func() {
		fn()
		close(ch)
	}()
	select {
	case <-ch:
		return false, ch
	case <-time.After(d):
		return true, ch
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		q, err := New(c)
		assert.Nil(t, q)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestInsertFIFO_PreservesArrivalOrder(t *testing.T) {
	q := newQueue(t, 4)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.InsertFIFO(req(id, 0)))
	}

	assert.Equal(t, 4, q.Len())
	assert.Equal(t, []string{"a", "b", "c", "d"}, drain(t, q))
}

func TestInsertFIFO_WrapsAround(t *testing.T) {
	q := newQueue(t, 3)

	var got []string
	for i := 0; i < 10; i++ {
		require.NoError(t, q.InsertFIFO(req(fmt.Sprint(i), 0)))
		if q.Len() == q.Cap() {
			r, ok := q.Remove()
			require.True(t, ok)
			got = append(got, r.ID)
		}
	}
	got = append(got, drain(t, q)...)

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got)
}

func TestInsertOrdered_SortsByKey(t *testing.T) {
	q := newQueue(t, 5)

	require.NoError(t, q.InsertOrdered(req("fifty", 50)))
	require.NoError(t, q.InsertOrdered(req("ten", 10)))
	require.NoError(t, q.InsertOrdered(req("missing", MaxKey)))
	require.NoError(t, q.InsertOrdered(req("thirty", 30)))
	require.NoError(t, q.InsertOrdered(req("zero", 0)))

	assert.Equal(t, []string{"zero", "ten", "thirty", "fifty", "missing"}, drain(t, q))
}

func TestInsertOrdered_StableForEqualKeys(t *testing.T) {
	q := newQueue(t, 6)

	require.NoError(t, q.InsertOrdered(req("a1", 5)))
	require.NoError(t, q.InsertOrdered(req("b1", 9)))
	require.NoError(t, q.InsertOrdered(req("a2", 5)))
	require.NoError(t, q.InsertOrdered(req("m1", MaxKey)))
	require.NoError(t, q.InsertOrdered(req("a3", 5)))
	require.NoError(t, q.InsertOrdered(req("m2", MaxKey)))

	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "m1", "m2"}, drain(t, q))
}

func TestInsertOrdered_AcrossWrapBoundary(t *testing.T) {
	q := newQueue(t, 4)

	// Move head and tail off zero so shifts cross the end of the ring.
	require.NoError(t, q.InsertOrdered(req("x", 1)))
	require.NoError(t, q.InsertOrdered(req("y", 1)))
	require.NoError(t, q.InsertOrdered(req("z", 1)))
	drain(t, q)

	require.NoError(t, q.InsertOrdered(req("40", 40)))
	require.NoError(t, q.InsertOrdered(req("20", 20)))
	require.NoError(t, q.InsertOrdered(req("30", 30)))
	require.NoError(t, q.InsertOrdered(req("10", 10)))

	assert.Equal(t, []string{"10", "20", "30", "40"}, drain(t, q))
}

// Capacity 2, sizes [50, 10] then 30: the third insert waits for a slot and
// the queue becomes [30, 50] once 10 is served.
func TestInsertOrdered_BackpressureScenario(t *testing.T) {
	q := newQueue(t, 2)

	require.NoError(t, q.InsertOrdered(req("50", 50)))
	require.NoError(t, q.InsertOrdered(req("10", 10)))

	blocked, done := blocksFor(50*time.Millisecond, func() {
		_ = q.InsertOrdered(req("30", 30))
	})
	require.True(t, blocked, "insert into a full queue must block")
	assert.Equal(t, 2, q.Len())

	first, ok := q.Remove()
	require.True(t, ok)
	assert.Equal(t, "10", first.ID)

	<-done
	assert.Equal(t, []string{"30", "50"}, drain(t, q))
}

// Capacity 1 with two concurrent producers: the two requests are never both
// resident.
func TestInsertFIFO_CapacityOneTwoProducers(t *testing.T) {
	q := newQueue(t, 1)

	var inserted atomic.Int32
	var wg sync.WaitGroup
	for _, id := range []string{"X", "Y"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, q.InsertFIFO(req(id, 0)))
			inserted.Add(1)
		}(id)
	}

	require.Eventually(t, func() bool { return inserted.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), inserted.Load(), "second producer must wait for a removal")
	assert.Equal(t, 1, q.Len())

	first, ok := q.Remove()
	require.True(t, ok)

	wg.Wait()
	second, ok := q.Remove()
	require.True(t, ok)

	assert.ElementsMatch(t, []string{"X", "Y"}, []string{first.ID, second.ID})
}

func TestRemove_BlocksUntilInsert(t *testing.T) {
	q := newQueue(t, 1)

	var got *Request
	blocked, done := blocksFor(50*time.Millisecond, func() {
		got, _ = q.Remove()
	})
	require.True(t, blocked, "remove from an empty queue must block")

	require.NoError(t, q.InsertFIFO(req("late", 0)))
	<-done
	require.NotNil(t, got)
	assert.Equal(t, "late", got.ID)
}

func TestShutdown_ReleasesBlockedRemovers(t *testing.T) {
	q := newQueue(t, 2)

	const removers = 4
	results := make(chan bool, removers)
	for i := 0; i < removers; i++ {
		go func() {
			_, ok := q.Remove()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	for i := 0; i < removers; i++ {
		select {
		case ok := <-results:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("remover not released by shutdown")
		}
	}
}

func TestShutdown_ReleasesBlockedInserters(t *testing.T) {
	q := newQueue(t, 1)
	require.NoError(t, q.InsertFIFO(req("resident", 0)))

	errs := make(chan error, 2)
	go func() { errs <- q.InsertFIFO(req("fifo", 0)) }()
	go func() { errs <- q.InsertOrdered(req("ordered", 1)) }()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrShutdown)
		case <-time.After(time.Second):
			t.Fatal("inserter not released by shutdown")
		}
	}
	assert.Equal(t, 1, q.Len())
}

func TestShutdown_DrainsBeforeSentinel(t *testing.T) {
	q := newQueue(t, 3)
	require.NoError(t, q.InsertFIFO(req("a", 0)))
	require.NoError(t, q.InsertFIFO(req("b", 0)))

	q.Shutdown()
	q.Shutdown()
	assert.True(t, q.IsShutdown())

	assert.ErrorIs(t, q.InsertFIFO(req("c", 0)), ErrShutdown)

	r, ok := q.Remove()
	require.True(t, ok)
	assert.Equal(t, "a", r.ID)
	r, ok = q.Remove()
	require.True(t, ok)
	assert.Equal(t, "b", r.ID)

	returnsWithin(t, time.Second, func() {
		r, ok = q.Remove()
	})
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestConcurrent_CapacityAndNoDoubleService(t *testing.T) {
	const (
		capacity  = 3
		producers = 4
		perProd   = 250
		consumers = 5
	)
	q := newQueue(t, capacity)

	var (
		seen    sync.Map
		maxSeen atomic.Int32
		served  atomic.Int32
		wg      sync.WaitGroup
	)

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, ok := q.Remove()
				if !ok {
					return
				}
				if _, dup := seen.LoadOrStore(r.ID, true); dup {
					t.Errorf("request %s served twice", r.ID)
				}
				served.Add(1)
			}
		}()
	}

	var prodWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		prodWG.Add(1)
		go func(p int) {
			defer prodWG.Done()
			for i := 0; i < perProd; i++ {
				r := req(fmt.Sprintf("%d-%d", p, i), uint64(i%7))
				var err error
				if p%2 == 0 {
					err = q.InsertFIFO(r)
				} else {
					err = q.InsertOrdered(r)
				}
				assert.NoError(t, err)

				n := int32(q.Len())
				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}
			}
		}(p)
	}

	prodWG.Wait()
	q.Shutdown()
	wg.Wait()

	assert.Equal(t, int32(producers*perProd), served.Load())
	assert.LessOrEqual(t, maxSeen.Load(), int32(capacity))
	assert.Equal(t, 0, q.Len())
}
