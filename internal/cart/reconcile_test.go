package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingNav struct{ paths []string }

func (n *recordingNav) Navigate(path string) { n.paths = append(n.paths, path) }

type failingCommitter struct{ Cart }

func (f failingCommitter) Snapshot() Cart { return f.Cart }
func (f failingCommitter) Commit(context.Context, Cart) error {
	return errors.New("state provider unmounted")
}

func newReconciler(initial Cart) (*Reconciler, *State, *MemoryStorage, *recordingNav) {
	st := NewState(initial)
	storage := NewMemoryStorage()
	nav := &recordingNav{}
	return &Reconciler{Cart: st, Storage: storage, Navigator: nav}, st, storage, nav
}

func TestReconcileIncrementsAndClearsPending(t *testing.T) {
	r, st, storage, nav := newReconciler(New([]Item{blackPixel(2)}))
	storage.Set(PendingItemKey, `{"id":"42","condition":"Good","storage":"128GB","color":"Black","price":500}`)

	out := r.OnSession(context.Background(), true)
	assert.Equal(t, OutcomeIncremented, out)

	c := st.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, 3, c.TotalItems)
	assert.Equal(t, 1500.0, c.SubTotalPrice)

	_, ok := storage.Get(PendingItemKey)
	assert.False(t, ok)
	assert.Equal(t, []string{CartPath}, nav.paths)
}

func TestReconcileAppends(t *testing.T) {
	r, st, storage, _ := newReconciler(New([]Item{blackPixel(1)}))
	storage.Set(PendingItemKey, `{"id":"77","condition":"New","storage":"512GB","color":"Gold","price":999.99,"quantity":2}`)

	assert.Equal(t, OutcomeAppended, r.OnSession(context.Background(), true))
	c := st.Snapshot()
	require.Len(t, c.Items, 2)
	assert.Equal(t, 2, c.Items[1].Quantity)
	assert.Equal(t, 2, c.TotalItems)
	assert.InDelta(t, 1499.99, c.SubTotalPrice, 1e-9)
}

func TestReconcileWithoutSessionLeavesPending(t *testing.T) {
	r, _, storage, nav := newReconciler(New(nil))
	storage.Set(PendingItemKey, `{"id":"42","price":1}`)

	assert.Equal(t, OutcomeNone, r.OnSession(context.Background(), false))
	_, ok := storage.Get(PendingItemKey)
	assert.True(t, ok)
	assert.Empty(t, nav.paths)
}

func TestReconcileWithoutPendingIsNoop(t *testing.T) {
	r, st, _, nav := newReconciler(New([]Item{blackPixel(1)}))
	assert.Equal(t, OutcomeNone, r.OnSession(context.Background(), true))
	assert.Equal(t, 1, st.Snapshot().TotalItems)
	assert.Empty(t, nav.paths)
}

func TestReconcileParseFailureDiscards(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r, st, storage, nav := newReconciler(New([]Item{blackPixel(1)}))
	r.Logger = zap.New(core)
	storage.Set(PendingItemKey, `{"id":`)

	assert.Equal(t, OutcomeDiscarded, r.OnSession(context.Background(), true))
	_, ok := storage.Get(PendingItemKey)
	assert.False(t, ok)
	assert.Equal(t, 1, st.Snapshot().TotalItems)
	assert.Empty(t, nav.paths)
	assert.Equal(t, 1, logs.FilterMessage("pending cart item discarded").Len())
}

func TestReconcileCommitFailureStillClears(t *testing.T) {
	storage := NewMemoryStorage()
	nav := &recordingNav{}
	r := &Reconciler{Cart: failingCommitter{New(nil)}, Storage: storage, Navigator: nav}
	storage.Set(PendingItemKey, `{"id":"42","price":500}`)

	assert.Equal(t, OutcomeDiscarded, r.OnSession(context.Background(), true))
	_, ok := storage.Get(PendingItemKey)
	assert.False(t, ok)
	assert.Empty(t, nav.paths)
}

func TestReconcileDoesNotReplay(t *testing.T) {
	r, st, storage, _ := newReconciler(New([]Item{blackPixel(1)}))
	storage.Set(PendingItemKey, `{"id":"42","condition":"Good","storage":"128GB","color":"Black","price":500}`)

	r.OnSession(context.Background(), true)
	r.OnSession(context.Background(), true)
	assert.Equal(t, 2, st.Snapshot().Items[0].Quantity)
}

func TestStageWritesPendingAndRedirects(t *testing.T) {
	storage := NewMemoryStorage()
	nav := &recordingNav{}
	require.NoError(t, Stage(storage, nav, blackPixel(0)))

	raw, ok := storage.Get(PendingItemKey)
	require.True(t, ok)
	p, err := ParsePending([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, blackPixel(1), p.Item())
	assert.Equal(t, []string{"/login?redirect=%2Fcart"}, nav.paths)
}

func TestStateSubscribersSeeCommits(t *testing.T) {
	st := NewState(New(nil))
	var seen []int
	st.Subscribe(func(c Cart) { seen = append(seen, c.TotalItems) })

	require.NoError(t, st.Commit(context.Background(), New([]Item{blackPixel(2)})))
	require.NoError(t, st.Clear(context.Background()))
	assert.Equal(t, []int{2, 0}, seen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, st.Commit(ctx, New(nil)), context.Canceled)
}
