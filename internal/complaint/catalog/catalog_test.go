package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/complaint/models"
)

func TestBuild(t *testing.T) {
	types := []models.ComplaintType{{ID: "pothole"}, {ID: "noise"}, {ID: "orphan"}}

	t.Run("indexes and sorts units", func(t *testing.T) {
		snap, err := Build(types, []models.MunicipalUnit{
			{ID: "roads", AcceptedTypes: []string{"pothole"}},
			{ID: "env", AcceptedTypes: []string{" Noise ", "noise"}},
		})
		require.NoError(t, err)

		units := snap.Units()
		require.Len(t, units, 2)
		assert.Equal(t, "env", units[0].ID)
		assert.Equal(t, []string{"noise"}, units[0].AcceptedTypes)

		u, ok := snap.Unit("roads")
		require.True(t, ok)
		assert.True(t, u.Accepts("pothole"))

		_, ok = snap.Unit("missing")
		assert.False(t, ok)
	})

	t.Run("unroutable type is a warning", func(t *testing.T) {
		snap, err := Build(types, []models.MunicipalUnit{{ID: "roads", AcceptedTypes: []string{"pothole", "noise"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{`type "orphan" has no accepting unit`}, snap.Warnings)
	})

	t.Run("hard errors", func(t *testing.T) {
		_, err := Build([]models.ComplaintType{{ID: "a"}, {ID: "A"}}, nil)
		assert.ErrorContains(t, err, "duplicate complaint type")

		_, err = Build(types, []models.MunicipalUnit{{ID: "u"}, {ID: "u"}})
		assert.ErrorContains(t, err, "duplicate municipal unit")

		_, err = Build(types, []models.MunicipalUnit{{ID: "u", AcceptedTypes: []string{"ghost"}}})
		assert.ErrorContains(t, err, "unknown type")

		_, err = Build([]models.ComplaintType{{ID: " "}}, nil)
		assert.Error(t, err)
	})
}

func TestDefaultCatalogLoads(t *testing.T) {
	snap, err := NewYAMLSource("").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Warnings)
	_, ok := snap.Type("pothole")
	assert.True(t, ok)
}

type countingSource struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (s *countingSource) Load(ctx context.Context) (*Snapshot, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return Build([]models.ComplaintType{{ID: "pothole"}}, nil)
}

func TestCacheReload(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent reloads share one load", func(t *testing.T) {
		src := &countingSource{}
		cache, err := NewCache(ctx, src, nil)
		require.NoError(t, err)
		require.Equal(t, int32(1), src.calls.Load())

		src.gate = make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = cache.Reload(ctx)
			}()
		}
		// let the goroutines pile up on the in-flight call
		time.Sleep(50 * time.Millisecond)
		close(src.gate)
		wg.Wait()

		assert.Less(t, src.calls.Load(), int32(11))
	})

	t.Run("failed reload keeps previous snapshot", func(t *testing.T) {
		src := &countingSource{}
		cache, err := NewCache(ctx, src, nil)
		require.NoError(t, err)
		before := cache.Snapshot()

		src.err = errors.New("disk gone")
		_, err = cache.Reload(ctx)

		require.Error(t, err)
		assert.Same(t, before, cache.Snapshot())
	})

	t.Run("initial load failure", func(t *testing.T) {
		_, err := NewCache(ctx, &countingSource{err: errors.New("boom")}, nil)
		assert.Error(t, err)
	})
}
