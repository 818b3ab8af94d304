package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampMillis(t *testing.T) {
	ts := time.Date(2021, time.January, 29, 16, 31, 29, 492*int(time.Millisecond), time.UTC)
	assert.Equal(t, int64(1611937889492), Stamp(ts))
}

func TestIDGeneratorFitsDouble(t *testing.T) {
	id := NewIDGenerator().Next()
	assert.LessOrEqual(t, id, int64(MaxSafeID))
	assert.Equal(t, id, int64(float64(id)))

	far := time.Date(2200, time.December, 31, 23, 59, 59, 999*int(time.Millisecond), time.UTC)
	g := NewIDGeneratorWithClock(func() time.Time { return far })
	for i := 0; i < 5; i++ {
		id = g.Next()
		assert.LessOrEqual(t, id, int64(MaxSafeID))
		assert.Equal(t, id, int64(float64(id)))
	}
}

func TestIDGeneratorSameMillisecond(t *testing.T) {
	ts := time.Date(2021, time.January, 29, 16, 31, 29, 492*int(time.Millisecond), time.UTC)
	g := NewIDGeneratorWithClock(func() time.Time { return ts })

	assert.Equal(t, int64(1611937889492000), g.Next())
	assert.Equal(t, int64(1611937889492001), g.Next())
	assert.Equal(t, int64(1611937889492002), g.Next())
}

func TestIDGeneratorClockStepBack(t *testing.T) {
	ts := time.Date(2021, time.January, 29, 16, 31, 29, 0, time.UTC)
	g := NewIDGeneratorWithClock(func() time.Time { return ts })
	first := g.Next()

	ts = ts.Add(-time.Second)
	assert.Greater(t, g.Next(), first)
}

func TestIDGeneratorConcurrentUnique(t *testing.T) {
	g := NewIDGenerator()
	const workers, per = 8, 2000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for j := 0; j < per; j++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*per)
}
