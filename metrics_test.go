package st

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatchLatency_SamplePercentiles(t *testing.T) {
	var l DispatchLatency
	for i := 1; i <= 100; i++ {
		l.Record(time.Duration(i) * time.Millisecond)
	}

	n := l.Sample()
	assert.Equal(t, 100, n)
	assert.Equal(t, 100*time.Millisecond, l.Max)
	assert.Equal(t, 51*time.Millisecond, l.P50)
}

func TestDispatchLatency_SampleEmptyIsZero(t *testing.T) {
	var l DispatchLatency
	assert.Equal(t, 0, l.Sample())
}

func TestDispatchLatency_WindowEvictsOldestSample(t *testing.T) {
	var l DispatchLatency
	for i := 0; i < sampleSize; i++ {
		l.Record(time.Millisecond)
	}
	l.Record(time.Hour)

	n := l.Sample()
	assert.Equal(t, sampleSize, n)
	assert.Equal(t, time.Hour, l.Max)
}

func TestQueueDepths_SnapshotReflectsLastUpdate(t *testing.T) {
	var q QueueDepths
	q.update(1, 2, 3, 4)
	run, io, zombie, heap := q.Snapshot()
	assert.Equal(t, 1, run)
	assert.Equal(t, 2, io)
	assert.Equal(t, 3, zombie)
	assert.Equal(t, 4, heap)
}
