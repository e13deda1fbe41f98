package sink

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchBufferBelowThreshold(t *testing.T) {
	b := NewBatchBuffer(10)
	for i := 0; i < 10; i++ {
		b.Append(fmt.Sprint(i))
		assert.False(t, b.ShouldFlush())
	}
	assert.Equal(t, 10, b.Len())

	b.Append("10")
	assert.True(t, b.ShouldFlush(), "flush once the length exceeds the threshold")
}

func TestBatchBufferSnapshotIsolation(t *testing.T) {
	b := NewBatchBuffer(2)
	b.Append("a")
	b.Append("b")
	b.Append("c")

	snap := b.Drain()
	assert.Equal(t, 0, b.Len())

	b.Append("x")
	b.Append("y")
	assert.Equal(t, []string{"a", "b", "c"}, snap)

	// 再次清空不会影响之前的快照
	next := b.Drain()
	assert.Equal(t, []string{"x", "y"}, next)
	assert.Equal(t, []string{"a", "b", "c"}, snap)
}

func TestBatchBufferZeroThreshold(t *testing.T) {
	b := NewBatchBuffer(0)
	for i := 0; i < 1000; i++ {
		b.Append("w")
	}
	assert.False(t, b.ShouldFlush())
	assert.Len(t, b.Drain(), 1000)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestModeUnmarshalText(t *testing.T) {
	var m Mode
	assert.NoError(t, m.UnmarshalText([]byte("immediate")))
	assert.Equal(t, ModeImmediate, m)
	assert.NoError(t, m.UnmarshalText([]byte("Batched")))
	assert.Equal(t, ModeBatched, m)
	assert.Error(t, m.UnmarshalText([]byte("lazy")))

	c := Config{Threshold: -1}
	assert.Error(t, c.Validate())
	c = Config{Mode: Mode(7)}
	assert.Error(t, c.Validate())
}
