package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionUnmarshalText(t *testing.T) {
	cases := map[string]Admission{
		"block":       Block,
		"":            Block,
		"Reject":      Reject,
		"dropOldest":  DropOldest,
		"drop_oldest": DropOldest,
	}
	for in, want := range cases {
		var a Admission
		require.NoError(t, a.UnmarshalText([]byte(in)), in)
		assert.Equal(t, want, a, in)
	}

	var a Admission
	assert.Error(t, a.UnmarshalText([]byte("grow")))
	assert.Equal(t, "dropOldest", DropOldest.String())
}

func TestConfigDefaults(t *testing.T) {
	c := &Config{MinWorkers: 200}
	c.CheckCfgValid()
	require.NoError(t, c.Validate())
	assert.Equal(t, 200, c.MaxWorkers)
	assert.Equal(t, _defaultQueueSize, c.QueueSize)
	assert.Equal(t, time.Second, c.IdleTimeout)

	d := DefaultConfig()
	require.NoError(t, d.Validate())
	assert.Equal(t, "dispatcher", d.GetName())
}

func TestConfigValidate(t *testing.T) {
	bad := []*Config{
		{MinWorkers: -1, MaxWorkers: 1, QueueSize: 1, LooperSize: 1},
		{MinWorkers: 0, MaxWorkers: 0, QueueSize: 1, LooperSize: 1},
		{MinWorkers: 2, MaxWorkers: 1, QueueSize: 1, LooperSize: 1},
		{MinWorkers: 1, MaxWorkers: 1, QueueSize: 0, LooperSize: 1},
		{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1, LooperSize: 1, IdleTimeout: -time.Second},
		{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1, LooperSize: 1, Admission: Admission(9)},
	}
	for i, c := range bad {
		assert.Error(t, c.Validate(), "case %d", i)
	}
}
