package interp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsPermissive(t *testing.T) {
	c := DefaultConfig()
	require.Nil(t, c.MaxExecutionTime)
	require.Nil(t, c.MaxMemoryBytes)
	require.True(t, c.AllowIO)
	require.True(t, c.AllowNetwork)
}

func TestSandboxedConfigIsRestrictive(t *testing.T) {
	c := SandboxedConfig()
	require.NotNil(t, c.MaxExecutionTime)
	require.NotNil(t, c.MaxMemoryBytes)
	require.False(t, c.AllowIO)
	require.False(t, c.AllowNetwork)
}

func TestWithSettersReturnIndependentCopies(t *testing.T) {
	base := DefaultConfig()
	d := 5 * time.Second
	withTimeout := base.WithMaxExecutionTime(d)

	require.Nil(t, base.MaxExecutionTime)
	require.NotNil(t, withTimeout.MaxExecutionTime)
	require.Equal(t, d, *withTimeout.MaxExecutionTime)
}

func TestWithAllowIOAndNetworkToggle(t *testing.T) {
	c := SandboxedConfig().WithAllowIO(true).WithAllowNetwork(true)
	require.True(t, c.AllowIO)
	require.True(t, c.AllowNetwork)
}

func TestLoadYAMLParsesSandboxPolicy(t *testing.T) {
	data := []byte("max_execution_time_ms: 2000\nmax_memory_bytes: 1048576\nallow_io: false\nallow_network: true\n")
	c, err := LoadYAML(data)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, *c.MaxExecutionTime)
	require.EqualValues(t, 1048576, *c.MaxMemoryBytes)
	require.False(t, c.AllowIO)
	require.True(t, c.AllowNetwork)
}

func TestMarshalYAMLRoundTripsThroughLoadYAML(t *testing.T) {
	original := SandboxedConfig()
	data, err := original.MarshalYAML()
	require.NoError(t, err)

	reloaded, err := LoadYAML(data)
	require.NoError(t, err)
	require.Equal(t, *original.MaxExecutionTime, *reloaded.MaxExecutionTime)
	require.Equal(t, *original.MaxMemoryBytes, *reloaded.MaxMemoryBytes)
	require.Equal(t, original.AllowIO, reloaded.AllowIO)
	require.Equal(t, original.AllowNetwork, reloaded.AllowNetwork)
}
