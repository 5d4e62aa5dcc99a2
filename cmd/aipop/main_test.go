package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOption(t *testing.T) {
	k, v, err := splitOption("num_streams=5")
	require.NoError(t, err)
	assert.Equal(t, "num_streams", k)
	assert.Equal(t, 5, v)

	k, v, err = splitOption("temperature=0.7")
	require.NoError(t, err)
	assert.Equal(t, "temperature", k)
	assert.Equal(t, 0.7, v)

	k, v, err = splitOption("device=cuda:0")
	require.NoError(t, err)
	assert.Equal(t, "device", k)
	assert.Equal(t, "cuda:0", v)

	_, _, err = splitOption("noequals")
	assert.Error(t, err)
	_, _, err = splitOption("=value")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"attack", "ctf", "verify", "cache", "fingerprint", "setup", "version"} {
		assert.True(t, names[want], "command %s missing", want)
	}
	assert.Contains(t, attackCmd.Aliases, "run")
}

func TestMockAdapterRegistered(t *testing.T) {
	a, err := adapters.Create("mock", map[string]interface{}{"model": "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", a.Model())
}
