package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersAllCommands(t *testing.T) {
	want := []string{
		"migrate", "scout", "curate", "mine", "score",
		"publish", "drift", "brief", "pipeline", "status",
	}

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %s registered", name)
	}
}

func TestPublishHasCheckFlag(t *testing.T) {
	f := publishCmd.Flags().Lookup("check")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}

func TestBriefHasDateFlag(t *testing.T) {
	f := briefCmd.Flags().Lookup("date")
	require.NotNil(t, f)
	assert.Empty(t, f.DefValue)
}
