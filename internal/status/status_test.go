package status_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/internal/status"
)

func TestParse(t *testing.T) {
	for _, s := range []string{"draft", "publish", "private"} {
		got, err := status.Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(got))
	}

	got, err := status.Parse("")
	require.NoError(t, err)
	assert.Equal(t, status.Publish, got)

	_, err = status.Parse("pending")
	assert.Error(t, err)
	_, err = status.Parse("trash")
	assert.Error(t, err)
}

func TestDisplayLookup(t *testing.T) {
	for _, s := range status.All {
		d := status.Display(s)
		assert.Equal(t, string(s), d.Status)
		assert.NotEmpty(t, d.Label)
		assert.NotEmpty(t, d.Icon)
		assert.NotEmpty(t, d.Color)
		assert.NotEmpty(t, d.Description)
	}
	// unknown values degrade to a placeholder, never panic
	d := status.Display(status.Status("weird"))
	assert.Equal(t, "weird", d.Status)
}

func TestCheckTransitionNeverBlocks(t *testing.T) {
	for _, from := range status.All {
		for _, to := range status.All {
			info := status.CheckTransition(from, to)
			assert.Equal(t, string(from), info.From)
			assert.Equal(t, string(to), info.To)
		}
	}
}

func TestCheckTransitionAdvisories(t *testing.T) {
	info := status.CheckTransition(status.Draft, status.Publish)
	assert.True(t, info.Recommended)
	assert.Empty(t, info.Note)

	info = status.CheckTransition(status.Publish, status.Private)
	assert.False(t, info.Recommended)
	assert.NotEmpty(t, info.Note)

	info = status.CheckTransition(status.Private, status.Publish)
	assert.False(t, info.Recommended)
	assert.NotEmpty(t, info.Note)

	info = status.CheckTransition(status.Publish, status.Draft)
	assert.False(t, info.Recommended)
	assert.Contains(t, info.Note, "offline")
}
