package worker_test

import (
	"errors"
	"testing"

	"basegraph.app/t24spec/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fragment struct {
	Name string `json:"name"`
}

func TestParseStructuredDirect(t *testing.T) {
	f, err := worker.ParseStructured[fragment](`{"name":"Zone 1"}`)
	require.NoError(t, err)
	assert.Equal(t, "Zone 1", f.Name)
}

func TestParseStructuredFencedBlock(t *testing.T) {
	resp := "Here is the result:\n```json\n{\"name\": \"Zone 1\"}\n```\nThanks."
	f, err := worker.ParseStructured[fragment](resp)
	require.NoError(t, err)
	assert.Equal(t, "Zone 1", f.Name)
}

func TestParseStructuredBalancedBraces(t *testing.T) {
	resp := `Sure, the fragment is {"name": "Zone 1"} as requested.`
	f, err := worker.ParseStructured[fragment](resp)
	require.NoError(t, err)
	assert.Equal(t, "Zone 1", f.Name)
}

func TestParseStructuredMalformed(t *testing.T) {
	_, err := worker.ParseStructured[fragment]("not json at all, no braces either")
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrMalformedResponse))
}

func TestParseStructuredBracesInsideStringIgnored(t *testing.T) {
	resp := `{"name": "Zone { 1 }"}`
	f, err := worker.ParseStructured[fragment](resp)
	require.NoError(t, err)
	assert.Equal(t, "Zone { 1 }", f.Name)
}
