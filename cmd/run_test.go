package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetRunFlags() {
	runInput = ""
	runInputFile = ""
}

func TestResolveInput_Inline(t *testing.T) {
	defer resetRunFlags()

	runInput = `{"cities":["berlin"]}`
	input, err := resolveInput()
	require.NoError(t, err)
	assert.JSONEq(t, `{"cities":["berlin"]}`, string(input))
}

func TestResolveInput_InvalidJSON(t *testing.T) {
	defer resetRunFlags()

	runInput = `{broken`
	_, err := resolveInput()
	assert.Error(t, err)
}

func TestResolveInput_File(t *testing.T) {
	defer resetRunFlags()

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[]}`), 0o644))

	runInputFile = path
	input, err := resolveInput()
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(input))
}

func TestResolveInput_MutuallyExclusive(t *testing.T) {
	defer resetRunFlags()

	runInput = `{}`
	runInputFile = "somewhere.json"
	_, err := resolveInput()
	assert.Error(t, err)
}

func TestResolveInput_Empty(t *testing.T) {
	defer resetRunFlags()

	input, err := resolveInput()
	require.NoError(t, err)
	assert.Nil(t, input)
}
