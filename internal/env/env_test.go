// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_GetResolutionOrder(t *testing.T) {
	e := New("wf-1", "run-1", map[string]interface{}{
		"channel": "general",
		"nested":  map[string]interface{}{"key": "input-value"},
	})
	e.Set("channel_override", "variables-win")
	e.Set("nested", map[string]interface{}{"key": "variable-value"})

	t.Run("inputs-prefixed path reads declared inputs", func(t *testing.T) {
		v, ok := e.Get("inputs.channel")
		require.True(t, ok)
		assert.Equal(t, "general", v)
	})

	t.Run("bare path checks variables before inputs", func(t *testing.T) {
		v, ok := e.Get("nested.key")
		require.True(t, ok)
		assert.Equal(t, "variable-value", v)
	})

	t.Run("bare path falls back to inputs when no variable matches", func(t *testing.T) {
		v, ok := e.Get("channel")
		require.True(t, ok)
		assert.Equal(t, "general", v)
	})

	t.Run("missing path resolves to not-found, never an error", func(t *testing.T) {
		_, ok := e.Get("does.not.exist")
		assert.False(t, ok)
	})
}

func TestEnvironment_NumericIndexOnlyAppliesToSequences(t *testing.T) {
	e := New("wf-1", "run-1", nil)
	e.Set("list", []interface{}{"a", "b", "c"})
	e.Set("obj", map[string]interface{}{"0": "zero-key"})

	v, ok := e.Get("list[1]")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = e.Get("obj[0]")
	require.True(t, ok)
	assert.Equal(t, "zero-key", v)
}

func TestEnvironment_StepMetadataResolution(t *testing.T) {
	e := New("wf-1", "run-1", nil)
	e.SetStepMeta("a", StepMeta{Status: "failed", RetryCount: 2, Error: "boom"})

	v, ok := e.Get("a.status")
	require.True(t, ok)
	assert.Equal(t, "failed", v)
}

func TestEnvironment_CloneIsolatesMutation(t *testing.T) {
	parent := New("wf-1", "run-1", nil)
	parent.Set("local", "parent-value")

	branch := parent.Clone()
	branch.Set("local", "branch-value")

	pv, _ := parent.Get("local")
	assert.Equal(t, "parent-value", pv)

	bv, _ := branch.Get("local")
	assert.Equal(t, "branch-value", bv)
}

func TestEnvironment_MergeBranchNamespaces(t *testing.T) {
	parent := New("wf-1", "run-1", nil)
	b1 := parent.Clone()
	b1.Set("local", "b1")
	b2 := parent.Clone()
	b2.Set("local", "b2")

	parent.MergeBranch("b1", b1)
	parent.MergeBranch("b2", b2)

	v1, ok := parent.Get("b1.local")
	require.True(t, ok)
	assert.Equal(t, "b1", v1)

	v2, ok := parent.Get("b2.local")
	require.True(t, ok)
	assert.Equal(t, "b2", v2)

	_, bare := parent.Variables["local"]
	assert.False(t, bare)
}

func TestScope_RestoresPriorBindingOnEnd(t *testing.T) {
	e := New("wf-1", "run-1", nil)
	e.Set("item", "outer")

	scope := Bind(e, "item", "inner")
	v, _ := e.Get("item")
	assert.Equal(t, "inner", v)
	scope.End()

	v, ok := e.Get("item")
	require.True(t, ok)
	assert.Equal(t, "outer", v)
}

func TestScope_DeletesWhenNoPriorBinding(t *testing.T) {
	e := New("wf-1", "run-1", nil)

	scope := Bind(e, "item", "inner")
	scope.End()

	_, ok := e.Get("item")
	assert.False(t, ok)
}
