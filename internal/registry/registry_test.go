// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLoad(t *testing.T) {
	r := New()
	r.Register("slack", "slack-handle")

	got, err := r.Load("slack")
	require.NoError(t, err)
	assert.Equal(t, "slack-handle", got)
	assert.True(t, r.Has("slack"))
}

func TestRegistry_LoadUnknownErrors(t *testing.T) {
	r := New()
	_, err := r.Load("nope")
	require.Error(t, err)
	assert.False(t, r.Has("nope"))
}

func TestRegistry_LazyFactoryBuildsOnce(t *testing.T) {
	r := New()
	calls := 0
	r.SetFactory(func(alias string, config map[string]interface{}) (interface{}, error) {
		calls++
		return fmt.Sprintf("handle-for-%s", alias), nil
	})
	r.RegisterConfig("postgres", map[string]interface{}{"dsn": "postgres://x"})

	first, err := r.Load("postgres")
	require.NoError(t, err)
	second, err := r.Load("postgres")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "factory must only build the handle once")
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	r := New()
	r.SetFactory(func(alias string, config map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("connection refused")
	})
	r.RegisterConfig("mysql", nil)

	_, err := r.Load("mysql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
