// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]interface{}

func (f fakeResolver) Get(path string) (interface{}, bool) {
	v, ok := f[path]
	return v, ok
}

func TestRender_SingleExpressionPreservesNativeType(t *testing.T) {
	r := fakeResolver{"x": []interface{}{1.0, 2.0}}
	v := Render("{{ x }}", r)
	assert.Equal(t, []interface{}{1.0, 2.0}, v)
}

func TestRender_SingleExpressionUndefinedIsEmptyString(t *testing.T) {
	r := fakeResolver{}
	v := Render("{{ missing }}", r)
	assert.Equal(t, "", v)
}

func TestRender_InterpolatesMultipleOccurrences(t *testing.T) {
	r := fakeResolver{"name": "Ada", "role": "engineer"}
	v := Render("Hello {{ name }}, you are an {{ role }}.", r)
	assert.Equal(t, "Hello Ada, you are an engineer.", v)
}

func TestRender_StructuralRecursionOverTree(t *testing.T) {
	r := fakeResolver{"a": "A", "b": "B"}
	in := map[string]interface{}{
		"first":  "{{ a }}",
		"second": []interface{}{"{{ b }}", "literal"},
	}
	out := Render(in, r)
	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "A", m["first"])
	assert.Equal(t, []interface{}{"B", "literal"}, m["second"])
}

func TestRender_Idempotent(t *testing.T) {
	r := fakeResolver{"a": map[string]interface{}{"nested": 1.0}}
	in := map[string]interface{}{"k": []interface{}{1.0, "two", nil}}
	first := Render(in, r)
	second := Render(first, r)
	assert.Equal(t, first, second)
}

func TestRender_FilterChain(t *testing.T) {
	r := fakeResolver{"name": "ada"}
	v := Render(`{{ name | upper }}`, r)
	assert.Equal(t, "ADA", v)
}

func TestRender_DefaultFilterAppliesWhenUndefined(t *testing.T) {
	r := fakeResolver{}
	v := Render(`{{ missing | default("fallback") }}`, r)
	assert.Equal(t, "fallback", v)
}

func TestRender_RegexOperator(t *testing.T) {
	r := fakeResolver{"email": "a@example.com"}
	v := Render(`{{ email =~ "^[^@]+@example\.com$" }}`, r)
	assert.Equal(t, true, v)

	v = Render(`{{ email !~ "^[^@]+@example\.com$" }}`, r)
	assert.Equal(t, false, v)
}

func TestStringify_ObjectsAsJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, Stringify(map[string]interface{}{"a": 1}))
}
