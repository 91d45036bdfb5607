package ident

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyIDDeterminism(t *testing.T) {
	owner := NewModuleIdentifier(TypeJavaScriptAuto, "/src/index.js")

	id1, err := NewDependencyID(owner, "esm import", "./a", 0)
	require.NoError(t, err)
	id2, err := NewDependencyID(owner, "esm import", "./a", 0)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "dependency id must be deterministic")
	assert.Len(t, string(id1), 64, "SHA-256 hex is 64 characters")
}

func TestDependencyIDChangesWithInput(t *testing.T) {
	owner := NewModuleIdentifier(TypeJavaScriptAuto, "/src/index.js")
	other := NewModuleIdentifier(TypeJavaScriptAuto, "/src/other.js")

	base := MustDependencyID(owner, "esm import", "./a", 0)
	assert.NotEqual(t, base, MustDependencyID(other, "esm import", "./a", 0), "owner")
	assert.NotEqual(t, base, MustDependencyID(owner, "cjs require", "./a", 0), "type")
	assert.NotEqual(t, base, MustDependencyID(owner, "esm import", "./b", 0), "request")
	assert.NotEqual(t, base, MustDependencyID(owner, "esm import", "./a", 1), "ordinal")
}

func TestBlockIDDependsOnParent(t *testing.T) {
	owner := NewModuleIdentifier(TypeJavaScriptAuto, "/src/index.js")
	top := MustBlockID(owner, "", "./lazy", 0)
	nested := MustBlockID(owner, top, "./lazy", 0)
	assert.NotEqual(t, top, nested)
}

func TestModuleIdentifierResource(t *testing.T) {
	id := NewModuleIdentifier(TypeContext, "/src/locales", "recursive", `^\./.*\.json$`)
	assert.Equal(t, ModuleIdentifier(`context|/src/locales|recursive|^\./.*\.json$`), id)
	assert.Equal(t, "/src/locales", id.Resource())
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"nested", map[string]any{"k": []any{true, int64(2), "s"}}, `{"k":[true,2,"s"]}`},
		{"string slice", []string{"x", "y"}, `["x","y"]`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash stays", `\u2028`, `"\\u2028"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestOutputIDJSON(t *testing.T) {
	assert.Equal(t, `42`, OutputID("42").JSON())
	assert.Equal(t, `"042"`, OutputID("042").JSON())
	assert.Equal(t, `"./src/a.js"`, OutputID("./src/a.js").JSON())
	assert.Equal(t, `"a<b"`, OutputID("a<b").JSON())
}

func TestCompareOutputID(t *testing.T) {
	ids := []OutputID{"lazy", "10", "2", "a", "02"}
	slices.SortFunc(ids, CompareOutputID)
	assert.Equal(t, []OutputID{"2", "10", "02", "a", "lazy"}, ids)
}

func TestQuoteJSONKeepsLineSeparatorEscaped(t *testing.T) {
	assert.Equal(t, `"a\u2028b"`, QuoteJSON("a\u2028b"))
}

func TestInternerSharesKeys(t *testing.T) {
	in := NewInterner()
	k1 := in.Intern("/src", "./a")
	k2 := in.Intern("/src", "./a")
	k3 := in.Intern("/lib", "./a")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Equal(t, 2, in.Len())

	ctx, req, ok := in.Lookup(k3)
	require.True(t, ok)
	assert.Equal(t, "/lib", ctx)
	assert.Equal(t, "./a", req)

	_, _, ok = in.Lookup(RequestKey(99))
	assert.False(t, ok)
}

func TestInternerConcurrent(t *testing.T) {
	in := NewInterner()
	var wg sync.WaitGroup
	keys := make([]RequestKey, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i] = in.Intern("/src", "./shared")
		}(i)
	}
	wg.Wait()
	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, in.Len())
}
