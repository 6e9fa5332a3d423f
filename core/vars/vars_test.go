package vars

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		path     string
		expected []string
	}{
		{"", nil},
		{"/", nil},
		{"a", []string{"a"}},
		{"a.b.c", []string{"a", "b", "c"}},
		{"/a/b.c", []string{"a", "b", "c"}},
		{"../a", []string{"..", "a"}},
		{"./a.b", []string{".", "a", "b"}},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, Split(tc.path))
		})
	}
}

func TestResolve(t *testing.T) {
	cwd := []string{"home", "user"}
	cases := []struct {
		path     string
		expected []string
	}{
		{"x", []string{"home", "user", "x"}},
		{"/lib/ready", []string{"lib", "ready"}},
		{"~", []string{"home"}},
		{"~/x.y", []string{"home", "x", "y"}},
		{"..", []string{"home"}},
		{"../../..", []string{}},
		{".", []string{"home", "user"}},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			actual := Resolve(cwd, tc.path)
			if diff := cmp.Diff(tc.expected, actual); diff != "" {
				t.Fatalf("Resolve(%q) mismatch (-want +got):\n%s", tc.path, diff)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"list": []any{"x", "y"},
		},
		"fn": Invocable(func(ctx context.Context, args []any) (any, error) { return nil, nil }),
	}

	v, err := Lookup(root, Split("a.list.1"))
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	_, err = Lookup(root, Split("a.missing.b"))
	assert.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/a/missing", nf.Path)

	_, err = Lookup(root, Split("a.list.9"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"a", "fn"}, Keys(root))
	assert.Equal(t, []string{"0", "1"}, Keys(root["a"].(map[string]any)["list"]))
}

func TestSetDelete(t *testing.T) {
	root := map[string]any{}

	require.NoError(t, Set(root, Split("a.b.c"), 1.0))
	assert.Equal(t, map[string]any{"a": map[string]any{"b": map[string]any{"c": 1.0}}}, root)

	root["list"] = []any{"x"}
	require.NoError(t, Set(root, Split("list.0"), "y"))
	assert.Equal(t, []any{"y"}, root["list"])
	assert.Error(t, Set(root, Split("list.3"), "z"))

	require.NoError(t, Delete(root, Split("a.b.c")))
	assert.Equal(t, map[string]any{}, root["a"].(map[string]any)["b"])
	assert.ErrorIs(t, Delete(root, Split("a.b.c")), ErrNotFound)
	assert.Error(t, Set(root, nil, 1.0))
}

func TestParse(t *testing.T) {
	cases := map[string]any{
		"hello":      "hello",
		"1":          1.0,
		"  2.5 ":     2.5,
		"true":       true,
		`{"a":1}`:    map[string]any{"a": 1.0},
		`[1,"b"]`:    []any{1.0, "b"},
		`"quoted"`:   "quoted",
		"":           "",
		"{not json}": "{not json}",
		"1 2":        "1 2",
	}

	for in, expected := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, expected, Parse(in))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "1", String(1.0))
	assert.Equal(t, "1.5", String(1.5))
	assert.Equal(t, "false", String(false))
	assert.Equal(t, `{"a":[1,"x"]}`, String(map[string]any{"a": []any{1.0, "x"}}))
}

func TestMerge(t *testing.T) {
	cases := []struct {
		name     string
		prev     any
		next     any
		expected any
	}{
		{"unset", nil, "a", "a"},
		{"strings", "a", "b", "ab"},
		{"numbers", 1.0, 2.0, 3.0},
		{"number-string", 1.0, "x", "1x"},
		{"arrays", []any{1.0}, []any{2.0}, []any{1.0, 2.0}},
		{"array-item", []any{1.0}, "x", []any{1.0, "x"}},
		{"maps", map[string]any{"a": 1.0, "b": 1.0}, map[string]any{"b": 2.0}, map[string]any{"a": 1.0, "b": 2.0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Merge(tc.prev, tc.next))
		})
	}
}

func TestClone(t *testing.T) {
	orig := map[string]any{"a": []any{map[string]any{"b": 1.0}}}
	clone := CloneMap(orig)
	clone["a"].([]any)[0].(map[string]any)["b"] = 2.0

	assert.Equal(t, 1.0, orig["a"].([]any)[0].(map[string]any)["b"])
}

func TestPersistable(t *testing.T) {
	home := map[string]any{
		"_":      "last",
		"PWD":    "/home",
		"OLDPWD": "/",
		"keep":   map[string]any{"n": 1, "fn": Invocable(nil)},
		"fn":     Invocable(nil),
	}

	assert.Equal(t, map[string]any{"keep": map[string]any{"n": 1.0}}, Persistable(home))
}
