package namedlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetParamUpdatesInPlace(t *testing.T) {
	l := New("test")
	l.SetParam("x", "1")
	require.Equal(t, 1, l.Len())

	l.SetParam("x", "2")
	require.Equal(t, 1, l.Len(), "length must not change between updates")

	p, ok := l.GetParam("x")
	require.True(t, ok)
	assert.Equal(t, "2", p.Value)
}

func TestDuplicateNamesFirstMatchWins(t *testing.T) {
	l := New("test")
	l.AddParam("dup", "first")
	l.AddParam("dup", "second")

	p, ok := l.GetParam("dup")
	require.True(t, ok)
	assert.Equal(t, "first", p.Value)
	assert.Equal(t, 2, l.Len())
}

func TestClearParamRemovesAllOccurrences(t *testing.T) {
	l := New("test")
	l.AddParam("dup", "a")
	l.AddParam("other", "b")
	l.AddParam("dup", "c")

	removed := l.ClearParam("dup")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l.Len())
	_, ok := l.GetParam("dup")
	assert.False(t, ok)
}

func TestGetIntBoolValue(t *testing.T) {
	l := New("test")
	l.SetParam("n", "42")
	l.SetParam("bad", "nope")
	l.SetParam("flag", "yes")

	assert.Equal(t, 42, l.GetIntValue("n", -1))
	assert.Equal(t, -1, l.GetIntValue("bad", -1))
	assert.Equal(t, 7, l.GetIntValue("missing", 7))

	assert.True(t, l.GetBoolValue("flag", false))
	assert.True(t, l.GetBoolValue("missing", true))
}

func TestReplaceParams(t *testing.T) {
	l := New("test")
	l.SetParam("name", "alice")
	out := l.ReplaceParams("hello ${name}, cost is $$5, unknown=${missing}")
	assert.Equal(t, "hello alice, cost is $5, unknown=", out)
}

func TestCopyParams(t *testing.T) {
	src := New("src")
	src.SetParam("a", "1")
	src.SetParam("b", "2")
	dst := New("dst")
	dst.CopyParams(src, "a", "c")

	assert.Equal(t, "1", dst.GetValue("a", ""))
	assert.Equal(t, "", dst.GetValue("c", ""))
	assert.Equal(t, 1, dst.Len())
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"alice:1",
		`back\slash`,
		"plain",
		"with\x01control",
		"",
	}
	for _, c := range cases {
		esc := EscapeWire(c)
		got, err := UnescapeWire(esc)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}
