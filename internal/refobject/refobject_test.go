package refobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetainReleaseLifecycle(t *testing.T) {
	var r Ref
	r.Init()
	assert.Equal(t, int32(1), r.Count())

	assert.True(t, r.Retain())
	assert.Equal(t, int32(2), r.Count())

	assert.False(t, r.Release())
	assert.True(t, r.Release())
	assert.True(t, r.IsZombie())
	assert.Equal(t, int32(0), r.Count())
}

func TestRetainAfterZombieFails(t *testing.T) {
	var r Ref
	r.Init()
	r.Release()
	assert.True(t, r.IsZombie())
	assert.False(t, r.Retain())
}

func TestWeakHandleInvalidatesOnTeardown(t *testing.T) {
	var r Ref
	r.Init()
	type endpoint struct{ id string }
	ep := &endpoint{id: "ep-1"}
	w := NewWeak(ep, &r)

	got, ok := w.Get()
	assert.True(t, ok)
	assert.Equal(t, ep, got)

	r.Release()
	_, ok = w.Get()
	assert.False(t, ok)
	assert.False(t, w.Valid())
}
