package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallhat.dev/tonal/internal/errs"
	"tallhat.dev/tonal/internal/mutexes"
)

func TestEndpointSetConsumerSameFormat(t *testing.T) {
	owner := mutexes.NewOwner()
	e := NewEndpoint("slin", nil)
	var got Block
	c := NewConsumerFunc("slin", func(b Block) int { got = b; return len(b.Data) })

	require.NoError(t, e.SetConsumer(owner, c))
	n := e.Forward(Block{Data: []byte("abc")})
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("abc"), got.Data)
}

func TestEndpointSetConsumerMismatchNoRegistryFails(t *testing.T) {
	owner := mutexes.NewOwner()
	e := NewEndpoint("slin", nil)
	c := NewConsumerFunc("alaw", func(Block) int { return 0 })

	err := e.SetConsumer(owner, c)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.FormatMismatch))
}

func TestEndpointSetConsumerResolvesTranslator(t *testing.T) {
	owner := mutexes.NewOwner()
	reg := NewRegistry()
	reg.Register(Factory{SrcFormat: "slin", DstFormat: "alaw", Cost: 1, New: func() *Translator {
		return NewTranslator("slin", "alaw", upsample)
	}})
	e := NewEndpoint("slin", reg)

	var got Block
	c := NewConsumerFunc("alaw", func(b Block) int { got = b; return len(b.Data) })
	require.NoError(t, e.SetConsumer(owner, c))

	e.Forward(Block{Data: []byte("xy")})
	assert.Equal(t, []byte("xy"), got.Data)
}

func TestEndpointReplaceConsumerSwapsAtomically(t *testing.T) {
	owner := mutexes.NewOwner()
	e := NewEndpoint("slin", nil)
	firstCalls, secondCalls := 0, 0
	first := NewConsumerFunc("slin", func(Block) int { firstCalls++; return 0 })
	second := NewConsumerFunc("slin", func(Block) int { secondCalls++; return 0 })

	require.NoError(t, e.SetConsumer(owner, first))
	e.Forward(Block{})
	require.NoError(t, e.Replace(owner, second))
	e.Forward(Block{})

	assert.Equal(t, 1, firstCalls)
	assert.Equal(t, 1, secondCalls)
}

func TestEndpointOverrideReceivesInParallel(t *testing.T) {
	owner := mutexes.NewOwner()
	e := NewEndpoint("slin", nil)
	primaryCalls, overrideCalls := 0, 0
	primary := NewConsumerFunc("slin", func(Block) int { primaryCalls++; return 0 })
	override := NewConsumerFunc("slin", func(Block) int { overrideCalls++; return 0 })

	require.NoError(t, e.SetConsumer(owner, primary))
	e.AddOverride(owner, override)
	e.Forward(Block{})

	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 1, overrideCalls)

	e.RemoveOverride(owner, override)
	e.Forward(Block{})
	assert.Equal(t, 2, primaryCalls)
	assert.Equal(t, 1, overrideCalls)
}

func TestEndpointClearConsumerLeavesOverridesAttached(t *testing.T) {
	owner := mutexes.NewOwner()
	e := NewEndpoint("slin", nil)
	overrideCalls := 0
	primary := NewConsumerFunc("slin", func(Block) int { return 0 })
	override := NewConsumerFunc("slin", func(Block) int { overrideCalls++; return 0 })

	require.NoError(t, e.SetConsumer(owner, primary))
	e.AddOverride(owner, override)
	e.ClearConsumer(owner)
	e.Forward(Block{})

	assert.Equal(t, 1, overrideCalls)
}
