package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBus_DispatchOrderAndIsolation(t *testing.T) {
	b := New(10, zerolog.Nop())
	var order []int

	b.On(TopicMemoryAdded, func(e Envelope) { order = append(order, 1) })
	b.On(TopicMemoryAdded, func(e Envelope) { panic("boom") })
	b.On(TopicMemoryAdded, func(e Envelope) { order = append(order, 3) })

	require.NotPanics(t, func() {
		b.Emit(TopicMemoryAdded, "payload", Context{RequestID: "r1"})
	})
	require.Equal(t, []int{1, 3}, order)
}

func TestBus_ListenerCap(t *testing.T) {
	b := New(1, zerolog.Nop())
	require.True(t, b.On(TopicMemoryDeleted, func(Envelope) {}))
	require.False(t, b.On(TopicMemoryDeleted, func(Envelope) {}))
	require.Equal(t, 1, b.ListenerCount(TopicMemoryDeleted))
}

func TestBus_EnvelopeImmutablePayload(t *testing.T) {
	b := New(10, zerolog.Nop())
	type payload struct{ N int }
	p := &payload{N: 1}
	b.On(TopicMemoryQueried, func(e Envelope) {
		got := e.Payload.(*payload)
		require.Equal(t, 1, got.N)
	})
	b.Emit(TopicMemoryQueried, p, Context{})
}
