package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_EmitReachesAllHandlers(t *testing.T) {
	b := NewBus()
	var got []string

	b.On("ready", func(p interface{}) { got = append(got, "first") })
	b.On("ready", func(p interface{}) { got = append(got, "second") })
	b.Emit("ready", nil)

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_EmitPassesPayload(t *testing.T) {
	b := NewBus()
	var payload interface{}

	b.On("payment_success", func(p interface{}) { payload = p })
	b.Emit("payment_success", "user-1")

	assert.Equal(t, "user-1", payload)
}

func TestBus_EmitUnknownEventIsNoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { b.Emit("nothing", nil) })
}

func TestBus_Off(t *testing.T) {
	b := NewBus()
	calls := 0

	b.On("product_changed", func(p interface{}) { calls++ })
	b.Off("product_changed")
	b.Emit("product_changed", nil)

	assert.Zero(t, calls)
}
