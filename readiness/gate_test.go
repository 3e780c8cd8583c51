package readiness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestGate(onError func(error)) *Gate {
	logger, _ := zap.NewDevelopment()
	return NewGate(logger, onError)
}

func TestGate_QueuedCallbacksRunInSubmissionOrder(t *testing.T) {
	g := newTestGate(nil)
	var got []int

	for i := 0; i < 5; i++ {
		i := i
		g.Ready(func() { got = append(got, i) })
	}
	assert.Empty(t, got)

	g.SetReady()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestGate_CallbackAfterReadyRunsImmediately(t *testing.T) {
	g := newTestGate(nil)
	g.SetReady()

	ran := false
	g.Ready(func() { ran = true })
	assert.True(t, ran)
}

func TestGate_EachCallbackRunsExactlyOnce(t *testing.T) {
	g := newTestGate(nil)
	counts := make(map[string]int)

	g.Ready(func() { counts["a"]++ })
	g.Ready(func() { counts["b"]++ })
	g.SetReady()
	g.Ready(func() { counts["c"]++ })

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, counts)
}

func TestGate_ReentrantReadyDuringDrainRunsSamePass(t *testing.T) {
	g := newTestGate(nil)
	var got []string

	g.Ready(func() {
		got = append(got, "outer")
		g.Ready(func() { got = append(got, "inner") })
	})
	g.Ready(func() { got = append(got, "second") })
	g.SetReady()

	assert.Equal(t, []string{"outer", "second", "inner"}, got)
}

func TestGate_PanickingCallbackDoesNotBlockDrain(t *testing.T) {
	g := newTestGate(nil)
	var got []string

	g.Ready(func() { panic("boom") })
	g.Ready(func() { got = append(got, "after") })

	assert.NotPanics(t, func() { g.SetReady() })
	assert.Equal(t, []string{"after"}, got)
}

func TestGate_FailReportsErrorAndDropsQueue(t *testing.T) {
	var reported error
	g := newTestGate(func(err error) { reported = err })

	ran := false
	g.Ready(func() { ran = true })

	bootErr := errors.New("create user: 503")
	g.Fail(bootErr)

	assert.Equal(t, bootErr, reported)
	assert.False(t, ran)

	// Callbacks submitted after the failure are dropped, not queued.
	g.Ready(func() { ran = true })
	assert.False(t, ran)
}

func TestGate_SetReadyAfterFailReopens(t *testing.T) {
	g := newTestGate(func(error) {})
	g.Fail(fmt.Errorf("transient"))
	g.SetReady()

	ran := false
	g.Ready(func() { ran = true })
	assert.True(t, ran)
}
