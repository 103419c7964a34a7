package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversInOrderUntilCancelled(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	first := bus.Subscribe(nil, func(c Change) { got = append(got, "first:"+string(c.Kind)) })
	second := bus.Subscribe(ForProject("p1"), func(c Change) { got = append(got, "second:"+c.ProjectID) })

	bus.Publish(Change{Kind: TaskMoved, ProjectID: "p1"})
	bus.Publish(Change{Kind: TaskAdded, ProjectID: "p2"})
	assert.Equal(t, []string{"first:task_moved", "second:p1", "first:task_added"}, got)

	first.Cancel()
	first.Cancel()
	assert.Equal(t, 1, bus.Len())

	got = nil
	bus.Publish(Change{Kind: SprintStarted, ProjectID: "p1"})
	assert.Equal(t, []string{"second:p1"}, got)

	second.Cancel()
	assert.Zero(t, bus.Len())
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(nil)
	delivered := false

	bus.Subscribe(nil, func(Change) { panic("bad subscriber") })
	bus.Subscribe(nil, func(Change) { delivered = true })

	assert.NotPanics(t, func() { bus.Publish(Change{Kind: ProjectCreated}) })
	assert.True(t, delivered)
}

func TestBus_CancelInsideHandler(t *testing.T) {
	bus := NewBus(nil)
	calls := 0

	var sub *Subscription
	sub = bus.Subscribe(nil, func(Change) {
		calls++
		sub.Cancel()
	})

	bus.Publish(Change{Kind: TaskUpdated})
	bus.Publish(Change{Kind: TaskUpdated})
	assert.Equal(t, 1, calls)
}
