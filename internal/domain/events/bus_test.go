package events

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDelivers(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	sent := bus.Publish(Event{Type: InstanceStarted, App: "tool", PID: 42})
	assert.True(t, strings.HasPrefix(sent.ID.String(), "evt_"))
	assert.False(t, sent.Time.IsZero())

	for _, sub := range []*Subscription{a, b} {
		got := <-sub.C
		assert.Equal(t, sent, got)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{Type: OptionSet})
	bus.Publish(Event{Type: OptionSet})
	bus.Publish(Event{Type: OptionSet})

	assert.Equal(t, uint64(2), sub.Dropped())
	<-sub.C
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.Len())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Len())
	_, open := <-sub.C
	assert.False(t, open)

	bus.Publish(Event{Type: AppRemoved})
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	evt := bus.Publish(Event{Type: AppInstalled, ID: "evt_x"})
	assert.Equal(t, Type("app.installed"), evt.Type)
}
