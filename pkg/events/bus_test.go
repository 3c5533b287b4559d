package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_KeyedDelivery(t *testing.T) {
	tests := []struct {
		name     string
		subKey   string
		eventKey string
		want     bool
	}{
		{name: "matching key", subKey: "h1", eventKey: "h1", want: true},
		{name: "different key", subKey: "h1", eventKey: "h2", want: false},
		{name: "broadcast to keyed subscriber", subKey: "h1", eventKey: "", want: true},
		{name: "wildcard subscriber", subKey: "", eventKey: "h2", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := New()
			got := false
			bus.Subscribe(TopicOutput, tt.subKey, func(Event) { got = true })

			bus.Publish(TopicOutput, tt.eventKey, Output{Data: "x"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBus_PublishOrderAndPayload(t *testing.T) {
	bus := New()
	var seen []string

	bus.Subscribe(TopicInput, "s1", func(e Event) {
		seen = append(seen, "first:"+e.Payload.(Input).Data)
	})
	bus.Subscribe(TopicInput, "s1", func(e Event) {
		seen = append(seen, "second:"+e.Payload.(Input).Data)
	})

	bus.Publish(TopicInput, "s1", Input{Data: "ls"})
	assert.Equal(t, []string{"first:ls", "second:ls"}, seen)
}

func TestRegistration_RemoveIsIdempotent(t *testing.T) {
	bus := New()
	calls := 0
	reg := bus.Subscribe(TopicTitle, "", func(Event) { calls++ })

	reg.Remove()
	reg.Remove()

	bus.Publish(TopicTitle, "", Title{Title: "t"})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Count(TopicTitle))

	var nilReg *Registration
	assert.NotPanics(t, nilReg.Remove)
}

func TestRegistrations_RemoveAll(t *testing.T) {
	bus := New()
	var regs Registrations

	regs.Add(bus.Subscribe(TopicOutput, "h", func(Event) {}))
	regs.Add(bus.Subscribe(TopicProcessExit, "h", func(Event) {}))
	require.Equal(t, 2, regs.Len())

	regs.RemoveAll()
	regs.RemoveAll()

	assert.Equal(t, 0, regs.Len())
	assert.Equal(t, 0, bus.Count(TopicOutput))
	assert.Equal(t, 0, bus.Count(TopicProcessExit))
}

func TestBus_HandlerRemovedDuringPublish(t *testing.T) {
	bus := New()
	var second *Registration
	secondCalls := 0

	bus.Subscribe(TopicProcessExit, "", func(Event) { second.Remove() })
	second = bus.Subscribe(TopicProcessExit, "", func(Event) { secondCalls++ })

	bus.Publish(TopicProcessExit, "", ProcessExit{})
	assert.Equal(t, 0, secondCalls, "handler removed by an earlier handler must not run")
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	bus := New()
	lateCalls := 0

	bus.Subscribe(TopicResize, "", func(Event) {
		bus.Subscribe(TopicResize, "", func(Event) { lateCalls++ })
	})

	bus.Publish(TopicResize, "", Resize{Cols: 80, Rows: 24})
	assert.Equal(t, 0, lateCalls)

	bus.Publish(TopicResize, "", Resize{Cols: 80, Rows: 24})
	assert.Equal(t, 1, lateCalls)
}

func TestSerializationAction_String(t *testing.T) {
	assert.Equal(t, "suspend", SerializationSuspend.String())
	assert.Equal(t, "resume", SerializationResume.String())
	assert.Equal(t, "unknown", SerializationAction(0).String())
}
