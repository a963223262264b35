package broadcast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa/pos-edge/broadcast"
	"github.com/mesa/pos-edge/ledger"
)

func event(seq uint64) ledger.OrderEvent {
	return ledger.OrderEvent{
		Sequence: seq,
		OrderID:  "ord-1",
		Type:     ledger.EventItemsAdded,
	}
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := broadcast.NewHub(8)
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(event(1))
	hub.Publish(event(2))
	hub.Publish(event(3))

	for want := uint64(1); want <= 3; want++ {
		got := <-sub.Events()
		assert.Equal(t, want, got.Sequence)
	}
}

func TestHub_OverflowDropsAndSignalsLag(t *testing.T) {
	// GIVEN: A subscriber with a buffer of 2 that never drains
	// WHEN: Three events are published
	// THEN: Publish does not block, the third event is dropped, the lag
	//       channel fires, and Missed reports one drop

	hub := broadcast.NewHub(2)
	sub := hub.Subscribe()
	defer sub.Close()

	hub.Publish(event(1))
	hub.Publish(event(2))
	hub.Publish(event(3)) // overflow

	select {
	case <-sub.Lag():
	default:
		t.Fatal("lag signal expected after overflow")
	}
	assert.EqualValues(t, 1, sub.Missed())

	// The buffered events are intact.
	first := <-sub.Events()
	second := <-sub.Events()
	assert.EqualValues(t, 1, first.Sequence)
	assert.EqualValues(t, 2, second.Sequence)

	sub.ResetMissed()
	assert.EqualValues(t, 0, sub.Missed())
}

func TestHub_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	hub := broadcast.NewHub(1)
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer slow.Close()
	defer fast.Close()

	hub.Publish(event(1))
	hub.Publish(event(2)) // overflows slow's buffer

	// fast also has buffer 1, so it drops as well; the point is that
	// drops are tracked per subscriber and publishing never blocked.
	require.EqualValues(t, 1, slow.Missed())

	got := <-slow.Events()
	assert.EqualValues(t, 1, got.Sequence)
}

func TestHub_Close_Unsubscribes(t *testing.T) {
	hub := broadcast.NewHub(4)
	sub := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	sub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	_, open := <-sub.Events()
	assert.False(t, open, "events channel closes on unsubscribe")

	// Publishing after close must not panic.
	hub.Publish(event(9))
}
