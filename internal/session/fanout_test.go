package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFanOut_PublishDispatchesToConsumers(t *testing.T) {
	f := newFanOut()
	defer f.close()

	got := make(chan string, 4)
	f.subscribe(func(sessionID string, data []byte) {
		got <- sessionID + ":" + string(data)
	})

	f.publish("sess-1", []byte("hello"))

	require.Eventually(t, func() bool {
		select {
		case v := <-got:
			return v == "sess-1:hello"
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestFanOut_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFanOut()
	defer f.close()

	got := make(chan struct{}, 4)
	id := f.subscribe(func(string, []byte) { got <- struct{}{} })
	f.unsubscribe(id)

	f.publish("sess-1", []byte("x"))

	select {
	case <-got:
		t.Fatal("consumer should not have been invoked after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}
