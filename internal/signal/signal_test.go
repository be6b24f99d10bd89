package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeReceivesCurrentValueThenChanges(t *testing.T) {
	s := New(false)
	var seen []bool
	unsubscribe := s.Subscribe(func(v bool) { seen = append(seen, v) })
	defer unsubscribe()

	assert.True(t, s.Set(true))
	assert.Equal(t, []bool{false, true}, seen)
}

func TestSetWithSameValueDoesNotNotify(t *testing.T) {
	s := New(false)
	calls := 0
	s.Subscribe(func(bool) { calls++ })

	s.Set(true)
	assert.False(t, s.Set(true))
	assert.Equal(t, 2, calls)
	assert.True(t, s.Get())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := New(0)
	var seen []int
	unsubscribe := s.Subscribe(func(v int) { seen = append(seen, v) })

	s.Set(1)
	unsubscribe()
	unsubscribe()
	s.Set(2)

	assert.Equal(t, []int{0, 1}, seen)
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	s := New("")
	var order []string
	s.Subscribe(func(v string) {
		if v != "" {
			order = append(order, "a")
		}
	})
	s.Subscribe(func(v string) {
		if v != "" {
			order = append(order, "b")
		}
	})

	s.Set("x")
	assert.Equal(t, []string{"a", "b"}, order)
}
