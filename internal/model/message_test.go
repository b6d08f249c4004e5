package model

import "testing"

func TestMessageStatusNeverRegresses(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		want     bool
	}{
		{MessageStatusSent, MessageStatusDelivered, true},
		{MessageStatusSent, MessageStatusRead, true},
		{MessageStatusDelivered, MessageStatusRead, true},
		{MessageStatusDelivered, MessageStatusSent, false},
		{MessageStatusRead, MessageStatusDelivered, false},
		{MessageStatusRead, MessageStatusSent, false},
		{MessageStatusRead, MessageStatusRead, false},
		{MessageStatusSent, MessageStatusFailed, true},
		{MessageStatusDelivered, MessageStatusFailed, true},
		{MessageStatusRead, MessageStatusFailed, false},
		{MessageStatusFailed, MessageStatusRead, false},
		{MessageStatusFailed, MessageStatusDelivered, false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvance(c.to); got != c.want {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
