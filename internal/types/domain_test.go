package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailAddressString(t *testing.T) {
	assert.Equal(t, "Notekeeper <reminders@example.com>",
		EmailAddress{Name: "Notekeeper", Address: "reminders@example.com"}.String())
	assert.Equal(t, "reminders@example.com",
		EmailAddress{Address: "reminders@example.com"}.String())
}

func TestReminderLive(t *testing.T) {
	at := time.Now().UTC().Add(time.Hour)

	assert.False(t, Reminder{}.Live())
	assert.True(t, Reminder{At: &at, ScheduleID: "sched_1"}.Live())
	assert.False(t, Reminder{At: &at, ScheduleID: "sched_1", Sent: true}.Live())
	assert.False(t, Reminder{At: &at}.Live())
}
