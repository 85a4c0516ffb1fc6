package compose

import "github.com/PulfordJ/lastsignal/internal/channel"

// ReminderSubject is the subject of check-in reminders.
const ReminderSubject = "LastSignal check-in reminder"

const reminderTemplate = `Hello! This is your scheduled check-in reminder from LastSignal.

Your last check-in was {last_checkin} ({elapsed} ago). Please check in to confirm you're okay.
If you don't check in within {max_time_since_last_checkin} of your last check-in, your emergency contacts will be notified.

To check in, run "lastsignal checkin" or use any configured activity source.

Reminders sent this period: {checkin_request_count}`

// Reminder renders the built-in check-in reminder.
func Reminder(values map[string]string) (channel.Message, error) {
	body, err := Render(reminderTemplate, values)
	if err != nil {
		return channel.Message{}, err
	}
	return channel.Message{Subject: ReminderSubject, Body: body}, nil
}
