package compose

import (
	"strconv"
	"time"

	"github.com/PulfordJ/lastsignal/internal/duration"
)

// TimestampLayout formats times shown in messages.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Placeholder names supplied by Values.
const (
	KeyTimestamp               = "timestamp"
	KeyLastCheckin             = "last_checkin"
	KeyElapsed                 = "elapsed"
	KeyMaxTimeSinceLastCheckin = "max_time_since_last_checkin"
	KeyDurationBetweenCheckins = "duration_between_checkins"
	KeyCheckinRequestCount     = "checkin_request_count"
	KeyPersonName              = "person_name"
	KeyContactInfo             = "contact_info"
)

// Input is the data placeholders are filled from.
type Input struct {
	Now                     time.Time
	LastCheckin             *time.Time
	DurationBetweenCheckins duration.Duration
	MaxTimeSinceLastCheckin duration.Duration
	CheckinRequestCount     uint64
	PersonName              string
	ContactInfo             string
}

// Values builds the placeholder map. person_name and contact_info are only
// present when configured, so templates that need them fail instead of
// rendering blanks.
func Values(in Input) map[string]string {
	v := map[string]string{
		KeyTimestamp:               in.Now.UTC().Format(TimestampLayout),
		KeyLastCheckin:             "never",
		KeyElapsed:                 "unknown",
		KeyMaxTimeSinceLastCheckin: in.MaxTimeSinceLastCheckin.String(),
		KeyDurationBetweenCheckins: in.DurationBetweenCheckins.String(),
		KeyCheckinRequestCount:     strconv.FormatUint(in.CheckinRequestCount, 10),
	}
	if in.LastCheckin != nil {
		v[KeyLastCheckin] = in.LastCheckin.UTC().Format(TimestampLayout)
		if elapsed := in.Now.Sub(*in.LastCheckin); elapsed > 0 {
			v[KeyElapsed] = humanize(elapsed)
		} else {
			v[KeyElapsed] = "0s"
		}
	}
	if in.PersonName != "" {
		v[KeyPersonName] = in.PersonName
	}
	if in.ContactInfo != "" {
		v[KeyContactInfo] = in.ContactInfo
	}
	return v
}

// humanize renders d as days, hours and minutes, dropping zero parts.
func humanize(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute

	out := ""
	add := func(n time.Duration, unit string) {
		if n == 0 {
			return
		}
		if out != "" {
			out += " "
		}
		out += strconv.FormatInt(int64(n), 10) + unit
	}
	add(days, "d")
	add(hours, "h")
	add(mins, "m")
	return out
}
