package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/patrickjmccarty/meetup-data-mining/adapters"
)

// csvHeader is the fixed output schema. Column order is part of the file
// contract for downstream analysis; do not reorder.
var csvHeader = []string{
	"group_category", "group_age_days", "group.name", "group.id", "lat", "lon",
	"event.waitlist_count", "event.yes_rsvp_count", "event_day_of_week",
	"event_hour_of_day", "event_datetime", "event.name", "event.id", "event.status",
}

// Row is one flattened output record.
type Row struct {
	GroupCategory string
	GroupAgeDays  int
	GroupName     string
	GroupID       int64
	Lat           float64
	Lon           float64
	WaitlistCount int
	YesRSVPCount  int
	DayOfWeek     string
	HourOfDay     int
	DateTime      string
	EventName     string
	EventID       string
	Status        string
}

func (r Row) record() []string {
	return []string{
		r.GroupCategory,
		strconv.Itoa(r.GroupAgeDays),
		r.GroupName,
		strconv.FormatInt(r.GroupID, 10),
		strconv.FormatFloat(r.Lat, 'g', -1, 64),
		strconv.FormatFloat(r.Lon, 'g', -1, 64),
		strconv.Itoa(r.WaitlistCount),
		strconv.Itoa(r.YesRSVPCount),
		r.DayOfWeek,
		strconv.Itoa(r.HourOfDay),
		r.DateTime,
		r.EventName,
		r.EventID,
		r.Status,
	}
}

// flattenEvent derives one flat row from a raw event plus its enclosing
// category and the time-status the page was requested with. Timestamps from
// the API are milliseconds since the epoch and are interpreted as UTC.
func flattenEvent(ev adapters.Event, categoryName, requestedStatus string, now time.Time) Row {
	groupCreated := time.UnixMilli(ev.Group.Created).UTC()
	groupAgeDays := int(now.UTC().Sub(groupCreated).Hours() / 24)

	start := time.UnixMilli(ev.Time).UTC()

	// The venue location is not always public; fall back to the group's
	// general location.
	lat := ev.Group.GroupLat
	lon := ev.Group.GroupLon
	if ev.Venue != nil {
		lat = ev.Venue.Lat
		lon = ev.Venue.Lon
	}

	// The server sometimes omits status on upcoming events; fall back to the
	// status the page was requested with.
	status := ev.Status
	if status == "" {
		status = requestedStatus
	}

	return Row{
		GroupCategory: categoryName,
		GroupAgeDays:  groupAgeDays,
		GroupName:     stripCommas(ev.Group.Name),
		GroupID:       ev.Group.ID,
		Lat:           lat,
		Lon:           lon,
		WaitlistCount: ev.WaitlistCount,
		YesRSVPCount:  ev.YesRSVPCount,
		DayOfWeek:     start.Weekday().String(),
		HourOfDay:     start.Hour(),
		DateTime:      start.Format("2006-01-02 15:04"),
		EventName:     stripCommas(ev.Name),
		EventID:       ev.ID,
		Status:        status,
	}
}

// stripCommas keeps free-text fields from breaking the comma-delimited row
// structure.
func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", ";")
}
