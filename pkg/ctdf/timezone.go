package ctdf

import (
	"time"

	_ "time/tzdata"
)

// Timezone is the zone every upstream timetable in this app is published in.
// Request construction and display must never use the device zone.
var Timezone = loadTimezone("Europe/Berlin")

const ShortTimeLayout = "15:04"

func loadTimezone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}

	return loc
}

func InTimezone(t time.Time) time.Time {
	return t.In(Timezone)
}

// FormatShortTime renders HH:mm in the timetable zone
func FormatShortTime(t time.Time) string {
	return t.In(Timezone).Format(ShortTimeLayout)
}

func FormatEpochMillis(ms int64) string {
	return FormatShortTime(time.UnixMilli(ms))
}
