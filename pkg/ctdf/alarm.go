package ctdf

import (
	"strings"
	"time"
)

// Alarm is the persisted wake-up alarm. Everything needed to fire, display or
// cancel it is in this record - nothing refers back to the Connection it came from.
type Alarm struct {
	ID string `json:"id" bson:"id" groups:"basic,widget" copier:"-"`

	TrainLabel                string `json:"trainLabel" bson:"trainlabel" groups:"basic,widget"`
	ScheduledDepartureDisplay string `json:"scheduledDepartureDisplay" bson:"scheduleddeparturedisplay" groups:"basic,widget"`
	DepartureAt               int64  `json:"departureAt" bson:"departureat" groups:"basic" copier:"-"`

	AlarmFireAt   int64  `json:"alarmFireAt" bson:"alarmfireat" groups:"basic,widget"`
	FireAtDisplay string `json:"fireAtDisplay" bson:"fireatdisplay" groups:"basic,widget"`

	OriginStationName      string `json:"originStationName" bson:"originstationname" groups:"basic,widget"`
	DestinationStationName string `json:"destinationStationName" bson:"destinationstationname" groups:"basic,widget"`

	LeadMinutes int     `json:"leadMinutes" bson:"leadminutes" groups:"basic,widget"`
	Volume      float64 `json:"volume" bson:"volume" groups:"basic"`
	SoundRef    string  `json:"soundRef" bson:"soundref" groups:"basic"`

	CreatedAt time.Time `json:"createdAt" bson:"createdat" groups:"basic"`
}

const alarmDispatchKeyPrefix = "alarm:"

// AlarmDispatchKey derives the timer key from the alarm ID only, never from mutable fields
func AlarmDispatchKey(id string) string {
	return alarmDispatchKeyPrefix + id
}

func AlarmIDFromDispatchKey(key string) (string, bool) {
	if !strings.HasPrefix(key, alarmDispatchKeyPrefix) {
		return "", false
	}

	id := strings.TrimPrefix(key, alarmDispatchKeyPrefix)
	return id, id != ""
}

func (a *Alarm) DispatchKey() string {
	return AlarmDispatchKey(a.ID)
}

// SetTiming derives the fire time and both display strings from the departure and lead time
func (a *Alarm) SetTiming(departureAt time.Time, leadMinutes int) {
	fireAt := departureAt.Add(-time.Duration(leadMinutes) * time.Minute)

	a.DepartureAt = departureAt.UnixMilli()
	a.ScheduledDepartureDisplay = FormatShortTime(departureAt)
	a.LeadMinutes = leadMinutes
	a.AlarmFireAt = fireAt.UnixMilli()
	a.FireAtDisplay = FormatShortTime(fireAt)
}

func (a *Alarm) DepartureTime() time.Time {
	return time.UnixMilli(a.DepartureAt).In(Timezone)
}

func (a *Alarm) FireTime() time.Time {
	return time.UnixMilli(a.AlarmFireAt).In(Timezone)
}

// Elapsed reports whether the fire time is at or before now
func (a *Alarm) Elapsed(now time.Time) bool {
	return a.AlarmFireAt <= now.UnixMilli()
}

func (a *Alarm) Copy() *Alarm {
	copied := *a
	return &copied
}
