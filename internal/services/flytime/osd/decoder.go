// Package osd extracts drone identity and lifetime flight-time counters from
// OSD telemetry messages.
//
// Payload schemas are not controlled by this service, so counter extraction
// is a best-effort search over unknown JSON shapes: absence of a match is a
// normal outcome, not a failure. The decoder is pure and total; malformed
// input degrades to "no result".
package osd

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// counterField is the payload field carrying the lifetime counter, in seconds.
const counterField = "total_flight_time"

// wrapperFields are common envelope keys checked, in order, before the
// generic scan descends into unknown structure.
var wrapperFields = [...]string{"data", "osd", "state", "payload"}

// scanLimit bounds how many values of a single object or array the generic
// scan visits.
const scanLimit = 50

// DroneSN extracts the drone serial number from an OSD topic of the form
// thing/product/<sn>/osd. Any other topic shape yields no result.
func DroneSN(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "thing" || parts[1] != "product" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// TotalFlightTime extracts the lifetime flight-time counter from a telemetry
// payload, rounded to the nearest second. ok is false when the payload is not
// valid JSON or carries no recognizable counter.
func TotalFlightTime(payload []byte) (int64, bool) {
	if !gjson.ValidBytes(payload) {
		return 0, false
	}
	seconds, ok := findCounter(gjson.ParseBytes(payload))
	if !ok {
		return 0, false
	}
	return int64(math.Round(seconds)), true
}

func findCounter(value gjson.Result) (float64, bool) {
	switch {
	case value.Type == gjson.Number:
		return value.Num, true
	case value.IsObject():
		if field := value.Get(counterField); field.Type == gjson.Number {
			return field.Num, true
		}
		for _, wrapper := range wrapperFields {
			wrapped := value.Get(wrapper)
			if !wrapped.Exists() {
				continue
			}
			if seconds, ok := findCounter(wrapped); ok {
				return seconds, true
			}
		}
		return scanChildren(value)
	case value.IsArray():
		return scanChildren(value)
	}
	return 0, false
}

// scanChildren walks the first scanLimit children in document order and
// returns the first counter found at any depth.
func scanChildren(value gjson.Result) (float64, bool) {
	var (
		seconds float64
		found   bool
		visited int
	)
	value.ForEach(func(_, child gjson.Result) bool {
		if visited >= scanLimit {
			return false
		}
		visited++
		if s, ok := findCounter(child); ok {
			seconds = s
			found = true
			return false
		}
		return true
	})
	return seconds, found
}
