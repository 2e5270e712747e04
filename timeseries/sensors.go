/*Package timeseries stores flattened twin records as time series and serves aggregates

Every numeric property of a record becomes one row of the "_telemetry_" table: the twin id,
the flattened property name, the time of arrival and the value. Coerced booleans are stored
as 1 and 0, so averages of State or IsOccupied are duty cycles.

Sensors are grouped by type. The twins of a type are named "<type>sensor<n>", n counting from
one, and each type is charted by one property:

	hvac       airflow      Long
	lighting   State        Long
	temp       temperature  Double
	occupancy  IsOccupied   Long

The API serves average aggregates per interval bucket:

	GET /timeseries/{sensor_type}?since=60m&interval=pt3m
*/
package timeseries

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SensorType is a type of sensor twins
type SensorType string

// Sensor types
const (
	HVAC      SensorType = "hvac"
	Lighting  SensorType = "lighting"
	Temp      SensorType = "temp"
	Occupancy SensorType = "occupancy"
)

var (
	// ErrUnknownSensorType is returned for sensor types without a property
	ErrUnknownSensorType = errors.New("unknown sensor type")
	// ErrInvalidSince is returned for since expressions other than [<n>h][<n>m][<n>s]
	ErrInvalidSince = errors.New("invalid since expression")
	// ErrInvalidInterval is returned for interval expressions other than pt<n>[dhms]
	ErrInvalidInterval = errors.New("invalid interval expression")
)

// Property is the event property charted for a sensor type
type Property struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

var properties = map[SensorType]Property{
	HVAC:      {Name: "airflow", Type: "Long"},
	Lighting:  {Name: "State", Type: "Long"},
	Temp:      {Name: "temperature", Type: "Double"},
	Occupancy: {Name: "IsOccupied", Type: "Long"},
}

// SensorTypes returns all sensor types
func SensorTypes() []SensorType {
	return []SensorType{HVAC, Lighting, Temp, Occupancy}
}

// ParseSensorType returns the sensor type named s
func ParseSensorType(s string) (SensorType, error) {
	t := SensorType(strings.ToLower(s))
	if _, ok := properties[t]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownSensorType, s)
	}
	return t, nil
}

// PropertyOf returns the property charted for t
func PropertyOf(t SensorType) (Property, error) {
	p, ok := properties[t]
	if !ok {
		return Property{}, fmt.Errorf("%w: '%s'", ErrUnknownSensorType, t)
	}
	return p, nil
}

// SensorIDs returns the twin ids "<type>sensor<n>" for n in [start, start+count)
func SensorIDs(t SensorType, start, count int) []string {
	ids := make([]string, 0, count)
	for n := start; n < start+count; n++ {
		ids = append(ids, string(t)+"sensor"+strconv.Itoa(n))
	}
	return ids
}

var (
	sinceRegexp    = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)
	intervalRegexp = regexp.MustCompile(`^pt(\d+)([dhms])$`)
)

// ParseSince parses a look-back duration like "1h", "20m" or "2h30m". Units are hours,
// minutes and seconds, in that order, each optional. Matching is case insensitive.
func ParseSince(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := sinceRegexp.FindStringSubmatch(s)
	if s == "" || m == nil {
		return 0, fmt.Errorf("%w: '%s'", ErrInvalidSince, s)
	}
	var d time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("%w: '%s'", ErrInvalidSince, s)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}

// ParseInterval parses a bucket size like "pt3m", a restricted ISO 8601 duration with a
// single unit of days, hours, minutes or seconds. The interval must be positive.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := intervalRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: '%s'", ErrInvalidInterval, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: '%s'", ErrInvalidInterval, s)
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[m[2]]
	return time.Duration(n) * unit, nil
}
