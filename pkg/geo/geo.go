package geo

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371000.0

// Coordinate represents a decimal latitude or longitude value. The original
// decimal text is retained so values survive JSON and database round trips
// without floating point drift; arithmetic works on the float64 projection.
type Coordinate string

// ParseCoordinate parses a decimal coordinate from its text form
func ParseCoordinate(s string) (Coordinate, error) {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("invalid coordinate %q", s)
	}
	return Coordinate(s), nil
}

// FromFloat converts a float64 into a Coordinate
func FromFloat(f float64) Coordinate {
	return Coordinate(strconv.FormatFloat(f, 'f', -1, 64))
}

// String returns the decimal text representation
func (c Coordinate) String() string {
	return string(c)
}

// Float64 returns the numeric projection of the coordinate
func (c Coordinate) Float64() float64 {
	f, _ := strconv.ParseFloat(string(c), 64)
	return f
}

// MarshalJSON implements json.Marshaler
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	return []byte(`"` + string(c) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Both decimal strings and bare
// JSON numbers are accepted on the wire.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*c = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseCoordinate(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer
func (c Coordinate) Value() (driver.Value, error) {
	if c == "" {
		return nil, nil
	}
	return string(c), nil
}

// Scan implements sql.Scanner
func (c *Coordinate) Scan(value interface{}) error {
	if value == nil {
		*c = ""
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*c = Coordinate(v)
		return nil
	case string:
		*c = Coordinate(v)
		return nil
	case float64:
		*c = FromFloat(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Coordinate", value)
	}
}

// Distance computes the great-circle distance in meters between two points
// using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
