package geo

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceOneDegreeLongitude(t *testing.T) {
	// One degree of longitude along the equator is roughly 111.195 km.
	d := Distance(0, 0, 0, 1)
	expected := 111195.0
	if math.Abs(d-expected)/expected > 0.01 {
		t.Fatalf("expected ~%f, got %f", expected, d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	d1 := Distance(48.8566, 2.3522, 51.5074, -0.1278)
	d2 := Distance(51.5074, -0.1278, 48.8566, 2.3522)
	if math.Abs(d1-d2) > 1e-6 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
	// Paris to London is about 344 km.
	if d1 < 330000 || d1 > 360000 {
		t.Fatalf("unexpected Paris-London distance: %f", d1)
	}
}

func TestCoordinateUnmarshalNumber(t *testing.T) {
	var c Coordinate
	if err := json.Unmarshal([]byte(`12.3456789012345`), &c); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if c.String() != "12.3456789012345" {
		t.Fatalf("precision lost: %q", c.String())
	}
}

func TestCoordinateUnmarshalString(t *testing.T) {
	var c Coordinate
	if err := json.Unmarshal([]byte(`"-73.985428"`), &c); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if c.Float64() != -73.985428 {
		t.Fatalf("unexpected value: %f", c.Float64())
	}
}

func TestCoordinateUnmarshalInvalid(t *testing.T) {
	var c Coordinate
	if err := json.Unmarshal([]byte(`"north"`), &c); err == nil {
		t.Fatal("expected error for non-numeric coordinate")
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	c, err := ParseCoordinate("55.7558000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Coordinate
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Trailing zeros survive the round trip.
	if back.String() != "55.7558000" {
		t.Fatalf("round trip changed value: %q", back.String())
	}
}

func TestCoordinateScan(t *testing.T) {
	var c Coordinate
	if err := c.Scan([]byte("139.691706")); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if c.String() != "139.691706" {
		t.Fatalf("unexpected scanned value: %q", c.String())
	}
}
