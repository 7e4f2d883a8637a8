package validation

import (
	"strings"
	"testing"
)

func TestRequired(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"required"`
	}

	if err := v.Validate(req{}); err == nil {
		t.Error("empty required field accepted")
	}
	if err := v.Validate(req{Name: "ok"}); err != nil {
		t.Errorf("filled required field rejected: %v", err)
	}
}

func TestEmail(t *testing.T) {
	v := NewValidator()

	type req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := v.Validate(req{Email: "not-an-email"}); err == nil {
		t.Error("invalid email accepted")
	}
	if err := v.Validate(req{Email: "a@b.example"}); err != nil {
		t.Errorf("valid email rejected: %v", err)
	}
}

func TestMinMax(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"min=3,max=5"`
	}

	if err := v.Validate(req{Name: "ab"}); err == nil {
		t.Error("too-short string accepted")
	}
	if err := v.Validate(req{Name: "abcdef"}); err == nil {
		t.Error("too-long string accepted")
	}
	if err := v.Validate(req{Name: "abcd"}); err != nil {
		t.Errorf("in-range string rejected: %v", err)
	}
}

func TestCoordinateRules(t *testing.T) {
	v := NewValidator()

	type req struct {
		Lat string `json:"lat" validate:"latitude"`
		Lon string `json:"lon" validate:"longitude"`
	}

	cases := []struct {
		name    string
		in      req
		wantErr string
	}{
		{"valid", req{Lat: "52.5163", Lon: "13.3777"}, ""},
		{"lat out of range", req{Lat: "90.1", Lon: "0"}, "Lat"},
		{"lon out of range", req{Lat: "0", Lon: "-180.5"}, "Lon"},
		{"not a number", req{Lat: "north", Lon: "0"}, "Lat"},
		{"empty skipped", req{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.in)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestPositive(t *testing.T) {
	v := NewValidator()

	type req struct {
		Radius float64 `json:"radius" validate:"required,positive"`
	}

	if err := v.Validate(req{Radius: -5}); err == nil {
		t.Error("negative radius accepted")
	}
	if err := v.Validate(req{Radius: 100}); err != nil {
		t.Errorf("positive radius rejected: %v", err)
	}
}
