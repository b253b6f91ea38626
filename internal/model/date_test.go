package model_test

import (
	"testing"
	"time"

	"ttrack/internal/model"
)

func TestDateOf(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading location: %v", err)
	}

	// 01:30 UTC on the 16th is still the 15th in New York.
	utc := time.Date(2024, 1, 16, 1, 30, 0, 0, time.UTC)
	if got := model.DateOf(utc.In(loc)); got != (model.Date{Year: 2024, Month: time.January, Day: 15}) {
		t.Errorf("DateOf() = %v, want 2024-01-15", got)
	}
	if got := model.DateOf(utc); got != (model.Date{Year: 2024, Month: time.January, Day: 16}) {
		t.Errorf("DateOf() = %v, want 2024-01-16", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := model.ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d.String() != "2024-02-29" {
		t.Errorf("String() = %q", d.String())
	}

	if _, err := model.ParseDate("not-a-date"); err == nil {
		t.Error("ParseDate() accepted garbage")
	}
	if _, err := model.ParseDate("2023-02-29"); err == nil {
		t.Error("ParseDate() accepted an invalid leap day")
	}
}

func TestDateAddDays(t *testing.T) {
	tests := []struct {
		name string
		in   model.Date
		n    int
		want string
	}{
		{"within month", model.Date{2024, time.January, 10}, 5, "2024-01-15"},
		{"across month", model.Date{2024, time.January, 30}, 3, "2024-02-02"},
		{"across year backwards", model.Date{2024, time.January, 2}, -5, "2023-12-28"},
		{"leap day", model.Date{2024, time.February, 28}, 1, "2024-02-29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.AddDays(tt.n).String(); got != tt.want {
				t.Errorf("AddDays(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestDateAfter(t *testing.T) {
	a := model.Date{2024, time.January, 15}
	b := model.Date{2024, time.January, 16}
	if a.After(b) || !b.After(a) || a.After(a) {
		t.Error("After() ordering is wrong")
	}
}
