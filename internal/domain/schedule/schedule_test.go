package schedule

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	fri := time.Friday
	tests := []struct {
		expr    string
		want    Spec
		wantErr bool
	}{
		{expr: "every:15m", want: Spec{Every: 15 * time.Minute}},
		{expr: "every:1h", want: Spec{Every: time.Hour}},
		{expr: "daily", want: Spec{}},
		{expr: "daily:09:30", want: Spec{Hour: 9, Minute: 30}},
		{expr: "09:30", want: Spec{Hour: 9, Minute: 30}},
		{expr: "weekly:fri", want: Spec{Weekday: &fri}},
		{expr: "weekly:fri:17:00", want: Spec{Hour: 17, Weekday: &fri}},
		{expr: "", wantErr: true},
		{expr: "every:100ms", wantErr: true},
		{expr: "every:nope", wantErr: true},
		{expr: "25:00", wantErr: true},
		{expr: "09:75", wantErr: true},
		{expr: "weekly:noday", wantErr: true},
		{expr: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Every != tt.want.Every || got.Hour != tt.want.Hour || got.Minute != tt.want.Minute {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if (got.Weekday == nil) != (tt.want.Weekday == nil) {
				t.Errorf("weekday presence mismatch")
			} else if got.Weekday != nil && *got.Weekday != *tt.want.Weekday {
				t.Errorf("weekday = %v, want %v", *got.Weekday, *tt.want.Weekday)
			}
		})
	}
}

func TestNextAfter(t *testing.T) {
	// Monday 2026-03-02 10:00 UTC.
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	interval := Spec{Every: 15 * time.Minute}
	if got := interval.NextAfter(base); got != base.Add(15*time.Minute) {
		t.Errorf("interval next = %v", got)
	}

	daily := Spec{Hour: 9, Minute: 30}
	if got := daily.NextAfter(base); got != time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC) {
		t.Errorf("daily slot already passed; next = %v, want tomorrow 09:30", got)
	}
	if got := daily.NextAfter(base.Add(-2 * time.Hour)); got != time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) {
		t.Errorf("daily next = %v, want today 09:30", got)
	}

	fri := time.Friday
	weekly := Spec{Hour: 17, Weekday: &fri}
	if got := weekly.NextAfter(base); got != time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC) {
		t.Errorf("weekly next = %v, want Friday 17:00", got)
	}
}
