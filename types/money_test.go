package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyString(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		display string
	}{
		{"cents", USD(30), "$0.30"},
		{"dollars", USD(4900), "$49.00"},
		{"zero", Zero("USD"), "$0.00"},
		{"negative", USD(-250), "$-2.50"},
		{"zero decimal", Money{Amount: 100, Currency: "jpy"}, "¥100"},
		{"unknown currency", Money{Amount: 1234, Currency: "xyz"}, "XYZ 12.34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String() = %q, want %q", got, tt.display)
			}
		})
	}
}

func TestFromMinor(t *testing.T) {
	m := FromMinor(30, "USD")
	if m.Amount != 30 || m.Currency != "usd" {
		t.Errorf("FromMinor(30) = %+v", m)
	}

	clamped := FromMinor(MaxAmount+1, "usd")
	if clamped.Amount <= 0 {
		t.Errorf("FromMinor past MaxAmount must stay positive, got %d", clamped.Amount)
	}
}

func TestMinorPerMajor(t *testing.T) {
	tests := []struct {
		currency string
		want     uint64
	}{
		{"usd", 100},
		{"EUR", 100},
		{"jpy", 1},
		{"xyz", 100},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			if got := MinorPerMajor(tt.currency); got != tt.want {
				t.Errorf("MinorPerMajor(%q) = %d, want %d", tt.currency, got, tt.want)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(1550))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["display"] != "$15.50" {
		t.Errorf("display = %v, want $15.50", raw["display"])
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal into Money failed: %v", err)
	}
	if back != USD(1550) {
		t.Errorf("round trip = %+v, want %+v", back, USD(1550))
	}
}

func TestEntityTouch(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	e := NewEntityAt(created)
	if e.CreatedAt.Location() != time.UTC {
		t.Error("expected UTC timestamps")
	}
	if !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Error("expected CreatedAt == UpdatedAt on creation")
	}

	later := created.Add(time.Hour)
	e.Touch(later)
	if !e.UpdatedAt.Equal(later) || !e.CreatedAt.Equal(created) {
		t.Errorf("Touch changed the wrong field: %+v", e)
	}
}
