package main

import (
	"testing"

	"github.com/shopspring/decimal"

	cl "github.com/lemonphresh/osrsbingo-sub001/internal/cli"
)

func TestComma(t *testing.T) {
	tests := map[string]string{
		"0":           "0",
		"999":         "999",
		"1000":        "1,000",
		"60000000":    "60,000,000",
		"-1500":       "-1,500",
		"123456.789":  "123,456",
		"-999":        "-999",
		"10000000000": "10,000,000,000",
	}
	for in, want := range tests {
		if got := comma(decimal.RequireFromString(in)); got != want {
			t.Fatalf("comma(%s)=%q want %q", in, got, want)
		}
	}
}

func TestAlreadyApplied(t *testing.T) {
	if !alreadyApplied(&cl.APIError{Status: 409, Code: "ALREADY_COMPLETED"}) {
		t.Fatalf("already completed should count as applied")
	}
	if alreadyApplied(&cl.APIError{Status: 422, Code: "NODE_LOCKED"}) {
		t.Fatalf("node locked is a real rejection")
	}
	if alreadyApplied(nil) {
		t.Fatalf("nil error is not a replay hit")
	}
}
