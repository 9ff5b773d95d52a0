package budget

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/alfredjeanlab/budgets/internal/model"
)

func TestPercentCutPolicy(t *testing.T) {
	p := PercentCutPolicy{CutBps: DefaultThrottleCutBps}
	got, err := p.Throttle(1001)
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("Throttle(1001) = %d, want 500", got)
	}

	if _, err := (PercentCutPolicy{CutBps: 10001}).Throttle(100); !errors.Is(err, model.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter, got %v", err)
	}
	if got, _ := (PercentCutPolicy{CutBps: 10000}).Throttle(100); got != 0 {
		t.Errorf("full cut = %d, want 0", got)
	}
}

func TestCapPolicy(t *testing.T) {
	p := CapPolicy{MaxCents: 250}
	for _, tc := range []struct{ in, want int64 }{{100, 100}, {250, 250}, {900, 250}} {
		if got, _ := p.Throttle(tc.in); got != tc.want {
			t.Errorf("Throttle(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseThrottleConfig(t *testing.T) {
	for _, tc := range []struct {
		raw      string
		wantName string
		wantErr  bool
	}{
		{`{"mode":"percent_cut","cut_bps":2500}`, "percent_cut", false},
		{`{"cut_bps":2500}`, "percent_cut", false},
		{`{"mode":"cap","max_cents":500}`, "cap", false},
		{`{"mode":"cap","max_cents":-1}`, "", true},
		{`{"mode":"delay"}`, "", true},
		{`not json`, "", true},
	} {
		p, err := ParseThrottleConfig(json.RawMessage(tc.raw))
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseThrottleConfig(%s) error = %v, wantErr %v", tc.raw, err, tc.wantErr)
			continue
		}
		if err == nil && p.Name() != tc.wantName {
			t.Errorf("ParseThrottleConfig(%s) = %s, want %s", tc.raw, p.Name(), tc.wantName)
		}
	}
}

func TestConfigOf(t *testing.T) {
	for _, p := range []ThrottlePolicy{PercentCutPolicy{CutBps: 2500}, CapPolicy{MaxCents: 900}} {
		tc, ok := ConfigOf(p)
		if !ok {
			t.Fatalf("ConfigOf(%s) not ok", p.Name())
		}
		back, err := tc.Policy()
		if err != nil {
			t.Fatalf("Policy(): %v", err)
		}
		if back != p {
			t.Errorf("round trip = %#v, want %#v", back, p)
		}
	}
}
