package typeguard

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/animus-labs/runlog/internal/domain"
)

type checkpoint struct{ Step int }

func (c checkpoint) String() string { return "checkpoint" }

func sample() domain.Value {
	return domain.FromAny(map[string]any{
		"train": map[string]any{
			"loss":  0.25,
			"model": checkpoint{Step: 3},
			"hist":  []any{1, math.NaN(), "x"},
		},
		"ok": true,
	})
}

func TestApplyError(t *testing.T) {
	_, _, err := Apply(sample(), PolicyError)
	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if unknown.Path != "train.hist[1]" {
		t.Fatalf("Path=%q, want first unknown in key order", unknown.Path)
	}
	if unknown.GoType != "float64" {
		t.Fatalf("GoType=%q, want float64", unknown.GoType)
	}
}

func TestApplyErrorPassesKnownValues(t *testing.T) {
	in := domain.FromAny(map[string]any{"aa": []any{1, 2}, "bb": map[string]any{"mean": 6.5, "note": nil}})
	out, report, err := Apply(in, PolicyError)
	if err != nil {
		t.Fatalf("Apply() err=%v", err)
	}
	if !report.Empty() {
		t.Fatalf("unexpected report %+v", report)
	}
	if !out.Equal(in) {
		t.Fatalf("known values changed")
	}
}

func TestApplyDropPolicies(t *testing.T) {
	for _, policy := range []Policy{PolicyWarn, PolicyIgnore} {
		t.Run(string(policy), func(t *testing.T) {
			out, report, err := Apply(sample(), policy)
			if err != nil {
				t.Fatalf("Apply() err=%v", err)
			}
			raw, err := json.Marshal(out)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			want := `{"ok":true,"train":{"hist":[1,"x"],"loss":0.25}}`
			if string(raw) != want {
				t.Fatalf("Apply()=%s, want %s", raw, want)
			}
			if len(report.Dropped) != 2 || report.Dropped[0].Path != "train.hist[1]" || report.Dropped[1].Path != "train.model" {
				t.Fatalf("unexpected dropped %+v", report.Dropped)
			}
		})
	}
}

func TestApplyCoerce(t *testing.T) {
	out, report, err := Apply(sample(), PolicyCoerce)
	if err != nil {
		t.Fatalf("Apply() err=%v", err)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"ok":true,"train":{"hist":[1,"NaN","x"],"loss":0.25,"model":"checkpoint"}}`
	if string(raw) != want {
		t.Fatalf("Apply()=%s, want %s", raw, want)
	}
	if len(report.Coerced) != 2 {
		t.Fatalf("unexpected coerced %+v", report.Coerced)
	}
}

func TestApplyRejectsBadPolicy(t *testing.T) {
	if _, _, err := Apply(sample(), Policy("skip")); err == nil {
		t.Fatalf("expected error for unsupported policy")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":        DefaultPolicy,
		"WARN":    PolicyWarn,
		" coerce": PolicyCoerce,
		"ignore":  PolicyIgnore,
		"error":   PolicyError,
	}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil {
			t.Fatalf("ParsePolicy(%q) err=%v", in, err)
		}
		if got != want {
			t.Fatalf("ParsePolicy(%q)=%s, want %s", in, got, want)
		}
	}
	if _, err := ParsePolicy("panic"); err == nil {
		t.Fatalf("expected error")
	}
}
