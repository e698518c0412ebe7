package metricfilter

import (
	"encoding/json"
	"testing"

	"github.com/animus-labs/runlog/internal/domain"
)

func mustValue(t *testing.T, raw string) domain.Value {
	t.Helper()
	var v domain.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}

func TestFilterWithoutAllowListCopies(t *testing.T) {
	data := mustValue(t, `{"train":{"aa":[1,2,3],"bb":{"mean":6.5}},"lr":0.1,"note":null}`)
	for _, allow := range []Set{nil, {}, NewSet(), NewSet(" ", "")} {
		got := Filter(data, allow)
		if !got.Equal(data) {
			t.Fatalf("Filter(data, %v) changed data", allow)
		}
		got.Fields()["train"].Fields()["cc"] = domain.StringValue("x")
		if _, ok := data.Fields()["train"].Fields()["cc"]; ok {
			t.Fatalf("Filter result shares state with input")
		}
	}
}

func TestFilterVariableAcrossBranches(t *testing.T) {
	data := mustValue(t, `{"train":{"aa":{"mean":2.5},"bb":{"mean":6.5}},"test":{"aa":{"mean":2.8}}}`)
	want := mustValue(t, `{"train":{"aa":{"mean":2.5}},"test":{"aa":{"mean":2.8}}}`)
	got := Filter(data, NewSet("aa"))
	if !got.Equal(want) {
		raw, _ := json.Marshal(got)
		t.Fatalf("Filter()=%s", raw)
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		allow []string
		want  string
	}{
		{
			name:  "top level leaves",
			data:  `{"aa":[1,2,3,4],"bb":[5,6,7,8]}`,
			allow: []string{"aa"},
			want:  `{"aa":[1,2,3,4]}`,
		},
		{
			name:  "branch without match dropped",
			data:  `{"train":{"bb":1},"valid":{"cc":{"dd":2}}}`,
			allow: []string{"aa"},
			want:  `{}`,
		},
		{
			name:  "deep nesting",
			data:  `{"a":{"b":{"c":{"aa":1,"zz":2}},"y":3}}`,
			allow: []string{"aa"},
			want:  `{"a":{"b":{"c":{"aa":1}}}}`,
		},
		{
			name:  "matched empty container kept",
			data:  `{"train":{"aa":{}},"test":{"bb":{}}}`,
			allow: []string{"aa"},
			want:  `{"train":{"aa":{}}}`,
		},
		{
			name:  "matched container keeps whole subtree",
			data:  `{"train":{"aa":{"bb":1,"cc":[1]}}}`,
			allow: []string{"aa"},
			want:  `{"train":{"aa":{"bb":1,"cc":[1]}}}`,
		},
		{
			name:  "sequence under unmatched key dropped",
			data:  `{"train":[{"aa":1}]}`,
			allow: []string{"aa"},
			want:  `{}`,
		},
		{
			name:  "several names",
			data:  `{"train":{"loss":0.3,"acc":0.9,"f1":0.5},"lr":0.01}`,
			allow: []string{"loss", "lr"},
			want:  `{"train":{"loss":0.3},"lr":0.01}`,
		},
		{
			name:  "intermediate name also allowed",
			data:  `{"train":{"aa":1,"bb":2},"test":{"bb":3}}`,
			allow: []string{"train"},
			want:  `{"train":{"aa":1,"bb":2}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(mustValue(t, tc.data), NewSet(tc.allow...))
			if !got.Equal(mustValue(t, tc.want)) {
				raw, _ := json.Marshal(got)
				t.Fatalf("Filter()=%s, want %s", raw, tc.want)
			}
		})
	}
}

func TestFilterOnlyNamedLeavesSurvive(t *testing.T) {
	data := mustValue(t, `{"aa":1,"x":{"aa":2,"bb":3,"y":{"aa":[4],"cc":5}},"z":{"dd":6}}`)
	got := Filter(data, NewSet("aa"))

	var walk func(v domain.Value, matched bool)
	walk = func(v domain.Value, matched bool) {
		for key, child := range v.Fields() {
			here := matched || key == "aa"
			if !here && child.Kind() != domain.KindMapping {
				t.Fatalf("unexpected leaf %q survived", key)
			}
			walk(child, here)
		}
	}
	walk(got, false)

	if !got.Fields()["x"].Fields()["y"].Fields()["aa"].Equal(mustValue(t, `[4]`)) {
		t.Fatalf("allowed leaf lost its value")
	}
}

func TestFilterDeterministic(t *testing.T) {
	data := mustValue(t, `{"train":{"aa":1,"bb":2},"test":{"aa":3}}`)
	allow := NewSet("aa")
	first, _ := json.Marshal(Filter(data, allow))
	for i := 0; i < 10; i++ {
		next, _ := json.Marshal(Filter(data, allow))
		if string(next) != string(first) {
			t.Fatalf("non-deterministic filter: %s vs %s", first, next)
		}
	}
}

func TestSetNames(t *testing.T) {
	s := NewSet("bb", " aa ", "")
	names := s.Names()
	if len(names) != 2 || names[0] != "aa" || names[1] != "bb" {
		t.Fatalf("Names()=%v", names)
	}
}
