package env

import (
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("RUNLOG_TEST_STRING", "sqlite")
	if got := String("RUNLOG_TEST_STRING", "postgres"); got != "sqlite" {
		t.Fatalf("String()=%q, want sqlite", got)
	}
	if got := String("RUNLOG_TEST_STRING_UNSET", "postgres"); got != "postgres" {
		t.Fatalf("String()=%q, want postgres", got)
	}
}

func TestStrings(t *testing.T) {
	cases := []struct {
		name  string
		value *string
		def   []string
		want  []string
	}{
		{name: "unset uses default", def: []string{"loss"}, want: []string{"loss"}},
		{name: "split and trim", value: ptr(" loss, accuracy ,,"), want: []string{"loss", "accuracy"}},
		{name: "blank clears default", value: ptr("  "), def: []string{"loss"}, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := "RUNLOG_TEST_STRINGS"
			if tc.value != nil {
				t.Setenv(key, *tc.value)
			} else {
				key = "RUNLOG_TEST_STRINGS_UNSET"
			}
			got := Strings(key, tc.def)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Strings()=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("RUNLOG_TEST_DURATION", "250ms")
	got, err := Duration("RUNLOG_TEST_DURATION", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}

	t.Setenv("RUNLOG_TEST_DURATION", "soon")
	if _, err := Duration("RUNLOG_TEST_DURATION", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	got, err := Bool("RUNLOG_TEST_BOOL_UNSET", true)
	if err != nil || !got {
		t.Fatalf("Bool()=%v err=%v, want true", got, err)
	}
	t.Setenv("RUNLOG_TEST_BOOL", "nope")
	if _, err := Bool("RUNLOG_TEST_BOOL", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("RUNLOG_TEST_INT", " 28015 ")
	got, err := Int("RUNLOG_TEST_INT", 5432)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 28015 {
		t.Fatalf("Int()=%d, want 28015", got)
	}
	t.Setenv("RUNLOG_TEST_INT", "many")
	if _, err := Int("RUNLOG_TEST_INT", 1); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func ptr(s string) *string { return &s }
