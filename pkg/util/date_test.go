package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestInferLayout(t *testing.T) {
	cases := map[string]string{
		"2023-01-01 05:00:00": "2006-01-02 15:04:05",
		"2023-01-01":          "2006-01-02",
		"2023-01-01T05:00:00Z": time.RFC3339,
	}
	for input, want := range cases {
		got, ok := InferLayout(input)
		if !ok {
			t.Fatalf("InferLayout(%q): no layout found", input)
		}
		if got != want {
			t.Fatalf("InferLayout(%q) = %q, want %q", input, got, want)
		}
	}

	if _, ok := InferLayout("not a date"); ok {
		t.Fatal("expected failure for garbage input")
	}
}
