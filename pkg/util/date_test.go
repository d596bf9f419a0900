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

func TestBucketFloor(t *testing.T) {
	in := time.Date(2024, 10, 10, 10, 13, 42, 0, time.UTC)
	want := time.Date(2024, 10, 10, 10, 10, 0, 0, time.UTC)
	if got := BucketFloor(in, 5*time.Minute); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBucketFloorOnBoundary(t *testing.T) {
	in := time.Date(2024, 10, 10, 10, 15, 0, 0, time.UTC)
	if got := BucketFloor(in, 5*time.Minute); !got.Equal(in) {
		t.Fatalf("boundary time should map to itself, got %v", got)
	}
}
