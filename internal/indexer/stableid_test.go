package indexer

import (
	"testing"

	"github.com/google/uuid"
)

func TestStableSegmentIDDeterministic(t *testing.T) {
	a := StableSegmentID("u1", "notes.txt", 0)
	b := StableSegmentID("u1", "notes.txt", 0)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("id is not a valid UUID: %v", err)
	}
}

func TestStableSegmentIDDistinct(t *testing.T) {
	base := StableSegmentID("u1", "notes.txt", 0)
	variants := []string{
		StableSegmentID("u2", "notes.txt", 0),
		StableSegmentID("u1", "other.txt", 0),
		StableSegmentID("u1", "notes.txt", 1),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base id", i)
		}
	}
}
