package session

import "testing"

func TestReconstructTextOrdersBySequence(t *testing.T) {
	results := map[int]string{
		2: "third",
		0: "first",
		1: "second",
	}
	if got := ReconstructText(results); got != "first second third" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestReconstructTextSkipsGaps(t *testing.T) {
	results := map[int]string{
		0: "hello",
		3: "world",
	}
	if got := ReconstructText(results); got != "hello world" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestReconstructTextSkipsBlankEntries(t *testing.T) {
	results := map[int]string{
		0: "start",
		1: "   ",
		2: "end",
	}
	if got := ReconstructText(results); got != "start end" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestReconstructTextEmpty(t *testing.T) {
	if got := ReconstructText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
