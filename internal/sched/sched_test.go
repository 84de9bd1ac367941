package sched

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func lines(buf *bytes.Buffer) []string {
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestFlush_Empty(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	if err := q.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("output %q", buf.String())
	}
}

func TestFlush_SingleCopy(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	q.AddCopy("/tmp/", "a.py")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "rsync -vaP a.py /tmp/\n" {
		t.Errorf("got %q", got)
	}
}

// Copies to the same destination that are ready together fuse into one
// rsync; moves fuse into one mv.
func TestFlush_CoalescesByDestination(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	q.AddCopy("/tmp/", "a")
	q.AddCopy("/tmp/", "b")
	q.AddCopy("/other/", "c")
	q.AddMove("/gone/", "d")
	q.AddMove("/gone/", "e")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"rsync -vaP a b /tmp/",
		"rsync -vaP c /other/",
		"mv d e /gone/",
	}
	got := lines(&buf)
	if len(got) != len(want) {
		t.Fatalf("got %d lines: %v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: %q, want %q", i, got[i], want[i])
		}
	}
}

// A consumer of a produced name runs strictly after its producer, even
// though both target different destinations.
func TestFlush_DependencyOrder(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	q.AddCopy("/stage/", "A")
	q.AddCopy("/final/", "/stage/A")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	got := lines(&buf)
	want := []string{
		"rsync -vaP A /stage/",
		"rsync -vaP /stage/A /final/",
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

// The link is made in both enqueue orders: a producer enqueued after its
// consumer still runs first.
func TestFlush_ProducerEnqueuedSecond(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	q.AddCopy("/final/", "/stage/A")
	q.AddCopy("/stage/", "A")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	got := lines(&buf)
	if len(got) != 2 || !strings.Contains(got[0], "A /stage/") {
		t.Errorf("producer did not run first: %v", got)
	}
}

// A destination not ending in the separator provides the destination name
// itself, not dst/basename.
func TestProvides_ExplicitName(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	q.AddCopy("/out/renamed", "orig")
	q.AddCopy("/final/", "/out/renamed")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	got := lines(&buf)
	if len(got) != 2 || !strings.Contains(got[0], "orig /out/renamed") {
		t.Errorf("got %v", got)
	}
}

func TestFlush_CycleIsError(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	// Each op consumes the other's product.
	q.AddCopy("/b/", "/a/x") // requires /a/x, provides /b/x
	q.AddCopy("/a/", "/b/x") // requires /b/x, provides /a/x
	err := q.Flush()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestFlush_LiveRunner(t *testing.T) {
	var buf bytes.Buffer
	q := NewQueue(&buf)
	var ran [][]string
	q.Runner = func(argv []string) error {
		ran = append(ran, argv)
		return nil
	}
	q.AddCopy("/tmp/", "a")
	if err := q.Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("live mode printed dry-run output: %q", buf.String())
	}
	if len(ran) != 1 || ran[0][0] != "rsync" {
		t.Errorf("runner calls: %v", ran)
	}
	if len(q.Emitted) != 1 {
		t.Errorf("Emitted = %v", q.Emitted)
	}
}

func TestQuoteCommand(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"mv", "a", "/b/"}, "mv a /b/"},
		{[]string{"mv", "has space", "/b/"}, "mv 'has space' /b/"},
		{[]string{"mv", "it's", "/b/"}, `mv "it's" /b/`},
	}
	for _, tt := range tests {
		if got := QuoteCommand(tt.argv); got != tt.want {
			t.Errorf("QuoteCommand(%v) = %q, want %q", tt.argv, got, tt.want)
		}
	}
}
