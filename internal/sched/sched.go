// Package sched accumulates the file operations a routing session requests
// and flushes them as shell commands in dependency order.
//
// Ops are linked by name overlap at enqueue time: an op that requires a
// path some earlier op produces runs after it, and vice versa when the
// producer arrives later. Copy ops sharing a destination are fused into one
// rsync invocation when they become ready together; moves likewise into one
// mv. Dry-run (the default) prints POSIX-quoted commands to the sink; live
// mode hands each argv to the injected runner.
package sched

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrCycle is returned by Flush when pending ops can never become ready.
var ErrCycle = errors.New("dependency cycle in scheduled operations")

// Kind tags an operation.
type Kind uint8

const (
	KindCopy Kind = iota
	KindMove
)

// Op is one scheduled side effect. Readiness means every op in requiresOp
// has executed; executed moves false→true exactly once.
type Op struct {
	Kind     Kind
	Args     []string // source paths
	Dst      string   // destination
	Requires []string // input path names that must be ready
	Provides []string // path names produced on completion

	requiresOp map[*Op]struct{}
	executed   bool
}

// CommandRunner executes one shell command in live mode.
type CommandRunner func(argv []string) error

// Queue is the per-session operation queue.
type Queue struct {
	ops []*Op

	// Name indexes so enqueue is O(names) instead of a scan of every
	// earlier op.
	byProvides map[string][]*Op
	byRequires map[string][]*Op

	// Sink receives one POSIX-quoted command per line in dry-run mode.
	Sink io.Writer
	// Runner, when set, switches the queue to live execution.
	Runner CommandRunner

	// Emitted records every command flushed, for the journal and tests.
	Emitted [][]string
}

func NewQueue(sink io.Writer) *Queue {
	return &Queue{
		byProvides: map[string][]*Op{},
		byRequires: map[string][]*Op{},
		Sink:       sink,
	}
}

// provided computes what a copy or move of src to dst produces: the
// destination itself, or dst/basename(src) when dst names a directory (ends
// in the path separator).
func provided(dst, src string) string {
	if strings.HasSuffix(dst, string(filepath.Separator)) || strings.HasSuffix(dst, "/") {
		return dst + filepath.Base(src)
	}
	return dst
}

// AddCopy schedules src to be rsynced to dst.
func (q *Queue) AddCopy(dst, src string) {
	q.add(&Op{
		Kind:     KindCopy,
		Args:     []string{src},
		Dst:      dst,
		Requires: []string{src},
		Provides: []string{provided(dst, src)},
	})
}

// AddMove schedules src to be moved to dst.
func (q *Queue) AddMove(dst, src string) {
	q.add(&Op{
		Kind:     KindMove,
		Args:     []string{src},
		Dst:      dst,
		Requires: []string{src},
		Provides: []string{provided(dst, src)},
	})
}

// add links the new op against everything already enqueued: producers of
// its inputs come before it, consumers of its outputs after it.
func (q *Queue) add(op *Op) {
	op.requiresOp = map[*Op]struct{}{}
	for _, name := range op.Requires {
		for _, producer := range q.byProvides[name] {
			op.requiresOp[producer] = struct{}{}
		}
	}
	for _, name := range op.Provides {
		for _, consumer := range q.byRequires[name] {
			consumer.requiresOp[op] = struct{}{}
		}
	}

	q.ops = append(q.ops, op)
	for _, name := range op.Provides {
		q.byProvides[name] = append(q.byProvides[name], op)
	}
	for _, name := range op.Requires {
		q.byRequires[name] = append(q.byRequires[name], op)
	}
}

func (op *Op) ready() bool {
	for dep := range op.requiresOp {
		if !dep.executed {
			return false
		}
	}
	return true
}

// Flush repeatedly emits every ready op until none are pending. Ready
// copies with a common destination fuse into one rsync command per round,
// moves into one mv. Pending ops with no ready candidates mean the
// dependency graph has a cycle.
func (q *Queue) Flush() error {
	for {
		var ready []*Op
		pending := 0
		for _, op := range q.ops {
			if op.executed {
				continue
			}
			pending++
			if op.ready() {
				ready = append(ready, op)
			}
		}
		if len(ready) == 0 {
			if pending > 0 {
				return ErrCycle
			}
			return nil
		}

		// Fuse ready ops by (kind, destination), keeping first-seen
		// order so ties break by insertion.
		type groupKey struct {
			kind Kind
			dst  string
		}
		var order []groupKey
		groups := map[groupKey][]*Op{}
		for _, op := range ready {
			k := groupKey{op.Kind, op.Dst}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], op)
		}

		for _, k := range order {
			member := groups[k]
			var srcs []string
			seen := map[string]bool{}
			for _, op := range member {
				for _, a := range op.Args {
					if !seen[a] {
						seen[a] = true
						srcs = append(srcs, a)
					}
				}
			}

			var argv []string
			switch k.kind {
			case KindCopy:
				argv = append([]string{"rsync", "-vaP"}, srcs...)
			case KindMove:
				argv = append([]string{"mv"}, srcs...)
			}
			argv = append(argv, k.dst)

			if err := q.emit(argv); err != nil {
				return err
			}
			for _, op := range member {
				op.executed = true
			}
		}
	}
}

// emit runs or prints one command and records it.
func (q *Queue) emit(argv []string) error {
	q.Emitted = append(q.Emitted, argv)
	if q.Runner != nil {
		if err := q.Runner(argv); err != nil {
			return fmt.Errorf("running %s: %w", argv[0], err)
		}
		return nil
	}
	if q.Sink != nil {
		fmt.Fprintln(q.Sink, QuoteCommand(argv))
	}
	return nil
}

// QuoteCommand renders an argv as a single POSIX-shell line.
func QuoteCommand(argv []string) string {
	words := make([]string, len(argv))
	for i, a := range argv {
		w, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			// Unquotable bytes (NUL); fall back to a Go quote so the
			// dry-run line stays printable.
			w = fmt.Sprintf("%q", a)
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}
