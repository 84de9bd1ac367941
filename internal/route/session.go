// Package route binds the compiled rule program, the match engine, and the
// operation queue into a routing session, and interprets the program
// against each routable.
//
// The interpreter is a three-mode machine: NEXT_COMMAND executes commands
// in order, NEXT_RULE skips forward until a rule boundary resets the mode,
// STOP abandons the rest of the program for this routable. A runtime error
// aborts only the routable it occurred in; the session continues.
package route

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/plumbkit/plumb/internal/lang"
	"github.com/plumbkit/plumb/internal/match"
	"github.com/plumbkit/plumb/internal/routable"
	"github.com/plumbkit/plumb/internal/sched"
)

type stepMode uint8

const (
	modeNextCommand stepMode = iota
	modeNextRule
	modeStop
)

// Session is the per-run routing state: the variable environment, the
// active routable, and the shared match engine and operation queue.
type Session struct {
	prog  *lang.Program
	vars  map[string]routable.Value
	obj   *routable.Routable
	mode  stepMode
	Match *match.Engine
	Queue *sched.Queue
	// Diag receives inspect output. Defaults to stdout.
	Diag io.Writer
}

// NewSession compiles the program's grep sites into a match engine and
// prepares an empty environment.
func NewSession(prog *lang.Program, queue *sched.Queue) (*Session, error) {
	eng, err := match.NewEngine(prog.Greps)
	if err != nil {
		return nil, fmt.Errorf("compiling grep patterns: %w", err)
	}
	return &Session{
		prog:  prog,
		vars:  map[string]routable.Value{},
		Match: eng,
		Queue: queue,
		Diag:  os.Stdout,
	}, nil
}

// Route runs the rule program over one routable. The returned error is a
// runtime error scoped to this routable; the session remains usable.
func (s *Session) Route(r *routable.Routable) error {
	s.obj = r
	s.deriveFileVars()
	s.mode = modeNextCommand

	for _, cmd := range s.prog.Commands {
		switch s.mode {
		case modeNextCommand:
			m, err := s.runCommand(cmd)
			if err != nil {
				return fmt.Errorf("line %d (%s): %w", cmd.Line, cmd, err)
			}
			s.mode = m
		case modeNextRule:
			// Skip to the next rule boundary; the boundary itself
			// runs and resets the mode.
			if cmd.Kind == lang.CmdRule {
				s.mode = modeNextCommand
			}
		case modeStop:
			return nil
		}
	}
	return nil
}

func (s *Session) runCommand(cmd *lang.Command) (stepMode, error) {
	switch cmd.Kind {
	case lang.CmdRule:
		return modeNextCommand, nil

	case lang.CmdCondition:
		ok, err := s.checkCond(cmd.Cond)
		if err != nil {
			return modeNextCommand, err
		}
		if ok {
			return modeNextCommand, nil
		}
		return modeNextRule, nil

	case lang.CmdSetVar:
		v, err := s.evalExpr(cmd.RHS)
		if err != nil {
			return modeNextCommand, err
		}
		// Assignment stores the string rendering, nil stays nil.
		if str, ok := v.Str(); ok {
			v = routable.String(str)
		}
		s.Set(cmd.Var, v)
		return modeNextCommand, nil

	case lang.CmdCopyTo:
		dst, src, ok, err := s.transferArgs(cmd.Dest)
		if err != nil {
			return modeNextCommand, err
		}
		if ok {
			s.Queue.AddCopy(dst, src)
		}
		return modeNextCommand, nil

	case lang.CmdMoveTo:
		dst, src, ok, err := s.transferArgs(cmd.Dest)
		if err != nil {
			return modeNextCommand, err
		}
		if ok {
			s.Queue.AddMove(dst, src)
		}
		return modeNextCommand, nil

	case lang.CmdStop:
		return modeStop, nil

	case lang.CmdInspect:
		return modeNextCommand, s.inspect(cmd)
	}
	return modeNextCommand, fmt.Errorf("bad command kind %d", cmd.Kind)
}

// transferArgs resolves the source (the routable's data) and destination
// for a copy or move. Either being nil skips the operation silently.
func (s *Session) transferArgs(dest *lang.Expr) (dst, src string, ok bool, err error) {
	d, err := s.evalExpr(dest)
	if err != nil {
		return "", "", false, err
	}
	src, sok := s.obj.Data.Str()
	dst, dok := d.Str()
	return dst, src, sok && dok, nil
}

// inspect writes diagnostics to the session sink: the whole environment
// for "inspect all", otherwise the argument expression and its value.
func (s *Session) inspect(cmd *lang.Command) error {
	if cmd.All {
		names := make([]string, 0, len(s.vars))
		for n := range s.vars {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, reserved := range []string{"src", "dst", "data", "type", "wdir", "attr"} {
			fmt.Fprintf(s.Diag, "%s = %s\n", reserved, valueRepr(s.Get(reserved, routable.Nil)))
		}
		for _, n := range names {
			fmt.Fprintf(s.Diag, "%s = %s\n", n, valueRepr(s.vars[n]))
		}
		return nil
	}
	if cmd.Arg == nil {
		return nil
	}
	v, err := s.evalExpr(cmd.Arg)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Diag, "%s\n==>\n%s\n", cmd.Arg, valueRepr(v))
	return nil
}

func valueRepr(v routable.Value) string {
	if s, ok := v.Str(); ok {
		return fmt.Sprintf("%q", s)
	}
	return "<nil>"
}

// Finalize tears the session down: parked readers are closed and the
// operation queue is flushed in dependency order. The returned error is a
// scheduler error and fatal to the run.
func (s *Session) Finalize() error {
	s.Match.Close()
	return s.Queue.Flush()
}
