// Package lang implements the rule language: a mode-tracking lexer, a
// recursive-descent parser, and the tagged-variant AST the router
// interprets.
//
// A rule program is a flat, ordered sequence of commands. "rule NAME" is a
// boundary marker, not a block opener: control flow skips forward to the
// next boundary when a condition fails. The parser also registers every
// grep condition into the program's grep-site table so the match engine can
// coalesce file scans across sites.
package lang

import (
	"fmt"
	"strings"
)

// ExprKind tags an expression variant.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota
	ExprVarRef
	ExprConcat
	ExprEnvLookup
)

// Expr is an expression node. Exactly the fields for its Kind are set:
// Lit for literals, Var for variable references, Parts for concatenations,
// Name for environment lookups.
type Expr struct {
	Kind  ExprKind
	Lit   string
	Var   string
	Parts []*Expr
	Name  *Expr
}

// Constant returns the literal value when the expression is a plain
// literal. Grep sites with constant patterns join the coalesced file scan;
// dynamic ones run private matchers.
func (e *Expr) Constant() (string, bool) {
	if e != nil && e.Kind == ExprLiteral {
		return e.Lit, true
	}
	return "", false
}

func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ExprLiteral:
		return fmt.Sprintf("%q", e.Lit)
	case ExprVarRef:
		return "$" + e.Var
	case ExprConcat:
		parts := make([]string, len(e.Parts))
		for i, p := range e.Parts {
			parts[i] = p.String()
		}
		return "concat(" + strings.Join(parts, ", ") + ")"
	case ExprEnvLookup:
		return "env " + e.Name.String()
	}
	return "<bad expr>"
}

// CondKind tags a condition variant.
type CondKind uint8

const (
	CondGlob CondKind = iota
	CondRegex
	CondGrep
	CondStat
	CondAnd
	CondOr
	CondNot
)

// Cond is a condition node. Leaf conditions (glob/regex/grep/stat) may carry
// a Datasource expression whose value replaces the routable's data for that
// leaf only. Grep leaves carry the index of their site in Program.Greps.
type Cond struct {
	Kind       CondKind
	Datasource *Expr

	Pattern  *Expr  // glob, regex, grep
	Site     int    // grep: index into Program.Greps
	FileType string // stat

	Children []*Cond // and, or
	Child    *Cond   // not
}

func (c *Cond) String() string {
	if c == nil {
		return "<nil>"
	}
	var s string
	switch c.Kind {
	case CondGlob:
		s = "glob " + c.Pattern.String()
	case CondRegex:
		s = "match " + c.Pattern.String()
	case CondGrep:
		s = fmt.Sprintf("grep#%d %s", c.Site, c.Pattern)
	case CondStat:
		s = "is " + c.FileType
	case CondAnd, CondOr:
		op := " and "
		if c.Kind == CondOr {
			op = " or "
		}
		parts := make([]string, len(c.Children))
		for i, ch := range c.Children {
			parts[i] = ch.String()
		}
		return "(" + strings.Join(parts, op) + ")"
	case CondNot:
		return "not " + c.Child.String()
	default:
		return "<bad cond>"
	}
	if c.Datasource != nil {
		s = c.Datasource.String() + " " + s
	}
	return s
}

// CmdKind tags a command variant.
type CmdKind uint8

const (
	CmdRule CmdKind = iota
	CmdCondition
	CmdSetVar
	CmdCopyTo
	CmdMoveTo
	CmdStop
	CmdInspect
)

// Command is one top-level statement of a rule program.
type Command struct {
	Kind CmdKind
	Line int // source line, for runtime error reports

	Label string // rule
	Cond  *Cond  // condition
	Var   string // setvar
	RHS   *Expr  // setvar
	Dest  *Expr  // copyto, moveto

	// inspect: All dumps the whole variable environment; otherwise Arg
	// (possibly nil for a bare "inspect") is printed with its value.
	All bool
	Arg *Expr
}

func (c *Command) String() string {
	switch c.Kind {
	case CmdRule:
		return "rule " + c.Label
	case CmdCondition:
		return c.Cond.String()
	case CmdSetVar:
		return c.Var + " = " + c.RHS.String()
	case CmdCopyTo:
		return "copyto " + c.Dest.String()
	case CmdMoveTo:
		return "moveto " + c.Dest.String()
	case CmdStop:
		return "stop"
	case CmdInspect:
		if c.All {
			return "inspect all"
		}
		if c.Arg == nil {
			return "inspect"
		}
		return "inspect " + c.Arg.String()
	}
	return "<bad command>"
}

// GrepSite is the program-level identity of one grep condition. The match
// engine keys its result cache and coalesced-scan registry on sites; the
// registry lives and dies with the Program (replaced wholesale when the rule
// file is re-parsed).
type GrepSite struct {
	Pattern *Expr
	Const   string // pattern text when constant
	IsConst bool

	// Byte-offset range from <N / >M modifiers; -1 means unbounded.
	Min, Max int64
}

// Program is a compiled rule program: the command sequence plus the grep
// sites it owns.
type Program struct {
	Commands []*Command
	Greps    []*GrepSite
}

// Dump renders the program one command per line, for `plumb check --verbose`.
func (p *Program) Dump() string {
	var b strings.Builder
	for _, c := range p.Commands {
		fmt.Fprintf(&b, "%4d  %s\n", c.Line, c)
	}
	return b.String()
}
