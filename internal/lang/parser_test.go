package lang

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return prog
}

func onlyCond(t *testing.T, src string) *Cond {
	t.Helper()
	prog := mustParse(t, src)
	if len(prog.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(prog.Commands))
	}
	cmd := prog.Commands[0]
	if cmd.Kind != CmdCondition {
		t.Fatalf("expected condition command, got %v", cmd)
	}
	return cmd.Cond
}

func TestParse_SimplestRule(t *testing.T) {
	prog := mustParse(t, "\nrule test\nstop\n")
	if len(prog.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(prog.Commands))
	}
	if prog.Commands[0].Kind != CmdRule || prog.Commands[0].Label != "test" {
		t.Errorf("command 0: expected rule test, got %v", prog.Commands[0])
	}
	if prog.Commands[1].Kind != CmdStop {
		t.Errorf("command 1: expected stop, got %v", prog.Commands[1])
	}
}

func TestParse_SetVar(t *testing.T) {
	tests := []struct {
		src      string
		wantVar  string
		wantKind ExprKind
		wantText string
	}{
		{"a=b", "a", ExprLiteral, "b"},
		{`a="str"`, "a", ExprLiteral, "str"},
		{"a=$b", "a", ExprVarRef, "b"},
	}
	for _, tt := range tests {
		prog := mustParse(t, tt.src)
		cmd := prog.Commands[0]
		if cmd.Kind != CmdSetVar || cmd.Var != tt.wantVar {
			t.Errorf("%q: got %v", tt.src, cmd)
			continue
		}
		if cmd.RHS.Kind != tt.wantKind {
			t.Errorf("%q: rhs kind %d, want %d", tt.src, cmd.RHS.Kind, tt.wantKind)
		}
		got := cmd.RHS.Lit
		if tt.wantKind == ExprVarRef {
			got = cmd.RHS.Var
		}
		if got != tt.wantText {
			t.Errorf("%q: rhs text %q, want %q", tt.src, got, tt.wantText)
		}
	}
}

func TestParse_GlobForms(t *testing.T) {
	// Single pattern, quoted or bare, is one glob condition.
	for _, src := range []string{`glob "*.py"`, "glob *.py"} {
		c := onlyCond(t, src)
		if c.Kind != CondGlob {
			t.Errorf("%q: expected glob, got %v", src, c)
			continue
		}
		if lit, _ := c.Pattern.Constant(); lit != "*.py" {
			t.Errorf("%q: pattern %q", src, lit)
		}
	}

	// Multiple patterns become an or of globs.
	c := onlyCond(t, "glob *.py *.pyc")
	if c.Kind != CondOr || len(c.Children) != 2 {
		t.Fatalf("multi glob: got %v", c)
	}
	for i, want := range []string{"*.py", "*.pyc"} {
		if lit, _ := c.Children[i].Pattern.Constant(); lit != want {
			t.Errorf("child %d: pattern %q, want %q", i, lit, want)
		}
	}
}

func TestParse_IsFiletype(t *testing.T) {
	c := onlyCond(t, "is dir")
	if c.Kind != CondStat || c.FileType != "dir" {
		t.Fatalf("got %v", c)
	}
	// pipe is an alias for fifo.
	c = onlyCond(t, "is pipe")
	if c.FileType != "fifo" {
		t.Errorf("pipe: got filetype %q", c.FileType)
	}

	_, err := Parse("is elfshoe")
	var semErr *SemanticError
	if !errors.As(err, &semErr) {
		t.Fatalf("expected semantic error, got %v", err)
	}
}

func TestParse_Junctions(t *testing.T) {
	c := onlyCond(t, "is file and is dir")
	if c.Kind != CondAnd || len(c.Children) != 2 {
		t.Fatalf("and: got %v", c)
	}
	c = onlyCond(t, "is file or is dir")
	if c.Kind != CondOr || len(c.Children) != 2 {
		t.Fatalf("or: got %v", c)
	}
}

func TestParse_Parens(t *testing.T) {
	c := onlyCond(t, "(is file)")
	if c.Kind != CondStat {
		t.Fatalf("got %v", c)
	}

	// Newlines inside parens are ignored.
	c = onlyCond(t, "(is file\nor is dir)")
	if c.Kind != CondOr || len(c.Children) != 2 {
		t.Fatalf("got %v", c)
	}

	c = onlyCond(t, "(\n glob x\n and glob y\n)")
	if c.Kind != CondAnd || len(c.Children) != 2 {
		t.Fatalf("got %v", c)
	}
}

// And/Or chains collapse to one node regardless of grouping: no direct
// child of an and is an and, and likewise for or.
func TestParse_JunctionFlattening(t *testing.T) {
	c := onlyCond(t, "glob x and glob y and glob z")
	if c.Kind != CondAnd || len(c.Children) != 3 {
		t.Fatalf("chain: got %v", c)
	}
	for _, ch := range c.Children {
		if ch.Kind == CondAnd {
			t.Errorf("nested and survived flattening: %v", c)
		}
	}

	c = onlyCond(t, "(glob a and glob b) and (glob c and glob d)")
	if c.Kind != CondAnd || len(c.Children) != 4 {
		t.Fatalf("paren chain: got %v", c)
	}
}

// Multi-pattern globs or-join, and the or chain flattens through the outer
// junction: glob x z or glob y q is a single or with four glob children in
// order.
func TestParse_MultiGlobOrFlattens(t *testing.T) {
	c := onlyCond(t, "glob x z or glob y q")
	if c.Kind != CondOr || len(c.Children) != 4 {
		t.Fatalf("got %v", c)
	}
	for i, want := range []string{"x", "z", "y", "q"} {
		if lit, _ := c.Children[i].Pattern.Constant(); lit != want {
			t.Errorf("child %d: %q, want %q", i, lit, want)
		}
	}

	// With and, the multi-glob ors stay intact as the two children.
	c = onlyCond(t, "glob x z and glob y q")
	if c.Kind != CondAnd || len(c.Children) != 2 {
		t.Fatalf("and of ors: got %v", c)
	}
	for _, ch := range c.Children {
		if ch.Kind != CondOr || len(ch.Children) != 2 {
			t.Errorf("child: got %v", ch)
		}
	}
}

func TestParse_NotNeverFlattens(t *testing.T) {
	c := onlyCond(t, "not glob x and not glob y")
	if c.Kind != CondAnd || len(c.Children) != 2 {
		t.Fatalf("got %v", c)
	}
	for _, ch := range c.Children {
		if ch.Kind != CondNot {
			t.Errorf("expected not child, got %v", ch)
		}
	}
}

func TestParse_Datasource(t *testing.T) {
	c := onlyCond(t, `$x match "y"`)
	if c.Kind != CondRegex {
		t.Fatalf("got %v", c)
	}
	if c.Datasource == nil || c.Datasource.Kind != ExprVarRef || c.Datasource.Var != "x" {
		t.Errorf("datasource: got %v", c.Datasource)
	}

	// A datasource on a multi-pattern glob applies to every leaf.
	c = onlyCond(t, "$x glob a b")
	if c.Kind != CondOr {
		t.Fatalf("got %v", c)
	}
	for _, ch := range c.Children {
		if ch.Datasource == nil || ch.Datasource.Var != "x" {
			t.Errorf("child missing datasource: %v", ch)
		}
	}
}

func TestParse_FStringLowering(t *testing.T) {
	tests := []struct {
		src  string
		want string // expected literal value after lowering
	}{
		{`a=""`, ""},
		{`a="foo"`, "foo"},
		{`a="{"foo"}"`, "foo"},
		{`a="a{"b"}c"`, "abc"},
		{`a="q\"w"`, `q"w`},
		{`a="\{x\}"`, "{x}"},
	}
	for _, tt := range tests {
		prog := mustParse(t, tt.src)
		rhs := prog.Commands[0].RHS
		lit, ok := rhs.Constant()
		if !ok {
			t.Errorf("%q: lowered to %v, want literal", tt.src, rhs)
			continue
		}
		if lit != tt.want {
			t.Errorf("%q: literal %q, want %q", tt.src, lit, tt.want)
		}
	}
}

func TestParse_FStringInterpolation(t *testing.T) {
	prog := mustParse(t, `x = "b{$foo}a"`)
	rhs := prog.Commands[0].RHS
	if rhs.Kind != ExprConcat || len(rhs.Parts) != 3 {
		t.Fatalf("got %v", rhs)
	}
	if rhs.Parts[0].Lit != "b" || rhs.Parts[1].Var != "foo" || rhs.Parts[2].Lit != "a" {
		t.Errorf("parts: %v", rhs)
	}
}

func TestParse_EnvLookup(t *testing.T) {
	prog := mustParse(t, `home = env HOME`)
	rhs := prog.Commands[0].RHS
	if rhs.Kind != ExprEnvLookup {
		t.Fatalf("got %v", rhs)
	}
	if lit, _ := rhs.Name.Constant(); lit != "HOME" {
		t.Errorf("name: %v", rhs.Name)
	}
}

func TestParse_Actions(t *testing.T) {
	prog := mustParse(t, "copyto \"/tmp/\"\nmoveto $dest\ninspect all\ninspect\nstop")
	wantKinds := []CmdKind{CmdCopyTo, CmdMoveTo, CmdInspect, CmdInspect, CmdStop}
	if len(prog.Commands) != len(wantKinds) {
		t.Fatalf("got %d commands", len(prog.Commands))
	}
	for i, k := range wantKinds {
		if prog.Commands[i].Kind != k {
			t.Errorf("command %d: kind %d, want %d", i, prog.Commands[i].Kind, k)
		}
	}
	if !prog.Commands[2].All {
		t.Errorf("inspect all: All not set")
	}
	if prog.Commands[3].All || prog.Commands[3].Arg != nil {
		t.Errorf("bare inspect: got %v", prog.Commands[3])
	}
}

func TestParse_CommentsAndBlanks(t *testing.T) {
	prog := mustParse(t, "# header\n\nrule a # trailing\n\n# another\nstop\n")
	if len(prog.Commands) != 2 {
		t.Fatalf("got %d commands", len(prog.Commands))
	}
}

func TestParse_GrepSites(t *testing.T) {
	prog := mustParse(t, "grep \"alpha\"\ngrep \"b{$x}\"\ngrep \"beta\" <100 >10")
	if len(prog.Greps) != 3 {
		t.Fatalf("got %d grep sites", len(prog.Greps))
	}
	if !prog.Greps[0].IsConst || prog.Greps[0].Const != "alpha" {
		t.Errorf("site 0: %+v", prog.Greps[0])
	}
	if prog.Greps[1].IsConst {
		t.Errorf("site 1 should be dynamic: %+v", prog.Greps[1])
	}
	s := prog.Greps[2]
	if s.Max != 100 || s.Min != 10 {
		t.Errorf("site 2 range: min=%d max=%d", s.Min, s.Max)
	}
	// Repeated bounds keep the largest < and the smallest >.
	prog = mustParse(t, "grep \"x\" <5 <9 >4 >2")
	s = prog.Greps[0]
	if s.Max != 9 || s.Min != 2 {
		t.Errorf("range merge: min=%d max=%d", s.Min, s.Max)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		src      string
		wantLine int
	}{
		{"(is file", 1},
		{`a = "unterminated`, 1},
		{"rule", 1},
		{"glob\n", 1},
		{"rule a\nis file and\n", 2},
		{`a = "x{y`, 1},
	}
	for _, tt := range tests {
		_, err := Parse(tt.src)
		if err == nil {
			t.Errorf("%q: expected error", tt.src)
			continue
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("%q: expected *ParseError, got %T %v", tt.src, err, err)
			continue
		}
		if perr.Line != tt.wantLine {
			t.Errorf("%q: error at line %d, want %d (%v)", tt.src, perr.Line, tt.wantLine, err)
		}
	}
}

func TestProgram_Dump(t *testing.T) {
	prog := mustParse(t, "rule py\nglob *.py\ncopyto \"/tmp/\"\nstop")
	dump := prog.Dump()
	for _, want := range []string{"rule py", "glob", "copyto", "stop"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
}
