package lang

import (
	"strconv"
	"strings"
)

// fileTypes maps the "is FOO" filetype words to their canonical names.
// door/port/whiteout parse but never match: the stat check has no mode bits
// for them.
var fileTypes = map[string]string{
	"dir":      "dir",
	"file":     "file",
	"chardev":  "chardev",
	"blockdev": "blockdev",
	"fifo":     "fifo",
	"pipe":     "fifo",
	"sock":     "sock",
	"door":     "door",
	"port":     "port",
	"wht":      "whiteout",
	"whiteout": "whiteout",
}

// reservedWord reports whether w can never be a bareword. Other keywords
// (match, grep, stop, copyto, ...) are contextual and remain usable as
// literals and variable names.
func reservedWord(w string) bool {
	switch strings.ToLower(w) {
	case "and", "or", "not", "glob", "is", "rule":
		return true
	}
	return false
}

// Parse compiles rule text into a Program. Errors are *ParseError for
// ill-formed input and *SemanticError for invalid references (unknown
// filetype words).
func Parse(src string) (*Program, error) {
	p := &parser{lex: newLexer(src), prog: &Program{}}
	p.parseProgram()
	if p.err != nil {
		return nil, p.err
	}
	return p.prog, nil
}

type parser struct {
	lex   *lexer
	buf   []token
	depth int // paren nesting; newlines are ignored inside parens
	prog  *Program
	err   error
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *parser) failAt(t token, msg string) {
	p.fail(&ParseError{Line: t.line, Col: t.col, Msg: msg})
}

// fill buffers n raw tokens. On a lex error the stream ends early.
func (p *parser) fill(n int) {
	for len(p.buf) < n {
		t, err := p.lex.next()
		if err != nil {
			p.fail(err)
			t = token{kind: tokEOF, line: p.lex.line, col: p.lex.col}
		}
		p.buf = append(p.buf, t)
		if t.kind == tokEOF {
			break
		}
	}
}

// peek returns the next significant token without consuming it.
func (p *parser) peek() token {
	for {
		p.fill(1)
		if len(p.buf) == 0 {
			return token{kind: tokEOF}
		}
		if p.buf[0].kind == tokNewline && p.depth > 0 {
			p.buf = p.buf[1:]
			continue
		}
		return p.buf[0]
	}
}

// peek2 returns the second significant token. Only ever called at command
// start, so at most two command-mode tokens are buffered — the lexer never
// runs ahead into f-string bodies.
func (p *parser) peek2() token {
	p.peek()
	for {
		p.fill(2)
		if len(p.buf) < 2 {
			return token{kind: tokEOF}
		}
		if p.buf[1].kind == tokNewline && p.depth > 0 {
			p.buf = append(p.buf[:1], p.buf[2:]...)
			continue
		}
		return p.buf[1]
	}
}

func (p *parser) next() token {
	t := p.peek()
	if len(p.buf) > 0 {
		p.buf = p.buf[1:]
	}
	switch t.kind {
	case tokLParen:
		p.depth++
	case tokRParen:
		p.depth--
	}
	return t
}

func (p *parser) expectWord(what string) (token, bool) {
	t := p.next()
	if t.kind != tokWord {
		p.failAt(t, "expected "+what+", got "+t.kind.String())
		return t, false
	}
	return t, true
}

func (p *parser) parseProgram() {
	for p.err == nil {
		t := p.peek()
		switch t.kind {
		case tokEOF:
			return
		case tokNewline:
			p.next()
			continue
		}
		cmd := p.parseCommand()
		if p.err != nil {
			return
		}
		p.prog.Commands = append(p.prog.Commands, cmd)

		// Commands end at a newline or the end of input.
		end := p.peek()
		switch end.kind {
		case tokNewline, tokEOF:
		default:
			p.failAt(end, "unexpected "+end.kind.String()+" after command")
		}
	}
}

func (p *parser) parseCommand() *Command {
	t := p.peek()
	line := t.line

	if t.kind == tokWord && !reservedWord(t.text) {
		switch strings.ToLower(t.text) {
		case "stop":
			p.next()
			return &Command{Kind: CmdStop, Line: line}
		case "copyto":
			p.next()
			return &Command{Kind: CmdCopyTo, Line: line, Dest: p.parseExpr()}
		case "moveto":
			p.next()
			return &Command{Kind: CmdMoveTo, Line: line, Dest: p.parseExpr()}
		case "inspect":
			p.next()
			return p.parseInspect(line)
		}
		// Assignment needs two tokens of lookahead: NAME "=".
		if p.peek2().kind == tokEquals {
			name := p.next()
			p.next() // "="
			return &Command{Kind: CmdSetVar, Line: line, Var: name.text, RHS: p.parseExpr()}
		}
	}
	if t.kind == tokWord && strings.EqualFold(t.text, "rule") {
		p.next()
		label, ok := p.expectWord("rule label")
		if !ok {
			return nil
		}
		return &Command{Kind: CmdRule, Line: line, Label: label.text}
	}

	return &Command{Kind: CmdCondition, Line: line, Cond: p.parseCondExpr()}
}

func (p *parser) parseInspect(line int) *Command {
	switch t := p.peek(); {
	case t.kind == tokNewline || t.kind == tokEOF:
		return &Command{Kind: CmdInspect, Line: line}
	case t.kind == tokWord && strings.EqualFold(t.text, "all"):
		p.next()
		return &Command{Kind: CmdInspect, Line: line, All: true}
	default:
		return &Command{Kind: CmdInspect, Line: line, Arg: p.parseExpr()}
	}
}

// parseCondExpr parses a condition with and/or junctions. The grammar is
// right-recursive; junction() collapses same-operator chains so that
// "a and b and c" and "(a and b) and (c and d)" both come out flat.
func (p *parser) parseCondExpr() *Cond {
	lhs := p.parseCondUnit()
	t := p.peek()
	if t.kind == tokWord {
		var kind CondKind
		switch strings.ToLower(t.text) {
		case "and":
			kind = CondAnd
		case "or":
			kind = CondOr
		default:
			return lhs
		}
		p.next()
		rhs := p.parseCondExpr()
		return junction(kind, lhs, rhs)
	}
	return lhs
}

func junction(kind CondKind, lhs, rhs *Cond) *Cond {
	if lhs == nil || rhs == nil {
		return lhs
	}
	switch {
	case lhs.Kind == kind && rhs.Kind == kind:
		lhs.Children = append(lhs.Children, rhs.Children...)
		return lhs
	case lhs.Kind == kind:
		lhs.Children = append(lhs.Children, rhs)
		return lhs
	case rhs.Kind == kind:
		rhs.Children = append([]*Cond{lhs}, rhs.Children...)
		return rhs
	default:
		return &Cond{Kind: kind, Children: []*Cond{lhs, rhs}}
	}
}

func (p *parser) parseCondUnit() *Cond {
	t := p.peek()
	if t.kind == tokWord && strings.EqualFold(t.text, "not") {
		p.next()
		return &Cond{Kind: CondNot, Child: p.parseCondUnit()}
	}
	return p.parseCondAtom()
}

func (p *parser) parseCondAtom() *Cond {
	t := p.peek()
	if t.kind == tokLParen {
		p.next()
		c := p.parseCondExpr()
		if end := p.next(); end.kind != tokRParen {
			p.failAt(end, "expected ')', got "+end.kind.String())
			return nil
		}
		return c
	}
	return p.parseLeafCond()
}

// condKeyword reports the leaf-condition keyword at t, or "".
func condKeyword(t token) string {
	if t.kind != tokWord {
		return ""
	}
	switch w := strings.ToLower(t.text); w {
	case "glob", "match", "grep", "is":
		return w
	}
	return ""
}

func (p *parser) parseLeafCond() *Cond {
	var datasource *Expr
	t := p.peek()
	if condKeyword(t) == "" {
		// A leading expression overrides the routable's data for this
		// leaf only.
		datasource = p.parseExpr()
		if p.err != nil {
			return nil
		}
		t = p.peek()
	}

	switch condKeyword(t) {
	case "glob":
		p.next()
		return p.parseGlob(datasource)
	case "match":
		p.next()
		pat := p.parseFStringArg("match pattern")
		return &Cond{Kind: CondRegex, Pattern: pat, Datasource: datasource}
	case "grep":
		p.next()
		return p.parseGrep(datasource)
	case "is":
		p.next()
		word, ok := p.expectWord("filetype")
		if !ok {
			return nil
		}
		ft, known := fileTypes[strings.ToLower(word.text)]
		if !known {
			p.fail(&SemanticError{Line: word.line, Col: word.col,
				Msg: "unknown filetype " + strconv.Quote(word.text)})
			return nil
		}
		return &Cond{Kind: CondStat, FileType: ft, Datasource: datasource}
	default:
		p.failAt(t, "expected condition")
		return nil
	}
}

// parseGlob handles "glob PAT..." — one condition per pattern, multiple
// patterns joined with or. The datasource applies to every pattern.
func (p *parser) parseGlob(datasource *Expr) *Cond {
	var pats []*Expr
	for p.err == nil {
		t := p.peek()
		if t.kind == tokQuote || t.kind == tokDollar ||
			(t.kind == tokWord && !reservedWord(t.text)) {
			pats = append(pats, p.parseExpr())
			continue
		}
		break
	}
	if p.err != nil {
		return nil
	}
	if len(pats) == 0 {
		p.failAt(p.peek(), "glob needs at least one pattern")
		return nil
	}
	if len(pats) == 1 {
		return &Cond{Kind: CondGlob, Pattern: pats[0], Datasource: datasource}
	}
	children := make([]*Cond, len(pats))
	for i, pat := range pats {
		children[i] = &Cond{Kind: CondGlob, Pattern: pat, Datasource: datasource}
	}
	return &Cond{Kind: CondOr, Children: children}
}

// parseGrep handles `grep FSTR (<N | >M)*` and registers the grep site.
// Repeated bounds keep the largest < and the smallest >, i.e. the widest
// window.
func (p *parser) parseGrep(datasource *Expr) *Cond {
	pat := p.parseFStringArg("grep pattern")
	if p.err != nil {
		return nil
	}

	site := &GrepSite{Pattern: pat, Min: -1, Max: -1}
	site.Const, site.IsConst = pat.Constant()

	for p.err == nil {
		t := p.peek()
		if t.kind != tokWord || len(t.text) < 2 {
			break
		}
		op := t.text[0]
		if op != '<' && op != '>' {
			break
		}
		n, err := strconv.ParseInt(t.text[1:], 10, 64)
		if err != nil || n < 0 {
			p.failAt(t, "bad grep byte offset "+strconv.Quote(t.text))
			return nil
		}
		p.next()
		if op == '<' {
			if site.Max < 0 || site.Max < n {
				site.Max = n
			}
		} else {
			if site.Min < 0 || site.Min > n {
				site.Min = n
			}
		}
	}

	idx := len(p.prog.Greps)
	p.prog.Greps = append(p.prog.Greps, site)
	return &Cond{Kind: CondGrep, Pattern: pat, Site: idx, Datasource: datasource}
}

// parseFStringArg expects a quoted f-string in argument position.
func (p *parser) parseFStringArg(what string) *Expr {
	t := p.next()
	if t.kind != tokQuote {
		p.failAt(t, "expected quoted "+what+", got "+t.kind.String())
		return nil
	}
	return p.parseFString()
}

func (p *parser) parseExpr() *Expr {
	t := p.peek()
	switch t.kind {
	case tokQuote:
		p.next()
		return p.parseFString()
	case tokDollar:
		p.next()
		name, ok := p.expectWord("variable name")
		if !ok {
			return nil
		}
		return &Expr{Kind: ExprVarRef, Var: name.text}
	case tokWord:
		if strings.EqualFold(t.text, "env") {
			p.next()
			return &Expr{Kind: ExprEnvLookup, Name: p.parseExpr()}
		}
		if reservedWord(t.text) {
			p.failAt(t, "unexpected keyword "+strconv.Quote(t.text))
			return nil
		}
		p.next()
		return &Expr{Kind: ExprLiteral, Lit: t.text}
	default:
		p.failAt(t, "expected expression, got "+t.kind.String())
		return nil
	}
}

// parseFString lowers a quoted string: literal chunks fuse with adjacent
// literal interpolations, a single piece skips the concat node, and an
// empty string is the empty literal. Called with the opening quote already
// consumed.
func (p *parser) parseFString() *Expr {
	var parts []*Expr
	appendPart := func(e *Expr) {
		if e == nil {
			return
		}
		if e.Kind == ExprLiteral && len(parts) > 0 && parts[len(parts)-1].Kind == ExprLiteral {
			parts[len(parts)-1].Lit += e.Lit
			return
		}
		parts = append(parts, e)
	}

	for p.err == nil {
		part, err := p.lex.stringPart()
		if err != nil {
			p.fail(err)
			return nil
		}
		switch part.kind {
		case partChunk:
			appendPart(&Expr{Kind: ExprLiteral, Lit: part.text})
		case partExprStart:
			inner := p.parseExpr()
			if p.err != nil {
				return nil
			}
			if end := p.next(); end.kind != tokRBrace {
				p.failAt(end, "expected '}' in string, got "+end.kind.String())
				return nil
			}
			appendPart(inner)
		case partEnd:
			switch len(parts) {
			case 0:
				return &Expr{Kind: ExprLiteral}
			case 1:
				return parts[0]
			default:
				return &Expr{Kind: ExprConcat, Parts: parts}
			}
		}
	}
	return nil
}
