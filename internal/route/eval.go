package route

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/gobwas/glob"

	"github.com/plumbkit/plumb/internal/lang"
	"github.com/plumbkit/plumb/internal/match"
	"github.com/plumbkit/plumb/internal/routable"
)

// evalExpr evaluates an expression against the session environment.
func (s *Session) evalExpr(e *lang.Expr) (routable.Value, error) {
	switch e.Kind {
	case lang.ExprLiteral:
		return routable.String(e.Lit), nil
	case lang.ExprVarRef:
		return s.Get(e.Var, routable.Nil), nil
	case lang.ExprConcat:
		var out []byte
		for _, p := range e.Parts {
			v, err := s.evalExpr(p)
			if err != nil {
				return routable.Nil, err
			}
			out = append(out, v.StrOr("")...)
		}
		return routable.String(string(out)), nil
	case lang.ExprEnvLookup:
		name, err := s.evalExpr(e.Name)
		if err != nil {
			return routable.Nil, err
		}
		n, ok := name.Str()
		if !ok {
			return routable.Nil, nil
		}
		if v, set := os.LookupEnv(n); set {
			return routable.String(v), nil
		}
		return routable.Nil, nil
	}
	return routable.Nil, fmt.Errorf("bad expression kind %d", e.Kind)
}

// condData resolves a leaf condition's test input: the datasource
// expression when one is attached, otherwise the routable's data.
func (s *Session) condData(c *lang.Cond) (routable.Value, error) {
	if c.Datasource != nil {
		return s.evalExpr(c.Datasource)
	}
	return s.obj.Data, nil
}

// checkCond evaluates a condition. And/Or run their children in listed
// order with short-circuiting; regex matches write their captures into the
// environment as a side effect.
func (s *Session) checkCond(c *lang.Cond) (bool, error) {
	switch c.Kind {
	case lang.CondAnd:
		for _, ch := range c.Children {
			ok, err := s.checkCond(ch)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case lang.CondOr:
		for _, ch := range c.Children {
			ok, err := s.checkCond(ch)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case lang.CondNot:
		ok, err := s.checkCond(c.Child)
		return !ok, err
	case lang.CondGlob:
		return s.checkGlob(c)
	case lang.CondRegex:
		return s.checkRegex(c)
	case lang.CondGrep:
		return s.checkGrep(c)
	case lang.CondStat:
		return s.checkStat(c)
	}
	return false, fmt.Errorf("bad condition kind %d", c.Kind)
}

func (s *Session) checkGlob(c *lang.Cond) (bool, error) {
	dat, err := s.condData(c)
	if err != nil {
		return false, err
	}
	pat, err := s.evalExpr(c.Pattern)
	if err != nil {
		return false, err
	}
	datStr, dok := dat.Str()
	patStr, pok := pat.Str()
	if !dok || !pok {
		return false, nil
	}
	g, err := glob.Compile(patStr)
	if err != nil {
		return false, fmt.Errorf("invalid glob %q: %w", patStr, err)
	}
	return g.Match(datStr), nil
}

// checkRegex matches the pattern at the start of the string and writes
// captures: "0" for the full match, "1".."n" positionally, and each named
// group under its name. Unmatched optional groups store nil.
func (s *Session) checkRegex(c *lang.Cond) (bool, error) {
	dat, err := s.condData(c)
	if err != nil {
		return false, err
	}
	pat, err := s.evalExpr(c.Pattern)
	if err != nil {
		return false, err
	}
	datStr, dok := dat.Str()
	patStr, pok := pat.Str()
	if !dok || !pok {
		return false, nil
	}
	re, err := regexp.Compile(`^(?:` + patStr + `)`)
	if err != nil {
		return false, fmt.Errorf("invalid regex %q: %w", patStr, err)
	}
	groups := re.FindStringSubmatchIndex(datStr)
	if groups == nil {
		return false, nil
	}
	names := re.SubexpNames()
	for i := 0; 2*i < len(groups); i++ {
		var v routable.Value
		if groups[2*i] >= 0 {
			v = routable.String(datStr[groups[2*i]:groups[2*i+1]])
		}
		s.Set(strconv.Itoa(i), v)
		if i > 0 && i < len(names) && names[i] != "" {
			s.Set(names[i], v)
		}
	}
	return true, nil
}

func (s *Session) checkGrep(c *lang.Cond) (bool, error) {
	pat, err := s.evalExpr(c.Pattern)
	if err != nil {
		return false, err
	}
	patStr, pok := pat.Str()
	if !pok {
		return false, nil
	}
	dat, err := s.condData(c)
	if err != nil {
		return false, err
	}
	path, dok := dat.AsPath().Str()
	if !dok || path == "" {
		return false, nil
	}
	return s.Match.GrepCheck(c.Site, path, patStr)
}

// checkStat resolves the candidate path — the derived "file" variable when
// present, else the test input as a path — and checks its mode bits. A
// failed stat is a miss, not an error.
func (s *Session) checkStat(c *lang.Cond) (bool, error) {
	dat, err := s.condData(c)
	if err != nil {
		return false, err
	}
	candidate := s.Get("file", dat.AsPath())
	path, ok := candidate.AsPath().Str()
	if !ok || path == "" {
		return false, nil
	}
	info, ok := s.Match.Stat(path)
	if !ok {
		return false, nil
	}
	return match.FileTypeMatches(info, c.FileType), nil
}
