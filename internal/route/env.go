package route

import (
	"path/filepath"

	"github.com/plumbkit/plumb/internal/routable"
)

// Reserved variable names project directly onto the current routable's
// fields; everything else lives in the session's generic map. The derived
// names "file" and "dir" are recomputed whenever wdir or data changes.

// Get reads a variable, falling back to def when unset. Reserved names
// always reflect the routable, so E.get(k) == R.k holds at all times.
func (s *Session) Get(name string, def routable.Value) routable.Value {
	switch name {
	case "src":
		return routable.String(s.obj.Src)
	case "dst":
		return routable.String(s.obj.Dst)
	case "type":
		return routable.String(s.obj.Type)
	case "data":
		return s.obj.Data
	case "wdir":
		return s.obj.Wdir
	case "attr":
		return routable.String(s.obj.AttrString())
	}
	if v, ok := s.vars[name]; ok {
		return v
	}
	return def
}

// Set writes a variable. Reserved names dispatch to the routable's fields;
// nil coerces to the empty string there, except wdir where nil clears the
// working directory.
func (s *Session) Set(name string, v routable.Value) {
	switch name {
	case "src":
		s.obj.Src = v.StrOr("")
	case "dst":
		s.obj.Dst = v.StrOr("")
	case "type":
		s.obj.Type = v.StrOr("")
	case "attr":
		s.obj.SetAttrString(v.StrOr(""))
	case "data":
		if v.IsNil() {
			s.obj.Data = routable.String("")
		} else {
			s.obj.Data = v
		}
		s.deriveFileVars()
	case "wdir":
		if str, ok := v.Str(); ok && str != "" {
			s.obj.Wdir = routable.Path(str)
		} else {
			s.obj.Wdir = routable.Nil
		}
		s.deriveFileVars()
	default:
		s.vars[name] = v
	}
}

// deriveFileVars refreshes the derived names: file is the absolute
// candidate path wdir/data, dir its parent directory.
func (s *Session) deriveFileVars() {
	wdir, wok := s.obj.Wdir.Str()
	data, dok := s.obj.Data.Str()
	if !wok || !dok {
		delete(s.vars, "file")
		delete(s.vars, "dir")
		return
	}
	joined := filepath.Join(wdir, data)
	s.vars["file"] = routable.Path(joined)
	s.vars["dir"] = routable.Path(filepath.Dir(joined))
}
