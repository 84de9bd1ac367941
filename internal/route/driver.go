package route

import (
	"os"
	"path/filepath"

	"github.com/plumbkit/plumb/internal/routable"
)

// NewRoutable builds the routable for one driver input. The type is
// inferred by probing the filesystem under wdir: regular file first, then
// directory (directory wins if both somehow report), else plain text.
func NewRoutable(arg, wdir string) *routable.Routable {
	if wdir == "" {
		wdir, _ = os.Getwd()
	}
	probe := arg
	if !filepath.IsAbs(probe) {
		probe = filepath.Join(wdir, arg)
	}
	typ := "text"
	if info, err := os.Stat(probe); err == nil {
		if info.Mode().IsRegular() {
			typ = "file"
		}
		if info.IsDir() {
			typ = "dir"
		}
	}
	return &routable.Routable{
		Data:         routable.String(arg),
		OriginalData: routable.String(arg),
		Type:         typ,
		Wdir:         routable.Path(wdir),
		Attr:         map[string]string{},
	}
}

// RouteArg routes one driver input through the program.
func (s *Session) RouteArg(arg, wdir string) error {
	return s.Route(NewRoutable(arg, wdir))
}
