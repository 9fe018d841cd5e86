package definition

import (
	"fmt"

	"github.com/imamik/dropship/internal/provisioning"
)

// ErrConfiguration is matched by every parse error.
var ErrConfiguration = provisioning.ErrConfiguration

// Error is a parse error at a line of a definition or instance file.
type Error struct {
	File      string
	Line      int
	Directive string
	Msg       string
}

func (e *Error) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.File != "" {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Directive == "" {
		return fmt.Sprintf("%s: %s", loc, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", loc, e.Directive, e.Msg)
}

// Is reports whether target is ErrConfiguration.
func (e *Error) Is(target error) bool { return target == ErrConfiguration }
