package handlers

import (
	"fmt"
	"io"

	"github.com/go-logr/logr/funcr"

	"github.com/imamik/dropship/internal/provisioning"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// newLogObserver returns the console observer for a log format. Text goes
// through the standard logger; JSON lines are written to out.
func newLogObserver(format string, out io.Writer) (provisioning.Observer, error) {
	switch format {
	case "", LogFormatText:
		return provisioning.NewConsoleObserver(), nil
	case LogFormatJSON:
		logger := funcr.NewJSON(func(obj string) {
			_, _ = fmt.Fprintln(out, obj)
		}, funcr.Options{LogTimestamp: true, Verbosity: 1})
		return provisioning.NewLogrObserver(logger.WithName("dropship")), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, LogFormatText, LogFormatJSON)
	}
}
