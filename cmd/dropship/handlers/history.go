package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/imamik/dropship/internal/journal"
	"github.com/imamik/dropship/internal/ui/tui"
)

// HistoryOptions are the flags of the history command.
type HistoryOptions struct {
	ConfigPath string
	RunID      string
	Limit      int
}

// ErrNoJournal is returned when the run journal does not exist.
var ErrNoJournal = errors.New("no run journal found (enable journal in the configuration)")

// History lists journaled runs, or the events of one run.
func History(ctx context.Context, opts HistoryOptions) error {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return err
	}

	path := cfg.JournalPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNoJournal, path)
	}
	j, err := journal.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	if opts.RunID != "" {
		entries, err := j.Events(ctx, opts.RunID)
		if err != nil {
			return err
		}
		printf("%s", tui.RenderEvents(entries))
		return nil
	}

	runs, err := j.Runs(ctx, opts.Limit)
	if err != nil {
		return err
	}
	printf("%s", tui.RenderHistory(runs))
	return nil
}
