package ansible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/provisioning"
)

const defaultBinary = "ansible-playbook"

// Pusher runs ansible-playbook. It satisfies provisioning.ConfigPusher.
type Pusher struct {
	Binary    string
	ExtraArgs []string

	// Output receives the playbook's stdout and stderr.
	Output io.Writer
}

// NewPusher returns a pusher configured by cfg.
func NewPusher(cfg config.AnsibleConfig, output io.Writer) *Pusher {
	return &Pusher{Binary: cfg.Binary, ExtraArgs: cfg.ExtraArgs, Output: output}
}

// Files returns the inventory and playbook paths of a request.
func Files(req provisioning.PushRequest) (inventory, playbook string) {
	inventory = filepath.Join(req.WorkDir, req.Name+"_inventory.yml")
	playbook = filepath.Join(req.WorkDir, fmt.Sprintf("%s_%s_playbook.yml", req.Name, req.TaskSet))
	return inventory, playbook
}

// Apply renders the inventory and playbook of req and runs the playbook.
// A playbook that ran and failed is reported as a non-zero exit code with a
// nil error.
func (p *Pusher) Apply(ctx context.Context, req provisioning.PushRequest) (int, error) {
	if err := os.MkdirAll(req.WorkDir, 0o750); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}
	inv, err := RenderInventory(req.Inventory)
	if err != nil {
		return 0, err
	}
	book, err := RenderPlaybook(req.Inventory, req.TaskSet)
	if err != nil {
		return 0, err
	}
	invPath, bookPath := Files(req)
	if err := os.WriteFile(invPath, inv, 0o600); err != nil {
		return 0, fmt.Errorf("write inventory: %w", err)
	}
	if err := os.WriteFile(bookPath, book, 0o600); err != nil {
		return 0, fmt.Errorf("write playbook: %w", err)
	}

	binary := p.Binary
	if binary == "" {
		binary = defaultBinary
	}
	args := append([]string{"-i", invPath}, p.ExtraArgs...)
	args = append(args, bookPath)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), "ANSIBLE_HOST_KEY_CHECKING=False", "ANSIBLE_RETRY_FILES_ENABLED=False")
	out := p.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return 0, fmt.Errorf("run %s: %w", binary, err)
	}
}
