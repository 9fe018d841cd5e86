package proxmox

import (
	"context"
	"fmt"
	"time"

	"github.com/luthermonson/go-proxmox"
)

// track records an asynchronous task.
func (c *Client) track(task *proxmox.Task) {
	if task == nil || task.UPID == "" {
		return
	}
	c.mu.Lock()
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()
}

func (c *Client) pending() []*proxmox.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*proxmox.Task(nil), c.tasks...)
}

// Outstanding returns the ids of the tracked tasks.
func (c *Client) Outstanding() []string {
	var ids []string
	for _, t := range c.pending() {
		ids = append(ids, string(t.UPID))
	}
	return ids
}

// WaitForOutstandingTasks polls every tracked task until it stops. Tasks
// are forgotten once stopped; the first failed task is returned as an error
// matching ErrTaskFailed. The wait is bounded only by ctx.
func (c *Client) WaitForOutstandingTasks(ctx context.Context) error {
	var failed error
	for {
		pending := c.pending()
		if len(pending) == 0 {
			return failed
		}

		stopped := map[proxmox.UPID]bool{}
		for _, task := range pending {
			var live *proxmox.Task
			err := c.call(ctx, func(ctx context.Context, api *proxmox.Client) error {
				// rebind so a ticket renewed since the task started is used
				live = proxmox.NewTask(task.UPID, api)
				return live.Ping(ctx)
			})
			if err != nil {
				return fmt.Errorf("task %s: %w", task.UPID, err)
			}
			if !live.IsCompleted {
				continue
			}
			stopped[task.UPID] = true
			if live.IsFailed && failed == nil {
				failed = fmt.Errorf("%w: %s: %s", ErrTaskFailed, task.UPID, live.ExitStatus)
			}
		}
		c.forget(stopped)

		if len(stopped) == len(pending) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) forget(done map[proxmox.UPID]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if !done[t.UPID] {
			kept = append(kept, t)
		}
	}
	c.tasks = kept
}
