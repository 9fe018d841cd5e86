package provisioning

import (
	"fmt"

	"github.com/imamik/dropship/internal/modules"
)

// push applies task sets in order and stops at the first failure.
func (c *Context) push(phase, name, workDir string, inv *Inventory, sets ...modules.TaskSet) error {
	if inv.HostCount() == 0 {
		return nil
	}
	for _, set := range sets {
		c.Observer.Event(Event{
			Type:     EventPushStarted,
			Phase:    phase,
			Resource: name,
			Message:  fmt.Sprintf("applying %s to %d hosts", set, inv.HostCount()),
			Fields:   map[string]string{"task_set": string(set)},
		})

		code, err := c.Pusher.Apply(c, PushRequest{Name: name, Inventory: inv, TaskSet: set, WorkDir: workDir})
		if err != nil || code != 0 {
			perr := &ConfigPushError{Name: name, TaskSet: set, ExitCode: code, Err: err}
			c.Observer.Event(Event{
				Type:     EventPushFailed,
				Phase:    phase,
				Resource: name,
				Message:  perr.Error(),
				Fields:   map[string]string{"task_set": string(set), "exit_code": fmt.Sprint(code)},
			})
			return perr
		}

		c.Observer.Event(Event{
			Type:     EventPushCompleted,
			Phase:    phase,
			Resource: name,
			Message:  fmt.Sprintf("%s applied", set),
			Fields:   map[string]string{"task_set": string(set)},
		})
	}
	return nil
}
