package provisioning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/modules"
	"github.com/imamik/dropship/internal/state"
	"github.com/imamik/dropship/internal/topology"
	"github.com/imamik/dropship/internal/util/retry"
)

// DHCPTableFile is the file the dhcp-collect task set writes into its
// work directory, one "mac|ip" line per lease.
const DHCPTableFile = "dhcp_table"

var errHostsPending = errors.New("hosts without DHCP lease")

// harvestDHCP collects the lease table of the instance's DHCP server until
// every pending host has an address, assigning ConnectIP and ledger IPs.
func (c *Context) harvestDHCP(inst *topology.NetworkInstance, dir string, ledger *state.Ledger, pending []*topology.Host) error {
	server, ok := inst.DHCPServer()
	if !ok {
		return fmt.Errorf("%w: %s has dhcp hosts", ErrNoDHCPServer, inst.Name)
	}
	serverAddr, ok := server.Addr()
	if !ok {
		return configErr("dhcp server %s needs a static address", server.Hostname)
	}

	attempts := 0
	op := func() error {
		attempts++
		work, err := os.MkdirTemp(dir, "dhcp-collect-")
		if err != nil {
			return retry.Fatal(err)
		}
		table := filepath.Join(work, DHCPTableFile)

		builder := newInventoryBuilder(c, "", inst.Vars(), modules.TaskDHCPCollect)
		if err := builder.addAs(server.Module, server.Hostname, serverAddr.String(), map[string]any{
			"hostname":        server.Hostname,
			"dhcp_table_path": table,
		}); err != nil {
			return retry.Fatal(err)
		}

		name := fmt.Sprintf("%s_dhcp_collect", inst.Name)
		if err := c.push(PhaseDeploy, name, work, builder.build(), modules.TaskDHCPCollect); err != nil {
			return err
		}

		f, err := os.Open(table)
		if err != nil {
			return fmt.Errorf("read dhcp table: %w", err)
		}
		leases, err := addressing.ParseTable(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		remaining := pending[:0:0]
		for _, h := range pending {
			ip, found, _ := leases.Lookup(c, h.MAC())
			if !found {
				remaining = append(remaining, h)
				continue
			}
			h.ConnectIP = ip
			if err := ledger.SetIP(h.Hostname, ip); err != nil {
				return retry.Fatal(err)
			}
			LogAddressResolved(c.Observer, PhaseDeploy, h.Hostname, h.MAC(), ip)
		}
		if err := ledger.Persist(); err != nil {
			return retry.Fatal(err)
		}
		pending = remaining
		if len(pending) > 0 {
			return fmt.Errorf("%w: %d remaining", errHostsPending, len(pending))
		}
		return nil
	}

	timeouts := c.timeouts()
	opts := []retry.Option{
		retry.WithMaxRetries(max(timeouts.HarvestMaxAttempts-1, 0)),
		retry.WithInitialDelay(timeouts.HarvestInitialDelay),
		retry.WithMaxDelay(timeouts.HarvestMaxDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.Observer.Printf("[%s] dhcp harvest attempt %d: %v (next in %s)", PhaseDeploy, attempt, err, delay)
		}),
	}
	err := retry.WithExponentialBackoff(c, op, opts...)
	if err == nil {
		return nil
	}
	if errors.Is(err, retry.ErrExhausted) && len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, h := range pending {
			names = append(names, fmt.Sprintf("%s(%s)", h.Hostname, h.MAC()))
		}
		return &addressing.TimeoutError{Op: "dhcp harvest", Pending: names, Attempts: attempts}
	}
	return err
}
