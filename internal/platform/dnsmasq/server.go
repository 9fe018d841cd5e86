package dnsmasq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/imamik/dropship/internal/config"
)

const (
	defaultBinary    = "dnsmasq"
	defaultLeaseTime = "1h"
	stopGrace        = 5 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("dnsmasq already running")

// Server runs dnsmasq in the foreground as a DHCP-only server on one
// interface.
type Server struct {
	Binary     string
	Interface  string
	RangeStart string
	RangeEnd   string
	Gateway    string
	LeaseFile  string
	LeaseTime  string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

// NewServer returns a server for the bootstrap switch writing leases to
// leaseFile.
func NewServer(cfg config.BootstrapConfig, leaseFile string) *Server {
	return &Server{
		Interface:  cfg.Interface,
		RangeStart: cfg.RangeStart,
		RangeEnd:   cfg.RangeEnd,
		Gateway:    cfg.Gateway,
		LeaseFile:  leaseFile,
	}
}

// Args returns the dnsmasq command line.
func (s *Server) Args() []string {
	leaseTime := s.LeaseTime
	if leaseTime == "" {
		leaseTime = defaultLeaseTime
	}
	args := []string{
		"--keep-in-foreground",
		"--no-resolv",
		"--no-hosts",
		"--port=0",
		"--bind-interfaces",
		"--interface=" + s.Interface,
		fmt.Sprintf("--dhcp-range=%s,%s,%s", s.RangeStart, s.RangeEnd, leaseTime),
		"--dhcp-leasefile=" + s.LeaseFile,
	}
	if s.Gateway != "" {
		args = append(args, "--dhcp-option=option:router,"+s.Gateway)
	}
	return args
}

func (s *Server) validate() error {
	switch {
	case s.Interface == "":
		return fmt.Errorf("%w: dnsmasq needs an interface", config.ErrInvalid)
	case s.RangeStart == "" || s.RangeEnd == "":
		return fmt.Errorf("%w: dnsmasq needs a lease range", config.ErrInvalid)
	case s.LeaseFile == "":
		return fmt.Errorf("%w: dnsmasq needs a lease file", config.ErrInvalid)
	}
	return nil
}

// Start launches dnsmasq. It returns once the process is running; the
// process exits when Stop is called.
func (s *Server) Start(_ context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return ErrAlreadyRunning
	}

	binary := s.Binary
	if binary == "" {
		binary = defaultBinary
	}
	cmd := exec.Command(binary, s.Args()...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start dnsmasq: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	s.cmd = cmd
	s.done = done
	return nil
}

// Stop terminates dnsmasq, killing it if it ignores SIGTERM. Stopping a
// server that is not running is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stop dnsmasq: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
		return nil
	}
}

// Running reports whether Start has been called without a matching Stop.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}
