package dnsmasq

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/imamik/dropship/internal/addressing"
	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/platform/ssh"
)

// DefaultLeaseFile is where distribution packages of dnsmasq keep leases.
const DefaultLeaseFile = "/var/lib/misc/dnsmasq.leases"

// Lease is one IPv4 lease.
type Lease struct {
	Expiry   string
	MAC      string
	IP       string
	Hostname string
}

// ParseLeases reads a dnsmasq lease file. Lines are
// "expiry mac ip hostname client-id"; IPv6 entries and the duid line are
// skipped. When a MAC appears twice the later line wins.
func ParseLeases(r io.Reader) (map[string]Lease, error) {
	leases := map[string]Lease{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] == "duid" {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("lease line %d: want at least 3 fields, got %d", lineNo, len(fields))
		}
		if strings.Contains(fields[2], ":") {
			continue
		}
		l := Lease{Expiry: fields[0], MAC: addressing.NormalizeMAC(fields[1]), IP: fields[2]}
		if len(fields) > 3 && fields[3] != "*" {
			l.Hostname = fields[3]
		}
		leases[l.MAC] = l
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read leases: %w", err)
	}
	return leases, nil
}

func lookup(data []byte, mac string) (string, bool, error) {
	leases, err := ParseLeases(bytes.NewReader(data))
	if err != nil {
		return "", false, err
	}
	l, ok := leases[addressing.NormalizeMAC(mac)]
	return l.IP, ok, nil
}

// FileSource is an AddressSource over a local lease file.
type FileSource struct {
	Path string
}

// Lookup implements addressing.AddressSource. A missing file means no
// leases have been granted yet.
func (s *FileSource) Lookup(_ context.Context, mac string) (string, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read lease file: %w", err)
	}
	return lookup(data, mac)
}

// FileReader reads files on another machine. *ssh.Client satisfies it.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// RemoteSource is an AddressSource over a lease file on a remote host.
type RemoteSource struct {
	Reader FileReader
	Path   string
}

// Lookup implements addressing.AddressSource.
func (s *RemoteSource) Lookup(ctx context.Context, mac string) (string, bool, error) {
	data, err := s.Reader.ReadFile(ctx, s.Path)
	if err != nil {
		return "", false, fmt.Errorf("read remote lease file: %w", err)
	}
	return lookup(data, mac)
}

// NewSource returns the lease source described by cfg.
func NewSource(cfg config.LeaseConfig) (addressing.AddressSource, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultLeaseFile
	}
	if cfg.Remote == nil {
		return &FileSource{Path: path}, nil
	}

	sshCfg := &ssh.Config{
		Host:     cfg.Remote.Host,
		Port:     cfg.Remote.Port,
		User:     cfg.Remote.User,
		Password: cfg.Remote.Password,
	}
	if cfg.Remote.KeyFile != "" {
		key, err := os.ReadFile(cfg.Remote.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		sshCfg.PrivateKey = key
	}
	client, err := ssh.NewClient(sshCfg)
	if err != nil {
		return nil, fmt.Errorf("lease source %s: %w", cfg.Remote.Host, err)
	}
	return &RemoteSource{Reader: client, Path: path}, nil
}
