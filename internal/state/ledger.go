package state

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	fieldSep   = "|"
	doneSuffix = ".done"
)

var (
	// ErrNotFound is returned when a hostname has no record.
	ErrNotFound = errors.New("ledger record not found")

	// ErrInvalidField is returned when a field would corrupt the ledger format.
	ErrInvalidField = errors.New("ledger field contains a reserved character")

	// ErrMalformed is returned when a ledger line cannot be parsed.
	ErrMalformed = errors.New("malformed ledger line")
)

// Record is one host entry of a ledger.
type Record struct {
	Hostname string
	VMID     int
	MAC      string
	IP       string
}

// Ledger is the persisted record set of one provisioning group.
// It is not safe for concurrent use.
type Ledger struct {
	path    string
	records []Record
}

// New returns an empty ledger bound to path. Nothing is read or written.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Open returns a ledger bound to path, loaded from disk when it exists.
func Open(path string) (*Ledger, error) {
	l := New(path)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// DonePath returns the path of the completion marker.
func (l *Ledger) DonePath() string { return l.path + doneSuffix }

// Add inserts a zero record for hostname unless one exists. Existing
// records are never modified.
func (l *Ledger) Add(hostname string) error {
	if err := checkField(hostname); err != nil {
		return err
	}
	if l.Has(hostname) {
		return nil
	}
	l.records = append(l.records, Record{Hostname: hostname})
	return nil
}

// Has reports whether a record exists for hostname.
func (l *Ledger) Has(hostname string) bool {
	return l.index(hostname) >= 0
}

// Get returns the record for hostname.
func (l *Ledger) Get(hostname string) (Record, bool) {
	i := l.index(hostname)
	if i < 0 {
		return Record{}, false
	}
	return l.records[i], true
}

// VMID returns the vmid recorded for hostname, zero when unknown.
func (l *Ledger) VMID(hostname string) int {
	r, _ := l.Get(hostname)
	return r.VMID
}

// MAC returns the MAC recorded for hostname.
func (l *Ledger) MAC(hostname string) string {
	r, _ := l.Get(hostname)
	return r.MAC
}

// IP returns the IP recorded for hostname.
func (l *Ledger) IP(hostname string) string {
	r, _ := l.Get(hostname)
	return r.IP
}

// SetVMID records the vmid of hostname.
func (l *Ledger) SetVMID(hostname string, vmid int) error {
	return l.update(hostname, func(r *Record) { r.VMID = vmid })
}

// SetMAC records the MAC of hostname.
func (l *Ledger) SetMAC(hostname, mac string) error {
	if err := checkField(mac); err != nil {
		return err
	}
	return l.update(hostname, func(r *Record) { r.MAC = mac })
}

// SetIP records the IP of hostname.
func (l *Ledger) SetIP(hostname, ip string) error {
	if err := checkField(ip); err != nil {
		return err
	}
	return l.update(hostname, func(r *Record) { r.IP = ip })
}

// Names returns the hostnames in record order.
func (l *Ledger) Names() []string {
	out := make([]string, len(l.records))
	for i, r := range l.records {
		out[i] = r.Hostname
	}
	return out
}

// Records returns a copy of all records in order.
func (l *Ledger) Records() []Record {
	return append([]Record(nil), l.records...)
}

// AllMACs returns the non-empty MACs in record order.
func (l *Ledger) AllMACs() []string {
	var out []string
	for _, r := range l.records {
		if r.MAC != "" {
			out = append(out, r.MAC)
		}
	}
	return out
}

// Exists reports whether the ledger file exists.
func (l *Ledger) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// IsDone reports whether the completion marker exists.
func (l *Ledger) IsDone() bool {
	_, err := os.Stat(l.DonePath())
	return err == nil
}

// MarkDone writes the completion marker.
func (l *Ledger) MarkDone() error {
	content := fmt.Sprintf("Done at %s", time.Now().Format(time.RFC3339))
	if err := os.WriteFile(l.DonePath(), []byte(content), 0o600); err != nil {
		return fmt.Errorf("mark ledger done: %w", err)
	}
	return nil
}

// Clone returns a deep copy bound to newPath. The copy is not persisted.
func (l *Ledger) Clone(newPath string) *Ledger {
	return &Ledger{path: newPath, records: l.Records()}
}

// Load replaces the in-memory records with the file contents. A missing
// file yields an empty ledger; blank lines are ignored.
func (l *Ledger) Load() error {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.records = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := parseRecord(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", l.path, lineNo, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	l.records = records
	return nil
}

// Persist writes all records through a temporary file and rename.
func (l *Ledger) Persist() error {
	var b strings.Builder
	for _, r := range l.records {
		fmt.Fprintf(&b, "%s|%d|%s|%s\n", r.Hostname, r.VMID, r.MAC, r.IP)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func (l *Ledger) index(hostname string) int {
	for i, r := range l.records {
		if r.Hostname == hostname {
			return i
		}
	}
	return -1
}

func (l *Ledger) update(hostname string, fn func(*Record)) error {
	i := l.index(hostname)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, hostname)
	}
	fn(&l.records[i])
	return nil
}

func parseRecord(line string) (Record, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformed, len(parts))
	}
	vmid := 0
	if parts[1] != "" {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return Record{}, fmt.Errorf("%w: vmid %q", ErrMalformed, parts[1])
		}
		vmid = n
	}
	return Record{Hostname: parts[0], VMID: vmid, MAC: parts[2], IP: parts[3]}, nil
}

func checkField(v string) error {
	if strings.ContainsAny(v, fieldSep+"\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidField, v)
	}
	return nil
}
