package addressing

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// ErrTimeout matches every *TimeoutError.
var ErrTimeout = errors.New("timed out")

// AddressSource resolves a single MAC. found is false while the address is
// not yet known.
type AddressSource interface {
	Lookup(ctx context.Context, mac string) (ip string, found bool, err error)
}

// TimeoutError reports a bounded wait that ran out.
type TimeoutError struct {
	Op       string
	Pending  []string
	Attempts int
}

func (e *TimeoutError) Error() string {
	if len(e.Pending) == 0 {
		return fmt.Sprintf("%s: timed out after %d attempts", e.Op, e.Attempts)
	}
	return fmt.Sprintf("%s: timed out after %d attempts, pending: %s",
		e.Op, e.Attempts, strings.Join(e.Pending, ", "))
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Resolver polls an AddressSource.
type Resolver struct {
	Source      AddressSource
	Interval    time.Duration
	MaxAttempts int

	// OnAttempt, when set, is called after every unsuccessful attempt.
	OnAttempt func(attempt int, pending []string)
}

// NormalizeMAC lower-cases and trims a MAC address.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// Resolve returns the address of every MAC, keyed by lower-cased MAC.
func (r *Resolver) Resolve(ctx context.Context, macs []string) (map[string]string, error) {
	result := make(map[string]string, len(macs))
	pending := make([]string, 0, len(macs))
	for _, m := range macs {
		m = NormalizeMAC(m)
		if m == "" || slices.Contains(pending, m) {
			continue
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return result, nil
	}

	maxAttempts := max(r.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("resolve addresses: %w", err)
		}

		remaining := pending[:0:0]
		for _, mac := range pending {
			ip, found, err := r.Source.Lookup(ctx, mac)
			if err != nil {
				return result, fmt.Errorf("lookup %s: %w", mac, err)
			}
			if found && ip != "" {
				result[mac] = ip
				continue
			}
			remaining = append(remaining, mac)
		}
		pending = remaining
		if len(pending) == 0 {
			return result, nil
		}

		if r.OnAttempt != nil {
			r.OnAttempt(attempt, slices.Clone(pending))
		}
		if attempt >= maxAttempts {
			return result, &TimeoutError{Op: "resolve addresses", Pending: pending, Attempts: attempt}
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("resolve addresses: %w", ctx.Err())
		case <-time.After(r.Interval):
		}
	}
}

// Table is an AddressSource backed by a fixed mac to ip map.
type Table map[string]string

// Lookup implements AddressSource.
func (t Table) Lookup(_ context.Context, mac string) (string, bool, error) {
	ip, ok := t[NormalizeMAC(mac)]
	return ip, ok, nil
}

// ParseTable reads "mac|ip" lines. Blank lines and lines starting with #
// are skipped.
func ParseTable(r io.Reader) (Table, error) {
	table := Table{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		mac, ip, ok := strings.Cut(line, "|")
		mac, ip = NormalizeMAC(mac), strings.TrimSpace(ip)
		if !ok || mac == "" || ip == "" || strings.Contains(ip, "|") {
			return nil, fmt.Errorf("line %d: want mac|ip, got %q", lineNo, line)
		}
		table[mac] = ip
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read address table: %w", err)
	}
	return table, nil
}
