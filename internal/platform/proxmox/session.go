package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/luthermonson/go-proxmox"

	"github.com/imamik/dropship/internal/config"
)

// ticketLifetime is kept below the two hours Proxmox grants a ticket.
const ticketLifetime = 110 * time.Minute

type session struct {
	Username  string    `json:"username"`
	Ticket    string    `json:"ticket"`
	CSRFToken string    `json:"csrf_token"`
	Created   time.Time `json:"created"`
}

// valid reports an unexpired ticket for username. An empty username
// accepts the ticket of any user.
func (s *session) valid(username string, now time.Time) bool {
	if s == nil || s.Ticket == "" || now.Sub(s.Created) >= ticketLifetime {
		return false
	}
	return username == "" || s.Username == username
}

// HasCachedSession reports whether path holds an unexpired ticket usable
// with cfg, so that no password needs to be asked for.
func HasCachedSession(cfg config.ProxmoxConfig, path string) bool {
	return readSession(path).valid(qualifiedUsername(cfg), time.Now())
}

// ensureSession returns an API client holding a valid ticket, taken from
// memory, the session file or a fresh login in that order.
func (c *Client) ensureSession(ctx context.Context) (*proxmox.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.api != nil && c.session.valid(c.username, now) {
		return c.api, nil
	}

	s := c.session
	if !s.valid(c.username, now) {
		s = readSession(c.sessionPath)
	}
	if !s.valid(c.username, now) {
		var err error
		if s, err = c.login(ctx); err != nil {
			return nil, err
		}
		c.saveSession(s)
	}
	c.session = s
	c.api = c.newAPI(s)
	return c.api, nil
}

func (c *Client) dropSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.api = nil
	if c.sessionPath != "" {
		_ = os.Remove(c.sessionPath)
	}
}

func (c *Client) login(ctx context.Context) (*session, error) {
	if c.password == "" {
		return nil, fmt.Errorf("proxmox ticket for %s expired and no password is configured", c.username)
	}

	status := &callStatus{}
	ticket, err := c.newAPI(nil).Ticket(withCallStatus(ctx, status), &proxmox.Credentials{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		if status.code() == http.StatusUnauthorized {
			return nil, fmt.Errorf("proxmox login as %s: authentication failed", c.username)
		}
		return nil, fmt.Errorf("proxmox login: %w", status.wrap(err))
	}
	if ticket == nil || ticket.Ticket == "" {
		return nil, fmt.Errorf("proxmox login as %s: no ticket returned", c.username)
	}
	return &session{
		Username:  c.username,
		Ticket:    ticket.Ticket,
		CSRFToken: ticket.CSRFPreventionToken,
		Created:   time.Now(),
	}, nil
}

// readSession returns the session cached in path or nil.
func readSession(path string) *session {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var s session
	if json.Unmarshal(data, &s) != nil {
		return nil
	}
	return &s
}

// saveSession caches s. Failures only cost a login on the next run.
func (c *Client) saveSession(s *session) {
	if c.sessionPath == "" {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.sessionPath, data, 0o600)
}
