package proxmox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/luthermonson/go-proxmox"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/util/retry"
)

const (
	defaultRealm        = "pam"
	defaultPollInterval = 3 * time.Second
	apiPrefix           = "/api2/json"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSessionFile caches tickets in path.
func WithSessionFile(path string) Option {
	return func(c *Client) { c.sessionPath = path }
}

// WithPollInterval sets the task poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// Client implements provisioning.Provider on one Proxmox VE node.
type Client struct {
	baseURL      string
	node         string
	username     string
	password     string
	fullClone    bool
	pool         string
	pollInterval time.Duration
	sessionPath  string
	http         *http.Client

	mu      sync.Mutex
	session *session
	api     *proxmox.Client
	tasks   []*proxmox.Task
}

// NewClient returns a client for cfg. It does not contact the API.
//
// Username and password may be left empty when the session file holds an
// unexpired ticket; the cached ticket's user is adopted in that case.
func NewClient(cfg config.ProxmoxConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: proxmox url is required", config.ErrInvalid)
	}
	if cfg.Node == "" {
		return nil, fmt.Errorf("%w: proxmox node is required", config.ErrInvalid)
	}

	c := &Client{
		baseURL:      apiURL(cfg.URL),
		node:         cfg.Node,
		username:     qualifiedUsername(cfg),
		password:     cfg.Password,
		fullClone:    cfg.FullClone,
		pool:         cfg.Pool,
		pollInterval: defaultPollInterval,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // self-signed lab hypervisors
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Username == "" || cfg.Password == "" {
		cached := readSession(c.sessionPath)
		if !cached.valid(c.username, time.Now()) {
			return nil, fmt.Errorf("%w: proxmox credentials are required", config.ErrInvalid)
		}
		c.username = cached.Username
		c.session = cached
	}
	c.http = recordStatus(c.http)
	return c, nil
}

func apiURL(raw string) string {
	base := strings.TrimRight(raw, "/")
	if strings.HasSuffix(base, apiPrefix) {
		return base
	}
	return base + apiPrefix
}

// qualifiedUsername appends the realm to a bare username. It returns ""
// when no username is configured.
func qualifiedUsername(cfg config.ProxmoxConfig) string {
	if cfg.Username == "" || strings.Contains(cfg.Username, "@") {
		return cfg.Username
	}
	realm := cfg.Realm
	if realm == "" {
		realm = defaultRealm
	}
	return cfg.Username + "@" + realm
}

// newAPI returns a go-proxmox client, authenticated with s when given.
func (c *Client) newAPI(s *session) *proxmox.Client {
	opts := []proxmox.Option{proxmox.WithHTTPClient(c.http)}
	if s != nil {
		opts = append(opts, proxmox.WithSession(s.Ticket, s.CSRFToken))
	}
	return proxmox.NewClient(c.baseURL, opts...)
}

// call runs op against an authenticated API client and logs in again once
// when the ticket was rejected. Client errors are marked fatal so retry
// loops give up on them.
func (c *Client) call(ctx context.Context, op func(context.Context, *proxmox.Client) error) error {
	api, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}
	status := &callStatus{}
	err = op(withCallStatus(ctx, status), api)

	if err != nil && status.code() == http.StatusUnauthorized {
		c.dropSession()
		if api, err = c.ensureSession(ctx); err != nil {
			return err
		}
		status = &callStatus{}
		err = op(withCallStatus(ctx, status), api)
	}
	if err == nil {
		return nil
	}
	err = status.wrap(err)
	if isInvalidRequest(err) {
		return retry.Fatal(err)
	}
	return err
}

// nodeOf looks up the configured node.
func (c *Client) nodeOf(ctx context.Context, api *proxmox.Client) (*proxmox.Node, error) {
	node, err := api.Node(ctx, c.node)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", c.node, err)
	}
	return node, nil
}

func (c *Client) virtualMachine(ctx context.Context, api *proxmox.Client, vmid int) (*proxmox.VirtualMachine, error) {
	node, err := c.nodeOf(ctx, api)
	if err != nil {
		return nil, err
	}
	vm, err := node.VirtualMachine(ctx, vmid)
	if err != nil {
		return nil, fmt.Errorf("vm %d: %w", vmid, err)
	}
	return vm, nil
}

func (c *Client) nodePath(format string, args ...any) string {
	return "/nodes/" + c.node + fmt.Sprintf(format, args...)
}
