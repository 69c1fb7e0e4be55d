// Package agentclient implements the endpoint agent: enrollment against
// the control plane, the heartbeat loop, and periodic baseline sync.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gohost "github.com/shirou/gopsutil/v4/host"

	"github.com/oneone404/One-Shield-sub000/internal/hwid"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

const (
	defaultInterval = 60 * time.Second
	requestTimeout  = 30 * time.Second
	baselineEvery   = 10 * time.Minute
)

// ErrUnauthorized marks a 401 from the server: stored credentials are no
// longer accepted and the agent must re-enroll. Network errors never map
// to this, so a flaky link cannot make the agent discard its identity.
var ErrUnauthorized = errors.New("server rejected credentials")

// Config controls the agent.
type Config struct {
	ServerURL string
	StateFile string

	// Enrollment: a token for organization fleets, or email+password for
	// the personal flow. Unused once an identity is stored.
	EnrollmentToken string
	Email           string
	Password        string

	Hostname   string
	Interval   time.Duration
	Version    string
	Logger     *zerolog.Logger
	HTTPClient *http.Client
}

// State is the persisted agent identity.
type State struct {
	AgentID    string `json:"agent_id"`
	AgentToken string `json:"agent_token"`
	OrgID      string `json:"org_id"`
	OrgName    string `json:"org_name,omitempty"`
	HWID       string `json:"hwid"`
}

// Client talks to the control plane on behalf of one endpoint.
type Client struct {
	cfg      Config
	logger   zerolog.Logger
	http     *http.Client
	base     string
	interval time.Duration

	mu            sync.Mutex
	state         State
	policyVersion int
	stats         baselineStats
}

// New constructs an agent client and loads any previously stored identity.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if base == "" {
		return nil, fmt.Errorf("server url is required")
	}
	if strings.TrimSpace(cfg.StateFile) == "" {
		return nil, fmt.Errorf("state file is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			cfg.Hostname = name
		}
	}

	if cfg.Logger == nil {
		defaultLogger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
		cfg.Logger = &defaultLogger
	}
	logger := cfg.Logger.With().Str("component", "agent").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		http:     httpClient,
		base:     base,
		interval: cfg.Interval,
	}
	if err := c.loadState(); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns a copy of the stored identity.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnsureEnrolled enrolls the agent unless an identity is already stored.
func (c *Client) EnsureEnrolled(ctx context.Context) error {
	c.mu.Lock()
	enrolled := c.state.AgentID != "" && c.state.AgentToken != ""
	c.mu.Unlock()
	if enrolled {
		return nil
	}
	return c.enroll(ctx)
}

func (c *Client) enroll(ctx context.Context) error {
	c.mu.Lock()
	hw := c.state.HWID
	c.mu.Unlock()
	if hw == "" {
		derived, err := hwid.Derive(ctx)
		if err != nil {
			return fmt.Errorf("derive hwid: %w", err)
		}
		hw = derived
	}

	osType, osVersion := platform(ctx)

	switch {
	case c.cfg.EnrollmentToken != "":
		req := agentapi.OrgEnrollRequest{
			Token:        c.cfg.EnrollmentToken,
			HWID:         hw,
			Hostname:     c.cfg.Hostname,
			OSType:       osType,
			OSVersion:    osVersion,
			AgentVersion: c.cfg.Version,
		}
		var resp agentapi.OrgEnrollResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/agent/enroll", "", req, &resp); err != nil {
			return fmt.Errorf("org enrollment: %w", err)
		}
		c.setIdentity(State{
			AgentID:    resp.AgentID,
			AgentToken: resp.AgentToken,
			OrgID:      resp.OrgID,
			OrgName:    resp.OrgName,
			HWID:       hw,
		})

	case c.cfg.Email != "" && c.cfg.Password != "":
		req := agentapi.PersonalEnrollRequest{
			Email:        c.cfg.Email,
			Password:     c.cfg.Password,
			HWID:         hw,
			Hostname:     c.cfg.Hostname,
			OSType:       osType,
			OSVersion:    osVersion,
			AgentVersion: c.cfg.Version,
		}
		var resp agentapi.PersonalEnrollResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/personal/enroll", "", req, &resp); err != nil {
			return fmt.Errorf("personal enrollment: %w", err)
		}
		c.setIdentity(State{
			AgentID:    resp.AgentID,
			AgentToken: resp.AgentToken,
			OrgID:      resp.OrgID,
			OrgName:    resp.OrgName,
			HWID:       hw,
		})
		if resp.IsNewUser {
			c.logger.Info().Str("org", resp.OrgName).Msg("Created personal account")
		}

	default:
		return fmt.Errorf("either an enrollment token or email and password are required")
	}

	c.mu.Lock()
	agentID, orgName := c.state.AgentID, c.state.OrgName
	c.mu.Unlock()
	c.logger.Info().Str("agent_id", agentID).Str("org", orgName).Msg("Enrolled")
	return c.saveState()
}

// reenroll discards the stored token but keeps the hwid, so the server
// rotates the existing endpoint rather than minting a duplicate.
func (c *Client) reenroll(ctx context.Context) error {
	c.mu.Lock()
	c.state.AgentID = ""
	c.state.AgentToken = ""
	c.mu.Unlock()
	return c.enroll(ctx)
}

func (c *Client) setIdentity(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.AgentToken
}

func (c *Client) loadState() error {
	data, err := os.ReadFile(c.cfg.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	return nil
}

func (c *Client) saveState() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.state, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(c.cfg.StateFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	// The file holds the bearer token; keep it owner-only.
	if err := os.WriteFile(c.cfg.StateFile, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// do sends one JSON request. A 401 maps to ErrUnauthorized; other non-2xx
// responses surface the server's error message.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "oneshield-agent/"+c.cfg.Version)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := resp.Status
		var apiErr agentapi.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		}
		return fmt.Errorf("server responded %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func platform(ctx context.Context) (osType, osVersion string) {
	infoCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	info, err := gohost.InfoWithContext(infoCtx)
	if err != nil || info == nil {
		return "unknown", ""
	}
	return info.Platform, info.PlatformVersion
}
