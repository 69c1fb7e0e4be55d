package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oneone404/One-Shield-sub000/internal/agentclient"
)

var Version = "dev"

const defaultStateDir = "/var/lib/oneshield-agent"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	cfg, err := loadConfig(args, getenv)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().Logger()

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.InsecureSkipVerify {
		//nolint:gosec // Insecure mode is explicitly user-controlled.
		tlsConfig.InsecureSkipVerify = true
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: tlsConfig,
		},
	}

	client, err := agentclient.New(agentclient.Config{
		ServerURL:       cfg.ServerURL,
		StateFile:       cfg.StateFile,
		EnrollmentToken: cfg.EnrollToken,
		Email:           cfg.Email,
		Password:        cfg.Password,
		Hostname:        cfg.Hostname,
		Interval:        cfg.Interval,
		Version:         Version,
		Logger:          &logger,
		HTTPClient:      httpClient,
	})
	if err != nil {
		return err
	}

	if err := client.EnsureEnrolled(ctx); err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	state := client.State()
	logger.Info().
		Str("version", Version).
		Str("server", cfg.ServerURL).
		Str("agent_id", state.AgentID).
		Str("org", state.OrgName).
		Dur("interval", cfg.Interval).
		Msg("Starting One-Shield agent")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.HeartbeatLoop(ctx) })
	g.Go(func() error { return client.SyncLoop(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Agent terminated with error")
		return err
	}

	logger.Info().Msg("One-Shield agent stopped")
	return nil
}

type Config struct {
	ServerURL          string
	EnrollToken        string
	Email              string
	Password           string
	StateFile          string
	Hostname           string
	Interval           time.Duration
	InsecureSkipVerify bool
	LogLevel           zerolog.Level
}

func loadConfig(args []string, getenv func(string) string) (Config, error) {
	envURL := strings.TrimSpace(getenv("ONESHIELD_URL"))
	envToken := strings.TrimSpace(getenv("ONESHIELD_ENROLL_TOKEN"))
	envEmail := strings.TrimSpace(getenv("ONESHIELD_EMAIL"))
	envPassword := getenv("ONESHIELD_PASSWORD")
	envState := strings.TrimSpace(getenv("ONESHIELD_STATE_FILE"))
	envInterval := strings.TrimSpace(getenv("ONESHIELD_INTERVAL"))
	envHostname := strings.TrimSpace(getenv("ONESHIELD_HOSTNAME"))
	envInsecure := strings.TrimSpace(getenv("ONESHIELD_INSECURE_SKIP_VERIFY"))
	envLogLevel := strings.TrimSpace(getenv("LOG_LEVEL"))

	defaultInterval := 60 * time.Second
	if envInterval != "" {
		if parsed, err := time.ParseDuration(envInterval); err == nil {
			defaultInterval = parsed
		}
	}

	defaultState := envState
	if defaultState == "" {
		defaultState = defaultStateDir + "/state.json"
	}

	fs := flag.NewFlagSet("oneshield-agent", flag.ContinueOnError)
	urlFlag := fs.String("url", envURL, "One-Shield server URL")
	tokenFlag := fs.String("token", envToken, "Enrollment token (prefer --token-file for security)")
	tokenFileFlag := fs.String("token-file", "", "Path to file containing the enrollment token (more secure than --token)")
	emailFlag := fs.String("email", envEmail, "Account email for personal enrollment")
	passwordFlag := fs.String("password", envPassword, "Account password for personal enrollment (prefer ONESHIELD_PASSWORD)")
	stateFlag := fs.String("state-file", defaultState, "Path for the persisted agent identity")
	intervalFlag := fs.Duration("interval", defaultInterval, "Heartbeat interval")
	hostnameFlag := fs.String("hostname", envHostname, "Override hostname")
	insecureFlag := fs.Bool("insecure", parseBool(envInsecure), "Skip TLS verification")
	logLevelFlag := fs.String("log-level", defaultLogLevel(envLogLevel), "Log level")
	showVersion := fs.Bool("version", false, "Print the agent version and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *showVersion {
		fmt.Println(Version)
		return Config{}, flag.ErrHelp
	}

	serverURL := strings.TrimSpace(*urlFlag)
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	logLevel, err := parseLogLevel(*logLevelFlag)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	return Config{
		ServerURL:          serverURL,
		EnrollToken:        resolveToken(*tokenFlag, *tokenFileFlag, envToken),
		Email:              strings.TrimSpace(*emailFlag),
		Password:           *passwordFlag,
		StateFile:          strings.TrimSpace(*stateFlag),
		Hostname:           strings.TrimSpace(*hostnameFlag),
		Interval:           *intervalFlag,
		InsecureSkipVerify: *insecureFlag,
		LogLevel:           logLevel,
	}, nil
}

// parseBool interprets common boolean strings, returning true for typical truthy values.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseLogLevel(value string) (zerolog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(normalized)
}

func defaultLogLevel(envValue string) string {
	if strings.TrimSpace(envValue) == "" {
		return "info"
	}
	return envValue
}

// resolveToken resolves the enrollment token with priority:
// 1. --token flag (direct value)
// 2. --token-file flag (read from file)
// 3. ONESHIELD_ENROLL_TOKEN environment variable
// 4. Default token file under /var/lib/oneshield-agent
//
// Reading from a file keeps the token out of `ps` output.
func resolveToken(tokenFlag, tokenFileFlag, envToken string) string {
	return resolveTokenInternal(tokenFlag, tokenFileFlag, envToken, os.ReadFile)
}

func resolveTokenInternal(tokenFlag, tokenFileFlag, envToken string, readFile func(string) ([]byte, error)) string {
	if t := strings.TrimSpace(tokenFlag); t != "" {
		return t
	}
	if tokenFileFlag != "" {
		if content, err := readFile(tokenFileFlag); err == nil {
			if t := strings.TrimSpace(string(content)); t != "" {
				return t
			}
		}
	}
	if t := strings.TrimSpace(envToken); t != "" {
		return t
	}
	if content, err := readFile(defaultStateDir + "/token"); err == nil {
		if t := strings.TrimSpace(string(content)); t != "" {
			return t
		}
	}
	return ""
}
