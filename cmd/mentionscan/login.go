package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Environment variables consulted for non-interactive authentication.
const (
	envUsername = "MENTIONSCAN_USERNAME"
	envPassword = "MENTIONSCAN_PASSWORD"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the analytics session",
		Long: `Login authenticates against the analytics service and stores the
resulting session locally. Report runs reuse the stored session until
it expires or is rejected, at which point they log in again on their
own if credentials are available in the environment.

Credentials come from the MENTIONSCAN_USERNAME and MENTIONSCAN_PASSWORD
environment variables when set, and are prompted for otherwise. The
password is never accepted as a flag so it cannot leak into shell
history or the process list.

Examples:
  # Log in interactively
  mentionscan login --endpoint https://analytics.example.com

  # Log in with credentials from the environment
  MENTIONSCAN_USERNAME=reporter MENTIONSCAN_PASSWORD=... mentionscan login

  # Use the endpoint from a configuration file
  mentionscan login -c .mentionscan.yaml`,
		Args: cobra.NoArgs,
		RunE: runLoginCmd,
	}

	cmd.Flags().StringP("endpoint", "e", "",
		"Analytics service base URL (e.g. https://analytics.example.com)")
	cmd.Flags().StringP("username", "u", "",
		"Account name (default: MENTIONSCAN_USERNAME or interactive prompt)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .mentionscan.yaml in current or home directory)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"HTTP timeout for the login request")
	cmd.Flags().StringP("proxy", "p", "",
		"SOCKS5 proxy address for API traffic (e.g. 127.0.0.1:1080)")

	return cmd
}

// runLoginCmd executes the login command.
func runLoginCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildLoginConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		return errors.New("no endpoint configured (use --endpoint or set endpoint in the config file)")
	}

	verbose := getVerboseFlag(cmd)
	logger := setupLogger(verbose)
	slog.SetDefault(logger)

	usernameFlag, err := cmd.Flags().GetString("username")
	if err != nil {
		return err
	}

	username, password, err := collectCredentials(usernameFlag, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	client, err := newAnalyticsClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reachability check before asking for a session. A wrong endpoint
	// fails here with a clearer message than a login error would give.
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("analytics service is not reachable at %s: %w", cfg.Endpoint, err)
	}

	store := session.DefaultStore()
	manager := session.NewManager(store, client,
		session.WithCredentials(func(context.Context) (string, string, error) {
			return username, password, nil
		}),
		session.WithManagerLogger(logger),
	)

	sess, err := manager.Login(ctx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (session %s)\n", username, sess.Fingerprint())
	fmt.Fprintf(cmd.OutOrStdout(), "Session stored at %s\n", store.Path())
	return nil
}

// buildLoginConfig creates a Config from the configuration file and the
// login command flags.
func buildLoginConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if err := applyConfigFile(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		if cfg.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// credentialsFromEnv supplies login credentials from the environment.
// It backs automatic re-login when a stored session expires or is
// rejected mid-run.
func credentialsFromEnv(_ context.Context) (string, string, error) {
	username := os.Getenv(envUsername)
	password := os.Getenv(envPassword)
	if username == "" || password == "" {
		return "", "", session.ErrNoCredentials
	}
	return username, password, nil
}

// collectCredentials gathers the login credentials. Order: explicit
// username flag, environment variables, interactive prompt. The
// password is read without echo when stdin is a terminal.
func collectCredentials(usernameFlag string, in io.Reader, out io.Writer) (string, string, error) {
	username := usernameFlag
	if username == "" {
		username = os.Getenv(envUsername)
	}
	password := os.Getenv(envPassword)

	reader := bufio.NewReader(in)

	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return "", "", errors.New("username must not be empty")
	}

	if password == "" {
		fmt.Fprint(out, "Password: ")
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			raw, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = string(raw)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", "", fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimSpace(line)
		}
	}
	if password == "" {
		return "", "", errors.New("password must not be empty")
	}

	return username, password, nil
}
