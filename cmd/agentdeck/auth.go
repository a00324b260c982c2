package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Strob0t/AgentDeck/internal/adapter/memkv"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/port/broadcast"
	"github.com/Strob0t/AgentDeck/internal/port/notifier"
	"github.com/Strob0t/AgentDeck/internal/service"
)

// runAuth dispatches auth subcommands (signup, reset-password).
func runAuth(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAuthHelp()
		return nil
	}

	switch args[0] {
	case "signup":
		return runAuthSignUp(args[1:])
	case "reset-password":
		return runAuthResetPassword(args[1:])
	default:
		printAuthHelp()
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func printAuthHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentdeck auth <command> [options]

Commands:
  signup           Create an account with the identity provider
  reset-password   Send a password reset email
  help             Show this help message

Examples:
  agentdeck auth signup --email ops@example.com
  agentdeck auth signup --email ops@example.com --password 'N3w!Passw0rd'
  agentdeck auth reset-password --email ops@example.com
`)
}

// stderrNotifier prints toasts for the operator running the CLI.
type stderrNotifier struct{}

func (stderrNotifier) Name() string { return "stderr" }

func (stderrNotifier) Send(_ context.Context, n notifier.Notification) error {
	_, err := fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Message)
	return err
}

func loadAuthDeps(configPath string) (*service.AuthService, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Identity.Provider == "memory" {
		return nil, errors.New("auth commands need a remote identity provider; identity.provider is \"memory\"")
	}

	provider, probe, err := newIdentityProvider(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connectivity.ProbeTimeout)
	defer cancel()
	if !probe.Check(ctx) {
		return nil, fmt.Errorf("identity provider %s is unreachable", probe.Addr())
	}

	return service.NewAuthService(
		provider,
		probe,
		service.NewPreferences(memkv.New()),
		broadcast.Nop{},
		service.NewNotificationService(stderrNotifier{}),
		cfg.SignIn,
		cfg.Identity.SiteURL,
	), nil
}

func runAuthSignUp(args []string) error {
	fs := pflag.NewFlagSet("signup", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultConfigFile, "path to YAML config file")
	email := fs.String("email", "", "account email address (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	authSvc, err := loadAuthDeps(*configPath)
	if err != nil {
		return err
	}
	defer authSvc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u, sess, err := authSvc.SignUp(ctx, *email, pass)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}

	if sess == nil {
		fmt.Fprintf(os.Stderr, "Account created for %s (id=%s); confirm the email address before signing in\n", u.Email, u.ID)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Account created for %s (id=%s)\n", u.Email, u.ID)
	return nil
}

func runAuthResetPassword(args []string) error {
	fs := pflag.NewFlagSet("reset-password", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultConfigFile, "path to YAML config file")
	email := fs.String("email", "", "account email address (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	authSvc, err := loadAuthDeps(*configPath)
	if err != nil {
		return err
	}
	defer authSvc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := authSvc.ResetPassword(ctx, *email); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
