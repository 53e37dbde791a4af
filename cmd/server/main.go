package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/app"
	"github.com/soldierhq/helpergate/internal/config"
	"github.com/soldierhq/helpergate/internal/security"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdin, os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run dispatches the subcommand; serving is the default.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return runServe(ctx, args)
	case "migrate":
		return runMigrate(ctx, args)
	case "hash-admin-token":
		return runHashAdminToken(args, stdin, stdout)
	case "issue-session":
		return runIssueSession(args, stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runServe writes a default config on first start, then runs the server.
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", config.DefaultPort, "server port written to a freshly created config")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}

	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	if strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		created, errEnsure := app.EnsureDefaultConfig(configPath, *port)
		if errEnsure != nil {
			return errEnsure
		}
		if created {
			log.Infof("config.yaml not found, wrote defaults to %s", configPath)
		}
	}

	return app.RunServer(ctx, appCfg)
}

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	seed := fs.Bool("seed-settings", false, "copy configured rate limits into missing settings rows")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}
	if errMigrate := app.Migrate(ctx, appCfg, *seed); errMigrate != nil {
		return errMigrate
	}
	log.Info("migrations applied")
	return nil
}

// runHashAdminToken prints the bcrypt hash for admin.token-hash. The token is
// read from -token or the first line of stdin.
func runHashAdminToken(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-admin-token", flag.ContinueOnError)
	token := fs.String("token", "", "admin token to hash (reads stdin when empty)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	value := strings.TrimSpace(*token)
	if value == "" {
		line, errRead := bufio.NewReader(stdin).ReadString('\n')
		if errRead != nil && !errors.Is(errRead, io.EOF) {
			return fmt.Errorf("read token: %w", errRead)
		}
		value = strings.TrimSpace(line)
	}
	hash, errHash := security.HashAdminToken(value)
	if errHash != nil {
		return errHash
	}
	_, errWrite := fmt.Fprintln(stdout, hash)
	return errWrite
}

// runIssueSession prints a session token for a user, for local testing.
func runIssueSession(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("issue-session", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	userID := fs.String("user", "", "user id to sign the session for")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if strings.TrimSpace(*userID) == "" {
		return fmt.Errorf("missing -user")
	}
	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}
	jwtCfg, errJWT := config.LoadJWTConfig(config.ResolveConfigPath(appCfg.ConfigPath))
	if errJWT != nil {
		return errJWT
	}
	token, expiresAt, errIssue := security.NewSessionManager(jwtCfg.Secret, jwtCfg.Expiry).Issue(*userID)
	if errIssue != nil {
		return errIssue
	}
	_, errWrite := fmt.Fprintf(stdout, "%s\nexpires %s\n", token, expiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return errWrite
}

func loadAppConfig(flagPath string) (config.AppConfig, error) {
	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return config.AppConfig{}, err
	}
	if strings.TrimSpace(flagPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(flagPath)
	}
	return appCfg, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
