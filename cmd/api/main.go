package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"formgate/core"
)

var rootCmd = &cobra.Command{
	Use:   "formgate",
	Short: "Form login and role-based URL authorization gate",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for the security file",
	Long:  "Print a bcrypt hash for the security file. Without an argument the password is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashPassword,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and the security file",
	RunE:  runValidate,
}

var (
	configFilePath string
	hashCost       int
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd, hashPasswordCmd, configCmd)

	// default to serve
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := core.Load(configFilePath)
	if err != nil {
		return err
	}

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("instance", core.NewInstanceID("api")))

	if cfg.UsesDefaultSessionKey() {
		logger.Warn("session_key is the built-in placeholder; set FORMGATE_SESSION_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sec, err := core.LoadSecurity(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load security configuration: %w", err)
	}
	credentials, err := core.NewMemoryCredentialStore(sec.Principals, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to seed credentials: %w", err)
	}
	logger.Info("security configuration loaded",
		zap.Int("principals", credentials.Len()),
		zap.Int("rules", len(sec.Policy.Rules())),
		zap.Stringer("fallback", sec.Policy.Fallback()))

	ids, err := core.NewSessionIDs([]byte(cfg.SessionIDKey))
	if err != nil {
		return err
	}
	if cfg.SessionIDKey == "" && cfg.SessionBackend != core.BackendMemory {
		logger.Warn("session_id_key is empty; sessions will not survive a restart or be shared between instances")
	}

	registry, registryCloser, err := core.OpenSessionRegistry(ctx, cfg, ids, logger)
	if err != nil {
		return err
	}
	defer registryCloser.Close()

	// signed cookie carrying only the session id
	cookies := sessions.NewCookieStore([]byte(cfg.SessionKey))

	views, err := core.NewHTMLViews()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	gate, err := core.NewGate(sec.Policy, registry, core.NewStoreAuthenticator(credentials), cookies, views, core.GateOptionsFromConfig(cfg), logger)
	if err != nil {
		return err
	}
	router := core.NewRouter(cfg, gate, views, credentials.Len(), logger)

	supervisor := suture.NewSimple("formgate")
	supervisor.Add(core.NewHTTPService("api", ":"+cfg.Port, router, logger))
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		supervisor.Add(core.NewHTTPService("metrics", cfg.MetricsAddr, mux, logger))
	}
	if expirer, ok := registry.(core.SessionExpirer); ok && cfg.SessionTTL > 0 {
		supervisor.Add(core.NewSessionSweeper(expirer, cfg.SessionTTL, cfg.SweepInterval, logger))
	}

	logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("session_backend", cfg.SessionBackend))
	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := core.Load(configFilePath)
	if err != nil {
		return err
	}
	sec, err := core.LoadSecurity(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	if _, err := core.NewMemoryCredentialStore(sec.Principals, bcrypt.MinCost); err != nil {
		return err
	}
	if d := sec.Policy.Decide(cfg.LoginPath, nil); d != core.Permit {
		return fmt.Errorf("login path %s must be public, policy says %s", cfg.LoginPath, d)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "configuration is valid")
	fmt.Fprintf(out, "  session backend: %s\n", cfg.SessionBackend)
	fmt.Fprintf(out, "  principals:      %d\n", len(sec.Principals))
	fmt.Fprintf(out, "  fallback:        %s\n", sec.Policy.Fallback())
	for _, r := range sec.Policy.Rules() {
		fmt.Fprintf(out, "  %-20s %s\n", r.Pattern, r.Requirement)
	}
	return nil
}
