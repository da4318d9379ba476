// Package cli provides the command-line interface for the gateway.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"starmf-gateway/internal/config"
	"starmf-gateway/internal/exchange"
	"starmf-gateway/internal/jobs"
	"starmf-gateway/internal/logging"
	"starmf-gateway/internal/security"
	"starmf-gateway/internal/services"
	"starmf-gateway/internal/store"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Store         store.Store
	Client        exchange.Client
	Sessions      *exchange.SessionManager
	Credentials   *services.CredentialService
	Orders        *services.OrderService
	Payments      *services.PaymentService
	Registrations *services.RegistrationService
	Mandates      *services.MandateService
	Systematic    *services.SystematicService
	Masters       *services.MasterService
	Reports       *services.ReportService
	Uploads       *services.UploadService
	Runner        *jobs.Runner
	Scheduler     *jobs.Scheduler
}

// NewApp wires the full dependency graph from configuration. The execution
// mode decides the exchange client once, here; nothing downstream branches
// on it except the job runner's short-circuit.
func NewApp(cfg *config.Config, configDir string, logger zerolog.Logger) (*App, error) {
	dataStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	salt, err := security.LoadOrCreateSalt(configDir)
	if err != nil {
		dataStore.Close()
		return nil, fmt.Errorf("loading credential salt: %w", err)
	}
	masterKey := cfg.Security.MasterKey
	if masterKey == "" && cfg.IsMock() {
		// Mock mode has no real secrets to protect; a fixed key keeps the
		// credential flow exercisable without configuration.
		masterKey = "mock-development-master-key"
	}
	cipher, err := security.NewFieldCipher(masterKey, salt)
	if err != nil {
		dataStore.Close()
		return nil, fmt.Errorf("initializing credential cipher: %w", err)
	}

	var client exchange.Client
	if cfg.IsMock() {
		client = exchange.NewMockClient(logger)
		logger.Info().Msg("Running against mock exchange")
	} else {
		client = exchange.NewClient(cfg.Exchange, logger)
	}

	creds := services.NewCredentialService(dataStore, cipher, logger)
	sessions := exchange.NewSessionManager(client, creds, dataStore, logger)
	creds.AttachSessions(sessions)

	refnums := exchange.NewRefNumGenerator()

	app := &App{
		Config:        cfg,
		Logger:        logger,
		Store:         dataStore,
		Client:        client,
		Sessions:      sessions,
		Credentials:   creds,
		Orders:        services.NewOrderService(dataStore, client, sessions, creds, refnums, logger),
		Payments:      services.NewPaymentService(dataStore, client, sessions, creds, logger),
		Registrations: services.NewRegistrationService(dataStore, client, sessions, creds, logger),
		Mandates:      services.NewMandateService(dataStore, client, sessions, creds, logger),
		Systematic:    services.NewSystematicService(dataStore, client, sessions, creds, refnums, logger),
		Masters:       services.NewMasterService(dataStore, client, sessions, creds, logger),
		Uploads:       services.NewUploadService(client, sessions, creds, logger),
	}
	app.Reports = services.NewReportService(dataStore, client, sessions, creds, logger)
	app.Runner = jobs.NewRunner(dataStore, sessions, app.Reports, app.Mandates, app.Masters,
		cfg.Jobs, cfg.IsMock(), logger)
	app.Scheduler = jobs.NewScheduler(logger)
	app.Runner.Register(app.Scheduler)

	return app, nil
}

// Close releases the application's resources.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:          "starmf-gateway",
		Short:        "BSE StAR MF integration gateway",
		Long:         "Gateway between the wealth platform and the BSE StAR MF exchange: orders, payments, mandates, systematic plans and reconciliation.",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.config/starmf-gateway)")

	newApp := func() (*App, error) {
		dir := configDir
		if dir == "" {
			dir = config.DefaultConfigDir()
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return nil, err
		}
		logger := logging.NewLogger()
		return NewApp(cfg, dir, logger)
	}

	addServeCommand(rootCmd, newApp)
	addJobsCommands(rootCmd, newApp)
	addCredentialCommands(rootCmd, newApp)
	addSchemeCommands(rootCmd, newApp)
	addClientCommands(rootCmd, newApp)
	addUploadCommand(rootCmd, newApp)

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
