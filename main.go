package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"studentparent-server-go/auth"
	"studentparent-server-go/client"
	"studentparent-server-go/config"
	"studentparent-server-go/db"
	"studentparent-server-go/models"
)

var (
	// Global flags
	envFile string
	baseURL string
	verbose bool

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "studentparent",
	Short: "学生家长管理: APIJSON query server, JOLT transforms and demo client",
	Long: `studentparent serves the APIJSON-style query protocol over the Student and
Parent tables, the JOLT transform endpoints and the chart data flows.

The other commands are a client of a running server and replay the
demo page interactions from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		var err error
		cfg, err = config.Load(files...)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger = cfg.NewLogger()
		if baseURL == "" {
			baseURL = cfg.APIBaseURL
		}
		return nil
	},
}

var initDBCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the tables, the protocol configuration and the demo rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		logger.WithField("path", cfg.DBPath).Info("✅ 数据库初始化完成")
		return nil
	},
}

// openStore opens the database and runs Seed, including the admin account
// when ADMIN_PHONE is configured.
func openStore(ctx context.Context) (*db.Store, error) {
	store, err := db.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	opts := db.SeedOptions{DemoData: cfg.SeedData}
	if cfg.AdminPhone != "" {
		hash, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts.Admin = models.User{Phone: cfg.AdminPhone, Name: "管理员", PasswordHash: hash, Role: models.RoleAdmin}
	}
	if err := store.Seed(ctx, opts); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed database: %w", err)
	}
	return store, nil
}

// newClient returns a client of --url, logged in when --phone is given.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	c := client.New(baseURL, client.WithLogger(logger))
	phone, _ := cmd.Flags().GetString("phone")
	if phone == "" {
		return c, nil
	}
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}
	if err := c.Login(cmd.Context(), phone, password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "server base URL for client commands (default API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, cmd := range []*cobra.Command{importCmd, demoCmd} {
		cmd.Flags().String("phone", "", "login phone")
		cmd.Flags().String("password", "", "login password (default ADMIN_PASSWORD)")
	}

	rootCmd.AddCommand(serveCmd, initDBCmd, demoCmd, chartsCmd, transformCmd, importCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
