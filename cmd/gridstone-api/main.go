package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/auth"
	"github.com/gridstonehq/gridstone/backend/internal/config"
	"github.com/gridstonehq/gridstone/backend/internal/database"
	"github.com/gridstonehq/gridstone/backend/internal/logging"
	"github.com/gridstonehq/gridstone/backend/internal/realtime"
	"github.com/gridstonehq/gridstone/backend/internal/records"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"github.com/gridstonehq/gridstone/backend/internal/server"
	"github.com/gridstonehq/gridstone/backend/internal/users"
	"github.com/gridstonehq/gridstone/backend/internal/views"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridstone-api",
		Short: "Gridstone tabular data backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("viewer-scope", defaults.GetString("records.viewer_scope"), "Record visibility for viewers (all, own)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "records.viewer_scope", "viewer-scope")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "gridstone-auth",
		Audience:      "gridstone-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	schemaService, err := schema.NewService(schema.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	accessService, err := access.NewService(access.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	broadcaster := realtime.NewBroadcaster(logger)
	defer broadcaster.Close()

	recordsService, err := records.NewService(records.ServiceConfig{
		Database:    db,
		Access:      accessService,
		Publisher:   broadcaster,
		Clock:       time.Now,
		Logger:      logger,
		ViewerScope: records.ViewerScope(appConfig.ViewerScope),
	})
	if err != nil {
		return err
	}

	viewsService, err := views.NewService(views.ServiceConfig{
		Database: db,
		Access:   accessService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenIssuer: tokenIssuer,
		Users:       usersService,
		Schema:      schemaService,
		Access:      accessService,
		Records:     recordsService,
		Views:       viewsService,
		Broadcaster: broadcaster,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
