package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/app"
	"github.com/snehith2024/Wallify/internal/auth"
	"github.com/snehith2024/Wallify/internal/backend"
	"github.com/snehith2024/Wallify/internal/backend/objectstore"
	"github.com/snehith2024/Wallify/internal/backend/sqlitestore"
	"github.com/snehith2024/Wallify/internal/config"
	"github.com/snehith2024/Wallify/internal/database"
	"github.com/snehith2024/Wallify/internal/identity"
	"github.com/snehith2024/Wallify/internal/logging"
	"github.com/snehith2024/Wallify/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wallify",
		Short: "Wallify wallpaper gallery service",
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
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Blob storage driver (file, minio)")
	cmd.PersistentFlags().String("files-dir", defaults.GetString("storage.files_dir"), "Directory for the file storage driver")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "storage.files_dir", "files-dir")
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

	if err := database.SeedAccounts(db, seedAccounts(appConfig), logger); err != nil {
		return err
	}

	recordStore, err := sqlitestore.New(sqlitestore.Config{
		Database:   db,
		Clock:      time.Now,
		IDProvider: sqlitestore.NewUUIDProvider(),
		Logger:     logger.Named("store"),
	})
	if err != nil {
		return err
	}

	blobStore, filesDir, err := buildBlobStore(appConfig.Storage)
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        appConfig.AuthTokenIssuer,
		Audience:      appConfig.AuthTokenAud,
		TokenTTL:      time.Duration(appConfig.AuthTokenTTLMins) * time.Minute,
	})
	if err != nil {
		return err
	}

	var googleVerifier identity.GoogleTokenVerifier
	if appConfig.GoogleClientID != "" {
		verifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
			Audience: appConfig.GoogleClientID,
			JWKSURL:  appConfig.GoogleJWKSURL,
			Logger:   logger.Named("google"),
		})
		if err != nil {
			return err
		}
		googleVerifier = verifier
	}

	identityProvider, err := identity.NewProvider(identity.Config{
		Credentials: recordStore,
		Tokens:      tokenIssuer,
		Google:      googleVerifier,
		Logger:      logger.Named("identity"),
	})
	if err != nil {
		return err
	}

	application, err := app.New(app.Config{
		Records:  recordStore,
		Blobs:    blobStore,
		Identity: identityProvider,
		Clock:    time.Now,
		Logger:   logger.Named("app"),
	})
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if err := application.Start(runCtx); err != nil {
		return err
	}
	defer application.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		App:      application,
		Tokens:   identityProvider,
		Records:  recordStore,
		Logger:   logger.Named("http"),
		FilesDir: filesDir,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
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

func buildBlobStore(cfg config.StorageConfig) (backend.BlobStore, string, error) {
	switch cfg.Driver {
	case config.StorageDriverMinio:
		store, err := objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:      cfg.Endpoint,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Bucket:        cfg.Bucket,
			UseSSL:        cfg.UseSSL,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		store, err := objectstore.NewFileStore(cfg.FilesDir, cfg.FilesBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	}
}

func seedAccounts(cfg config.AppConfig) []database.SeedAccount {
	return []database.SeedAccount{
		{
			ID:       uuid.NewString(),
			Email:    "admin@wallify.app",
			Password: cfg.SeedAdminPass,
			IsAdmin:  true,
		},
		{
			ID:       uuid.NewString(),
			Email:    "demo@wallify.app",
			Password: cfg.SeedDemoPass,
		},
	}
}
