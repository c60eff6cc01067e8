package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "WALLIFY"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "wallify.db"
	defaultLogLevel     = "info"
	defaultTokenTTL     = 720
	defaultTokenIssuer  = "wallify-auth"
	defaultAudience     = "wallify-api"
	defaultStorage      = StorageDriverFile
	defaultFilesDir     = "wallify-files"
	defaultFilesBaseURL = "/files"
	defaultGoogleJWKS   = "https://www.googleapis.com/oauth2/v3/certs"
)

// Storage driver identifiers accepted by storage.driver.
const (
	StorageDriverFile  = "file"
	StorageDriverMinio = "minio"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	AuthSigningKey   string
	AuthTokenIssuer  string
	AuthTokenAud     string
	AuthTokenTTLMins int
	GoogleClientID   string
	GoogleJWKSURL    string
	Storage          StorageConfig
	SeedAdminPass    string
	SeedDemoPass     string
}

// StorageConfig selects and parameterizes the blob storage backend.
type StorageConfig struct {
	Driver        string
	FilesDir      string
	FilesBaseURL  string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKS)
	configViper.SetDefault("storage.driver", defaultStorage)
	configViper.SetDefault("storage.files_dir", defaultFilesDir)
	configViper.SetDefault("storage.files_base_url", defaultFilesBaseURL)
	configViper.SetDefault("storage.use_ssl", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		AuthSigningKey:   configViper.GetString("auth.signing_secret"),
		AuthTokenIssuer:  configViper.GetString("auth.token_issuer"),
		AuthTokenAud:     configViper.GetString("auth.token_audience"),
		AuthTokenTTLMins: configViper.GetInt("auth.token_ttl_minutes"),
		GoogleClientID:   configViper.GetString("google.client_id"),
		GoogleJWKSURL:    configViper.GetString("google.jwks_url"),
		Storage: StorageConfig{
			Driver:        configViper.GetString("storage.driver"),
			FilesDir:      configViper.GetString("storage.files_dir"),
			FilesBaseURL:  configViper.GetString("storage.files_base_url"),
			Endpoint:      configViper.GetString("storage.endpoint"),
			AccessKey:     configViper.GetString("storage.access_key"),
			SecretKey:     configViper.GetString("storage.secret_key"),
			Bucket:        configViper.GetString("storage.bucket"),
			UseSSL:        configViper.GetBool("storage.use_ssl"),
			PublicBaseURL: configViper.GetString("storage.public_base_url"),
		},
		SeedAdminPass: configViper.GetString("seed.admin_password"),
		SeedDemoPass:  configViper.GetString("seed.demo_password"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AuthTokenTTLMins <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.Storage.Driver {
	case StorageDriverFile:
		if strings.TrimSpace(c.Storage.FilesDir) == "" {
			return fmt.Errorf("storage.files_dir is required for the file driver")
		}
	case StorageDriverMinio:
		if strings.TrimSpace(c.Storage.Endpoint) == "" {
			return fmt.Errorf("storage.endpoint is required for the minio driver")
		}
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for the minio driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	return nil
}
