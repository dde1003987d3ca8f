package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		RollbarToken     string
		SendgridAPIKey   string
		defaultFromEmail string

		Portal      PortalConfig
		Backend     BackendConfig
		Credentials CredentialsConfig
		Database    DatabaseConfig
		Google      OAuthConfig
	}

	PortalConfig struct {
		Address         string
		BaseURL         string
		DisableReqLogs  bool
		ShutdownTimeout time.Duration
	}

	BackendConfig struct {
		Address            string
		URL                string
		APIKey             string
		JWTExpirationDelta time.Duration
		OAuthStateDelta    time.Duration
		DisableReqLogs     bool
		ShutdownTimeout    time.Duration
		RequestTimeout     time.Duration
	}

	CredentialsConfig struct {
		Driver        string // bolt (default), redis, memory
		Path          string
		RedisAddress  string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
	}

	DatabaseConfig struct {
		Engine     string // postgres (default), inmem
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	OAuthConfig struct {
		ClientID     string
		ClientSecret string
	}
)

// NewConfig loads the configuration from (in order of precedence) environment variables,
// the optional `config/.env.<env>` file and the defaults below.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("APP_NAME", "EduWeave")
	v.SetDefault("BUILD", "develop")
	v.SetDefault("DEBUG", env == "DEV")
	v.SetDefault("TEST_MODE", env == "TEST")
	v.SetDefault("SECRET_KEY", "k3#9mzq!v0x@t8fq)2b^ew4u&yd$cn7lh+s*rj6p5a1o=gi-")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("DEFAULT_FROM_EMAIL", "EduWeave <noreply@localhost>")

	v.SetDefault("PORTAL_ADDRESS", ":8000")
	v.SetDefault("PORTAL_BASE_URL", "http://localhost:8000")
	v.SetDefault("PORTAL_DISABLE_REQ_LOGS", false)
	v.SetDefault("PORTAL_SHUTDOWN_TIMEOUT", 5*time.Second)

	v.SetDefault("BACKEND_ADDRESS", ":8001")
	v.SetDefault("BACKEND_URL", "http://localhost:8001")
	v.SetDefault("BACKEND_API_KEY", "")
	v.SetDefault("BACKEND_JWT_EXPIRATION_DELTA", 7*24*time.Hour)
	v.SetDefault("BACKEND_OAUTH_STATE_DELTA", 10*time.Minute)
	v.SetDefault("BACKEND_DISABLE_REQ_LOGS", false)
	v.SetDefault("BACKEND_SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("BACKEND_REQUEST_TIMEOUT", 10*time.Second)

	v.SetDefault("CREDENTIALS_DRIVER", "bolt")
	v.SetDefault("CREDENTIALS_PATH", "eduweave.db")
	v.SetDefault("CREDENTIALS_REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("CREDENTIALS_REDIS_PASSWORD", "")
	v.SetDefault("CREDENTIALS_REDIS_DB", 0)
	v.SetDefault("CREDENTIALS_REDIS_PREFIX", "eduweave:")

	v.SetDefault("DATABASE_ENGINE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "eduweave")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DISABLE_TLS", env == "DEV" || env == "TEST")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")

	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("APP_NAME"),
		Env:              env,
		Build:            v.GetString("BUILD"),
		Debug:            v.GetBool("DEBUG"),
		TestMode:         v.GetBool("TEST_MODE"),
		SecretKey:        v.GetString("SECRET_KEY"),
		WorkDir:          Getwd(),
		RollbarToken:     v.GetString("ROLLBAR_TOKEN"),
		SendgridAPIKey:   v.GetString("SENDGRID_API_KEY"),
		defaultFromEmail: v.GetString("DEFAULT_FROM_EMAIL"),
		Portal: PortalConfig{
			Address:         v.GetString("PORTAL_ADDRESS"),
			BaseURL:         strings.TrimRight(v.GetString("PORTAL_BASE_URL"), "/"),
			DisableReqLogs:  v.GetBool("PORTAL_DISABLE_REQ_LOGS"),
			ShutdownTimeout: v.GetDuration("PORTAL_SHUTDOWN_TIMEOUT"),
		},
		Backend: BackendConfig{
			Address:            v.GetString("BACKEND_ADDRESS"),
			URL:                strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
			APIKey:             v.GetString("BACKEND_API_KEY"),
			JWTExpirationDelta: v.GetDuration("BACKEND_JWT_EXPIRATION_DELTA"),
			OAuthStateDelta:    v.GetDuration("BACKEND_OAUTH_STATE_DELTA"),
			DisableReqLogs:     v.GetBool("BACKEND_DISABLE_REQ_LOGS"),
			ShutdownTimeout:    v.GetDuration("BACKEND_SHUTDOWN_TIMEOUT"),
			RequestTimeout:     v.GetDuration("BACKEND_REQUEST_TIMEOUT"),
		},
		Credentials: CredentialsConfig{
			Driver:        strings.ToLower(v.GetString("CREDENTIALS_DRIVER")),
			Path:          v.GetString("CREDENTIALS_PATH"),
			RedisAddress:  v.GetString("CREDENTIALS_REDIS_ADDRESS"),
			RedisPassword: v.GetString("CREDENTIALS_REDIS_PASSWORD"),
			RedisDB:       v.GetInt("CREDENTIALS_REDIS_DB"),
			RedisPrefix:   v.GetString("CREDENTIALS_REDIS_PREFIX"),
		},
		Database: DatabaseConfig{
			Engine:     strings.ToLower(v.GetString("DATABASE_ENGINE")),
			Host:       v.GetString("DATABASE_HOST"),
			Port:       v.GetString("DATABASE_PORT"),
			Name:       v.GetString("DATABASE_NAME"),
			User:       v.GetString("DATABASE_USER"),
			Password:   v.GetString("DATABASE_PASSWORD"),
			DisableTLS: v.GetBool("DATABASE_DISABLE_TLS"),
		},
		Google: OAuthConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
	}
}

func (dbConf DatabaseConfig) Address() string {
	return dbConf.Host + ":" + dbConf.Port
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}
