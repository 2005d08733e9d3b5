package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile     string
	AdminAddr  string
	APIAddr    string
	BaseURL    string
	AuthSecret string

	TokenExpiry time.Duration

	// Web push credentials. Push is disabled when the key pair is empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushContact     string
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:          getEnv("SIFAS_DB", "sifas.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		TokenExpiry:     tokenExpiry,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		PushContact:     getEnv("PUSH_CONTACT", "mailto:support@sifasheart.org"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID keys must be set together or not at all")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
