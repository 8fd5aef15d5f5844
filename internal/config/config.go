package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AnshRaj112/rehab-backend/pkg/utils"
)

type Config struct {
	PostgresURI      string
	RedisURI         string
	SessionStore     string // redis or memory
	EncryptionKey    string // base64, 32 bytes
	BlindIndexKey    string // base64, 32 bytes, must differ from EncryptionKey
	BcryptCost       int
	PasswordResetTTL time.Duration
	VideoTokenTTL    time.Duration
	Port             string
	FrontendURL      string
	AllowedOrigins   []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	PublicBaseURL    string   // Base of links sent to users (password reset)
	SMTPAddr         string   // host:port of the mail relay; required outside development
	SMTPFrom         string
	SMTPUsername     string
	SMTPPassword     string
	VideoDir         string
	TrustProxy       bool
	LogLevel         string
	Host             string // Raw HOST env (e.g. https://api.clinic.example)
	AllowedHost      string // Hostname only for strict host check (production only)
	Environment      string // ENV: production, staging, development, test
}

func Load() (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))
	host := getEnv("HOST", "http://localhost:8080")

	// AllowedHost is only set in production; host check is skipped elsewhere
	var allowedHost string
	if env == "production" {
		allowedHost = bareHost(host)
	}

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" && !containsOrigin(allowedOrigins, u) {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", strconv.Itoa(utils.DefaultBcryptCost)))
	if err != nil {
		return nil, fmt.Errorf("BCRYPT_COST: %w", err)
	}
	resetTTL, err := time.ParseDuration(getEnv("PASSWORD_RESET_TTL", "1h"))
	if err != nil || resetTTL <= 0 {
		return nil, fmt.Errorf("PASSWORD_RESET_TTL must be a positive duration, got %q", os.Getenv("PASSWORD_RESET_TTL"))
	}
	videoTTL, err := time.ParseDuration(getEnv("VIDEO_TOKEN_TTL", "1h"))
	if err != nil || videoTTL <= 0 {
		return nil, fmt.Errorf("VIDEO_TOKEN_TTL must be a positive duration, got %q", os.Getenv("VIDEO_TOKEN_TTL"))
	}
	sessionStore := strings.ToLower(getEnv("SESSION_STORE", "redis"))
	if sessionStore != "redis" && sessionStore != "memory" {
		return nil, fmt.Errorf("SESSION_STORE must be redis or memory, got %q", sessionStore)
	}

	frontendURL := getEnv("FRONTEND_URL", "http://localhost:3000")
	return &Config{
		PostgresURI:      getEnv("POSTGRES_URI", "postgres://localhost:5432/rehab?sslmode=disable"),
		RedisURI:         getEnv("REDIS_URI", "redis://localhost:6379/0"),
		SessionStore:     sessionStore,
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		BlindIndexKey:    getEnv("BLIND_INDEX_KEY", ""),
		BcryptCost:       cost,
		PasswordResetTTL: resetTTL,
		VideoTokenTTL:    videoTTL,
		Host:             host,
		AllowedHost:      allowedHost,
		Environment:      env,
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      frontendURL,
		AllowedOrigins:   allowedOrigins,
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", frontendURL),
		SMTPAddr:         strings.TrimSpace(getEnv("SMTP_ADDR", "")),
		SMTPFrom:         strings.TrimSpace(getEnv("SMTP_FROM", "")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		VideoDir:         getEnv("VIDEO_DIR", "./videos"),
		TrustProxy:       getEnv("TRUST_PROXY", "false") == "true",
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}, nil
}

// KeyMaterial parses the two PII keys. Outside development a missing or
// malformed key is an error the caller must treat as fatal. In development a
// missing pair is replaced by freshly generated keys and generated is true;
// data encrypted with them is unreadable after a restart.
func (c *Config) KeyMaterial() (km utils.KeyMaterial, generated bool, err error) {
	if c.EncryptionKey == "" && c.BlindIndexKey == "" && c.IsDevelopment() {
		km, err = utils.GenerateKeyMaterial()
		return km, err == nil, err
	}
	km, err = utils.ParseKeyMaterial(c.EncryptionKey, c.BlindIndexKey)
	if err != nil {
		return utils.KeyMaterial{}, false, err
	}
	return km, false, nil
}

func bareHost(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true for ENV development, dev or local.
func (c *Config) IsDevelopment() bool {
	switch c.Environment {
	case "development", "dev", "local":
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
