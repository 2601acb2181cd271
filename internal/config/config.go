package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string // archive exports

	AuthHMACSecret string
	TokenTTL       time.Duration
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOrigins []string
	// TrustedProxies lists the peers whose X-Forwarded-For / X-Real-IP
	// headers are believed. Empty means the socket address is always used.
	TrustedProxies []netip.Prefix

	ArchiveDays         int
	ArchiveHour         int
	HeartbeatInterval   time.Duration
	ExpireSweepInterval time.Duration // 0 disables the sweep

	LogLevel  string
	LogFormat string // text|json
}

func defaults(v *viper.Viper) {
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("BLOB_BASE_PATH", "./data")
	v.SetDefault("AUTH_HMAC_SECRET", "dev-secret-change-me")
	v.SetDefault("TOKEN_TTL_SECONDS", 8*3600)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("ARCHIVE_DAYS", 30)
	v.SetDefault("ARCHIVE_HOUR", 2)
	v.SetDefault("HEARTBEAT_INTERVAL", 300)
	v.SetDefault("EXPIRE_SWEEP_INTERVAL", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRUSTED_PROXIES", "")
}

// FromEnv reads configuration from the environment, after loading ./.env
// when present. It panics on invalid values; use Load to handle errors.
func FromEnv() Config {
	c, err := Load(".env")
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads configuration from the environment. dotEnv, if it exists, is
// loaded first without overriding variables already set.
func Load(dotEnv string) (Config, error) {
	if dotEnv != "" {
		if _, err := os.Stat(dotEnv); err == nil {
			if err := godotenv.Load(dotEnv); err != nil {
				return Config{}, fmt.Errorf("config: load %s: %w", dotEnv, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat %s: %w", dotEnv, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()

	mode := Mode(strings.ToLower(v.GetString("MODE")))
	cors := "http://localhost:3000,http://localhost:3010"
	logFormat := "text"
	if mode == ModeOnline {
		cors = ""
		logFormat = "json"
	}
	v.SetDefault("CORS_ORIGINS", cors)
	v.SetDefault("LOG_FORMAT", logFormat)

	c := Config{
		Mode:                mode,
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		DBDriver:            v.GetString("DB_DRIVER"),
		DBDSN:               v.GetString("DB_DSN"),
		BlobBasePath:        v.GetString("BLOB_BASE_PATH"),
		AuthHMACSecret:      v.GetString("AUTH_HMAC_SECRET"),
		TokenTTL:            time.Duration(v.GetInt("TOKEN_TTL_SECONDS")) * time.Second,
		AdminUser:           v.GetString("ADMIN_USER"),
		AdminPassHash:       v.GetString("ADMIN_PASS_HASH"),
		CORSOrigins:         csv(v.GetString("CORS_ORIGINS")),
		ArchiveDays:         v.GetInt("ARCHIVE_DAYS"),
		ArchiveHour:         v.GetInt("ARCHIVE_HOUR"),
		HeartbeatInterval:   time.Duration(v.GetInt("HEARTBEAT_INTERVAL")) * time.Second,
		ExpireSweepInterval: time.Duration(v.GetInt("EXPIRE_SWEEP_INTERVAL")) * time.Second,
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	proxies, err := prefixes(csv(v.GetString("TRUSTED_PROXIES")))
	if err != nil {
		return c, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}
	c.TrustedProxies = proxies
	return c, c.Validate()
}

// prefixes parses CIDRs; a bare address is taken as a single-host prefix.
func prefixes(vals []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range vals {
		if p, err := netip.ParsePrefix(v); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("%q is neither an address nor a CIDR", v)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		errs = append(errs, fmt.Errorf("MODE %q: want offline or online", c.Mode))
	}
	if c.ArchiveDays < 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_DAYS %d: must not be negative", c.ArchiveDays))
	}
	if c.ArchiveHour < 0 || c.ArchiveHour > 23 {
		errs = append(errs, fmt.Errorf("ARCHIVE_HOUR %d: want 0-23", c.ArchiveHour))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}
	if c.ExpireSweepInterval < 0 {
		errs = append(errs, errors.New("EXPIRE_SWEEP_INTERVAL must not be negative"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_SECONDS must be positive"))
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "dev-secret-change-me" {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET must be set in online mode"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
