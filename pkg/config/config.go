package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Session struct {
		Name   string `mapstructure:"NAME"`
		Secret string `mapstructure:"SECRET"`
	} `mapstructure:"SESSION"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Gateway GatewayConfig `mapstructure:"GATEWAY"`
}

// GatewayConfig holds everything the edge router, resolver cache and admin
// guard need at request time.
type GatewayConfig struct {
	// ResolverSecret authenticates the infrastructure-only domain resolution
	// endpoint (x-domain-resolver-token header).
	ResolverSecret string `mapstructure:"RESOLVER_SECRET"`
	// PrimaryHosts are hostnames served directly, never rewritten to a
	// tenant route.
	PrimaryHosts []string `mapstructure:"PRIMARY_HOSTS"`
	// TenantBasePath is the route prefix tenant traffic is rewritten under.
	TenantBasePath string        `mapstructure:"TENANT_BASE_PATH"`
	PositiveTTL    time.Duration `mapstructure:"POSITIVE_TTL"`
	NegativeTTL    time.Duration `mapstructure:"NEGATIVE_TTL"`
	AdminEnabled   bool          `mapstructure:"ADMIN_ENABLED"`
	AdminBasePath  string        `mapstructure:"ADMIN_BASE_PATH"`
	AdminLoginPath string        `mapstructure:"ADMIN_LOGIN_PATH"`
	// BootstrapAdminEmails grants platform-admin to these accounts even
	// before any admin claim exists in their session.
	BootstrapAdminEmails []string `mapstructure:"BOOTSTRAP_ADMIN_EMAILS"`
	DNS                  struct {
		// Resolver is the DNS-over-HTTPS endpoint TXT queries are sent to.
		Resolver     string        `mapstructure:"RESOLVER"`
		Timeout      time.Duration `mapstructure:"TIMEOUT"`
		RecordPrefix string        `mapstructure:"RECORD_PREFIX"`
	} `mapstructure:"DNS"`
}

// Normalize fills defaults for optional gateway settings.
func (g *GatewayConfig) Normalize() {
	if g.TenantBasePath == "" {
		g.TenantBasePath = "/portal"
	}
	if g.PositiveTTL <= 0 {
		g.PositiveTTL = 60 * time.Second
	}
	if g.NegativeTTL <= 0 {
		g.NegativeTTL = 10 * time.Second
	}
	if g.AdminBasePath == "" {
		g.AdminBasePath = "/admin"
	}
	if g.AdminLoginPath == "" {
		g.AdminLoginPath = g.AdminBasePath + "/login"
	}
	if g.DNS.Resolver == "" {
		g.DNS.Resolver = "https://cloudflare-dns.com/dns-query"
	}
	if g.DNS.Timeout <= 0 {
		g.DNS.Timeout = 8 * time.Second
	}
	if g.DNS.RecordPrefix == "" {
		g.DNS.RecordPrefix = "_verify"
	}
}

// IsPrimaryHost reports whether the request host belongs to the platform
// itself and must bypass tenant resolution.
func (g *GatewayConfig) IsPrimaryHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, h := range g.PrimaryHosts {
		if strings.EqualFold(strings.TrimSuffix(h, "."), host) {
			return true
		}
	}
	return false
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	cfg.Gateway.Normalize()

	if p.Vault != nil {
		// START - Vault
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.Session.Secret = get("session_secret")
		cfg.Gateway.ResolverSecret = get("domain_resolver_secret")
		// END - Vault
	}

	return &cfg
}
