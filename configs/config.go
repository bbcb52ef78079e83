package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
	} `koanf:"redis"`

	Dedup struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"dedup"`

	Rabbit struct {
		URL string `koanf:"url"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers       []string `koanf:"brokers"`
		PaymentsTopic string   `koanf:"payments_topic"`
		GroupID       string   `koanf:"group_id"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string        `koanf:"jwt_secret"`
		Issuer    string        `koanf:"issuer"`
		Audience  string        `koanf:"audience"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"security"`

	Smartbill struct {
		Enabled      bool   `koanf:"enabled"`
		BaseURL      string `koanf:"base_url"`
		Username     string `koanf:"username"`
		Token        string `koanf:"token"`
		CompanyTaxID string `koanf:"company_tax_id"`
		Series       string `koanf:"series"`
	} `koanf:"smartbill"`

	Sameday struct {
		BaseURL      string        `koanf:"base_url"`
		Username     string        `koanf:"username"`
		Password     string        `koanf:"password"`
		AuthCooldown time.Duration `koanf:"auth_cooldown"`
		PickupPoint  string        `koanf:"pickup_point"`
	} `koanf:"sameday"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env overlay (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix KITCHENOFF_, nested with __)
	// e.g. KITCHENOFF_SMARTBILL__TOKEN, KITCHENOFF_MYSQL__DSN
	if err := k.Load(env.Provider("KITCHENOFF_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "KITCHENOFF_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn required")
	}
	if c.Smartbill.Enabled {
		if c.Smartbill.Username == "" || c.Smartbill.Token == "" {
			return fmt.Errorf("smartbill.username and smartbill.token required when smartbill.enabled")
		}
		if c.Smartbill.CompanyTaxID == "" || c.Smartbill.Series == "" {
			return fmt.Errorf("smartbill.company_tax_id and smartbill.series required when smartbill.enabled")
		}
	}
	return nil
}
