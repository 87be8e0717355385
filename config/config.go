package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	SqlitePath     string `env:"SQLITE_PATH" envDefault:"itemwatch.sqlite"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Catalog struct {
		APIURL          string `env:"CATALOG_API_URL"`
		ItemPageURL     string `env:"CATALOG_ITEM_PAGE_URL" envDefault:"https://steamcommunity.com/sharedfiles/filedetails/?id=%d"`
		FetchPermits    int64  `env:"CATALOG_FETCH_PERMITS" envDefault:"3"`
		TimeoutSecs     int    `env:"CATALOG_TIMEOUT_SECS" envDefault:"20"`
		BootstrapWindow int    `env:"BOOTSTRAP_WINDOW_MINS" envDefault:"30"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default outside production)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) BootstrapStagger() time.Duration {
	return time.Duration(cfg.Catalog.BootstrapWindow) * time.Minute
}

func (cfg *Config) ItemPageURL(itemID uint64) string {
	return fmt.Sprintf(cfg.Catalog.ItemPageURL, itemID)
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
