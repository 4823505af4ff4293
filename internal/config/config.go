package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=admin,moderator"`
		LogLevel         int      `env:"LOG_LEVEL,default=2"`
		DotPath          string   `env:"DOT_PATH,default=~/.gwbot"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		Moderation       Moderation
	}

	Moderation struct {
		SpamSensitivity int `env:"SPAM_SENSITIVITY,default=5"`
		MaxWarnings     int `env:"MAX_WARNINGS,default=3"`

		MuteDuration         time.Duration `env:"MUTE_DURATION,default=30m"`
		BanDuration          time.Duration `env:"BAN_DURATION,default=24h"`
		FallbackMuteDuration time.Duration `env:"FALLBACK_MUTE_DURATION,default=24h"`

		SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1m"`
		Verbose       bool          `env:"MODERATION_VERBOSE,default=false"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GW_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
