package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"deltaHedge/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	Wallet          string
	PositionManager string
	PGDSN           string
	Listen          string
	Password        string
	StaticDir       string
	Out             string
	LogLevel        string
	RPCRPS          float64
	RPCBurst        int
	MaxRetries      int
	RetryBackoff    time.Duration
	PriceWorkers    int
	ShutdownTimeout time.Duration
	Pairs           []model.Pair
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DELTAHEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":3000")
	v.SetDefault("log-level", "info")
	v.SetDefault("rpc-rps", 10.0)
	v.SetDefault("rpc-burst", 5)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 250*time.Millisecond)
	v.SetDefault("price-workers", 4)
	v.SetDefault("shutdown-timeout", 10*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	pairs, err := decodePairs(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		Wallet:          v.GetString("wallet"),
		PositionManager: v.GetString("position-manager"),
		PGDSN:           v.GetString("pg-dsn"),
		Listen:          v.GetString("listen"),
		Password:        v.GetString("password"),
		StaticDir:       v.GetString("static-dir"),
		Out:             v.GetString("out"),
		LogLevel:        v.GetString("log-level"),
		RPCRPS:          v.GetFloat64("rpc-rps"),
		RPCBurst:        v.GetInt("rpc-burst"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		PriceWorkers:    v.GetInt("price-workers"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Pairs:           pairs,
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("max-retries must not be negative")
	}
	if cfg.RPCRPS < 0 {
		return Config{}, fmt.Errorf("rpc-rps must not be negative")
	}
	return cfg, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case []string:
		return parseStringMap(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return parseStringMap(items)
	case string:
		return parseStringMap(strings.Split(typed, ","))
	default:
		return map[string]string{}
	}
}

// parseStringMap reads KEY=VALUE items. Keys may themselves contain '/', so
// the split happens at the last '='.
func parseStringMap(items []string) map[string]string {
	out := make(map[string]string)
	for _, item := range items {
		idx := strings.LastIndex(item, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(item[:idx])
		value := strings.TrimSpace(item[idx+1:])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
