package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Backend BackendConfig `mapstructure:"backend"`
	Binance BinanceConfig `mapstructure:"binance"`
	Market  MarketConfig  `mapstructure:"market"`
	Chart   ChartConfig   `mapstructure:"chart"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// BackendConfig points at the backtest engine. An empty base URL means no
// engine is available and candles come straight from the exchange source.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BinanceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MarketConfig struct {
	DefaultExchange string `mapstructure:"default_exchange"`
	// CoalesceFetches collapses concurrent identical in-flight candle
	// fetches into one network call instead of letting each caller fetch
	// independently.
	CoalesceFetches bool `mapstructure:"coalesce_fetches"`
}

type ChartConfig struct {
	WidthPx   int `mapstructure:"width_px"`
	EMAPeriod int `mapstructure:"ema_period"`
}

// Load reads a YAML config file, following its optional `include` list
// first, then applies defaults and validates.
func Load(path string) (*Config, error) {
	files, err := resolveIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a runnable configuration without any file present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9980"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 15
	}
	if c.Binance.TimeoutSeconds <= 0 {
		c.Binance.TimeoutSeconds = 15
	}
	if c.Market.DefaultExchange == "" {
		c.Market.DefaultExchange = "binance"
	}
	if c.Chart.WidthPx <= 0 {
		c.Chart.WidthPx = 1600
	}
	if c.Chart.EMAPeriod < 0 {
		c.Chart.EMAPeriod = 0
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

func resolveIncludes(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	includes, err := parseIncludeList(abs)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(includes)+1)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		files = append(files, filepath.Clean(inc))
	}
	// The including file merges last so its settings win.
	return append(files, abs), nil
}

func parseIncludeList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var peek struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("parsing include list in %s: %w", path, err)
	}
	return peek.Include, nil
}
