package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Values come from an optional
// YAML file with environment overrides; every OCR tunable that has drifted
// across pipeline generations (confidence floors in particular) lives here
// instead of in code.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DSN        string `mapstructure:"dsn"`
	JWTSecret  string `mapstructure:"jwt_secret"`

	OCR struct {
		TemplateDir string `mapstructure:"template_dir"`
		// ConfidenceFloor gates acceptance of a reading. The previous
		// pipeline generation shipped with 35; current default is 18.
		ConfidenceFloor float64       `mapstructure:"confidence_floor"`
		MatchThreshold  float64       `mapstructure:"match_threshold"`
		MinAnchors      int           `mapstructure:"min_anchors"`
		BandWidthFrac   float64       `mapstructure:"band_width_frac"`
		ROITimeout      time.Duration `mapstructure:"roi_timeout"`
		Workers         int           `mapstructure:"workers"`
	} `mapstructure:"ocr"`

	Mercy struct {
		Baseline int `mapstructure:"baseline"`
	} `mapstructure:"mercy"`

	Summary struct {
		PageSize int `mapstructure:"page_size"`
	} `mapstructure:"summary"`

	Cache struct {
		SizeMB int           `mapstructure:"size_mb"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Retry struct {
		MaxAttempts uint64        `mapstructure:"max_attempts"`
		BaseDelay   time.Duration `mapstructure:"base_delay"`
	} `mapstructure:"retry"`
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8081")
	v.SetDefault("ocr.template_dir", "assets/icons")
	v.SetDefault("ocr.confidence_floor", 18.0)
	v.SetDefault("ocr.match_threshold", 0.65)
	v.SetDefault("ocr.min_anchors", 3)
	v.SetDefault("ocr.band_width_frac", 0.5)
	v.SetDefault("ocr.roi_timeout", 10*time.Second)
	v.SetDefault("ocr.workers", 2)
	v.SetDefault("mercy.baseline", 0)
	v.SetDefault("summary.page_size", 10)
	v.SetDefault("cache.size_mb", 16)
	v.SetDefault("cache.ttl", 15*time.Minute)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", 200*time.Millisecond)

	_ = v.BindEnv("dsn", "DB_DSN")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("listen_addr", "LISTEN_ADDR")
	_ = v.BindEnv("ocr.template_dir", "OCR_TEMPLATE_DIR")
	_ = v.BindEnv("ocr.confidence_floor", "OCR_CONFIDENCE_FLOOR")
	_ = v.BindEnv("ocr.workers", "OCR_WORKERS")

	if path != "" {
		filename := filepath.Base(path)
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	if conf.JWTSecret == "" {
		conf.JWTSecret = "dev-insecure-secret-change" // development fallback
	}
	if conf.OCR.ConfidenceFloor <= 0 || conf.OCR.ConfidenceFloor > 100 {
		return nil, fmt.Errorf("ocr.confidence_floor out of range: %v", conf.OCR.ConfidenceFloor)
	}
	if conf.OCR.MinAnchors < 1 || conf.OCR.MinAnchors > 5 {
		return nil, fmt.Errorf("ocr.min_anchors out of range: %d", conf.OCR.MinAnchors)
	}
	return &conf, nil
}
