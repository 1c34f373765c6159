package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// IngestTuning bounds the ingestion pipeline. Values are hot-reloadable;
// defaults match the documented pipeline limits.
type IngestTuning struct {
	MaxBatchSize       int           `mapstructure:"maxBatchSize"`
	LoaderChunkSize    int           `mapstructure:"loaderChunkSize"`
	ValidationErrorCap int           `mapstructure:"validationErrorCap"`
	ResultErrorLimit   int           `mapstructure:"resultErrorLimit"`
	StuckLogMaxAge     time.Duration `mapstructure:"stuckLogMaxAge"`
	SweepInterval      time.Duration `mapstructure:"sweepInterval"`
	DedupLockTTL       time.Duration `mapstructure:"dedupLockTTL"`
}

func DefaultIngestTuning() IngestTuning {
	return IngestTuning{
		MaxBatchSize:       5000,
		LoaderChunkSize:    1000,
		ValidationErrorCap: 100,
		ResultErrorLimit:   10,
		StuckLogMaxAge:     30 * time.Minute,
		SweepInterval:      5 * time.Minute,
		DedupLockTTL:       2 * time.Minute,
	}
}

type TuningHolder struct {
	current atomic.Value // holds IngestTuning
}

func NewTuningHolder() (*TuningHolder, error) {
	v := viper.New()

	v.SetConfigName("ingest")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/voltora/config") // Volume-mounted config
	v.AddConfigPath("/etc/voltora")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("VOLTORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultIngestTuning()
	v.SetDefault("ingest.maxBatchSize", defaults.MaxBatchSize)
	v.SetDefault("ingest.loaderChunkSize", defaults.LoaderChunkSize)
	v.SetDefault("ingest.validationErrorCap", defaults.ValidationErrorCap)
	v.SetDefault("ingest.resultErrorLimit", defaults.ResultErrorLimit)
	v.SetDefault("ingest.stuckLogMaxAge", defaults.StuckLogMaxAge)
	v.SetDefault("ingest.sweepInterval", defaults.SweepInterval)
	v.SetDefault("ingest.dedupLockTTL", defaults.DedupLockTTL)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg IngestTuning
	if err := v.UnmarshalKey("ingest", &cfg); err != nil {
		return nil, err
	}
	if err := validateIngestTuning(cfg); err != nil {
		return nil, err
	}

	holder := &TuningHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated IngestTuning
		if err := v.UnmarshalKey("ingest", &updated); err != nil {
			log.Printf("[ingest-config] reload failed: %v", err)
			return
		}
		if err := validateIngestTuning(updated); err != nil {
			log.Printf("[ingest-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ingest-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// StaticTuning wraps a fixed tuning value, for tests and tools that do not
// watch a config file.
func StaticTuning(cfg IngestTuning) *TuningHolder {
	holder := &TuningHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *TuningHolder) Get() IngestTuning {
	return h.current.Load().(IngestTuning)
}

func validateIngestTuning(cfg IngestTuning) error {
	if cfg.MaxBatchSize <= 0 {
		return errors.New("ingest.maxBatchSize must be positive")
	}
	if cfg.LoaderChunkSize <= 0 {
		return errors.New("ingest.loaderChunkSize must be positive")
	}
	if cfg.ValidationErrorCap <= 0 {
		return errors.New("ingest.validationErrorCap must be positive")
	}
	if cfg.ResultErrorLimit <= 0 {
		return errors.New("ingest.resultErrorLimit must be positive")
	}
	if cfg.StuckLogMaxAge <= 0 {
		return errors.New("ingest.stuckLogMaxAge must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("ingest.sweepInterval must be positive")
	}
	if cfg.DedupLockTTL <= 0 {
		return errors.New("ingest.dedupLockTTL must be positive")
	}
	return nil
}
