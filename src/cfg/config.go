package cfg

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "PAGEDB"

type RecoveryConfig struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"dev"`

	// DataDir resolves relative database and log paths.
	DataDir string `envconfig:"DATA_DIR" default:"."`
	// PoolSize is the number of buffer pool frames.
	PoolSize uint64 `envconfig:"POOL_SIZE" default:"1024"`
	// CheckWorkers bounds the number of pages verified concurrently.
	CheckWorkers int `envconfig:"CHECK_WORKERS" default:"4"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"false"`
}

// Load reads an optional .env file at path and then the PAGEDB_*
// environment. Variables already set in the environment win over the
// file.
func Load(path string) (RecoveryConfig, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return RecoveryConfig{}, errors.Wrapf(err, "load %s", path)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return RecoveryConfig{}, errors.Wrap(err, "load .env")
		}
	}

	var c RecoveryConfig
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return RecoveryConfig{}, errors.Wrap(err, "process environment")
	}

	if err := c.Validate(); err != nil {
		return RecoveryConfig{}, err
	}
	return c, nil
}

func (c RecoveryConfig) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return errors.Wrap(err, "environment validation")
	}
	if c.PoolSize == 0 {
		return errors.New("pool size must be greater than zero")
	}
	if c.CheckWorkers <= 0 {
		return errors.New("check workers must be positive")
	}
	return nil
}

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}
