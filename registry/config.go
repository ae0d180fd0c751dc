package registry

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	pb "go.litevfs.dev/core/protocol"
	yaml "gopkg.in/yaml.v2"
)

// FileSystem is the filesystem configuration is read from. Stubbed by tests.
var FileSystem = afero.NewOsFs()

// Duration wraps time.Duration to parse expressions like "60s" from both
// YAML documents and command-line flags.
type Duration time.Duration

// String returns the canonical duration expression.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML parses a duration expression from YAML.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.UnmarshalFlag(raw)
}

// MarshalYAML returns the canonical duration expression.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// UnmarshalFlag parses a duration expression from a flag value.
func (d *Duration) UnmarshalFlag(value string) error {
	var parsed, err = time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config configures a replica Registry: the set of replicas to poll, health
// thresholds, and cache sizing. It may be populated from YAML, from
// command-line flags, or both (flags layered over a loaded file).
type Config struct {
	// Replicas maps replica aliases to their object-storage locations.
	Replicas map[string]pb.ReplicaStore `yaml:"replicas"`
	// Primary is the alias of the authoritative, writable database. It has
	// no replica store and is never polled; it serves as the routing target
	// of writes and the fallback when no replica is eligible.
	Primary string `yaml:"primary" long:"primary" env:"PRIMARY" default:"default" description:"Alias of the authoritative, writable database"`
	// MaxLag is the replication lag below which a replica is routable.
	MaxLag Duration `yaml:"maxLag" long:"max-lag" env:"MAX_LAG" default:"60s" description:"Replication lag below which a replica is routable"`
	// StaleLag is the replication lag at or above which a replica is stale.
	StaleLag Duration `yaml:"staleLag" long:"stale-lag" env:"STALE_LAG" default:"300s" description:"Replication lag at or above which a replica is considered stale"`
	// PollInterval is the base interval between status polls of each replica.
	PollInterval Duration `yaml:"pollInterval" long:"poll-interval" env:"POLL_INTERVAL" default:"1s" description:"Base interval between replica status polls"`
	// CacheBudget bounds the page cache, eg "64MiB".
	CacheBudget string `yaml:"cacheBudget" long:"cache-budget" env:"CACHE_BUDGET" default:"64MiB" description:"Total byte budget of the page cache"`
	// FetchAttempts bounds attempts of each store operation.
	FetchAttempts int `yaml:"fetchAttempts" long:"fetch-attempts" env:"FETCH_ATTEMPTS" default:"3" description:"Attempts of a storage operation before it is reported unavailable"`
}

// DefaultConfig returns a Config with defaults applied and no replicas.
func DefaultConfig() Config {
	return Config{
		Replicas:      make(map[string]pb.ReplicaStore),
		Primary:       "default",
		MaxLag:        Duration(60 * time.Second),
		StaleLag:      Duration(300 * time.Second),
		PollInterval:  Duration(time.Second),
		CacheBudget:   "64MiB",
		FetchAttempts: 3,
	}
}

// LoadConfig reads and validates a YAML Config at |path|, layered over
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	var cfg = DefaultConfig()

	var content, err = afero.ReadFile(FileSystem, path)
	if err != nil {
		return Config{}, err
	}
	if err = yaml.UnmarshalStrict(content, &cfg); err != nil {
		return Config{}, pb.ExtendContext(&pb.ValidationError{Err: err}, "Config")
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns an error if the Config is not well-formed.
func (cfg Config) Validate() error {
	for alias, store := range cfg.Replicas {
		if alias == "" {
			return pb.NewValidationError("Replicas: empty alias")
		} else if alias == cfg.Primary {
			return pb.NewValidationError("Replicas[%s]: alias collides with Primary", alias)
		} else if err := store.Validate(); err != nil {
			return pb.ExtendContext(err, "Replicas[%s]", alias)
		}
	}
	if cfg.Primary == "" {
		return pb.NewValidationError("Primary: cannot be empty")
	}
	if err := cfg.Thresholds().Validate(); err != nil {
		return err
	}
	if cfg.PollInterval <= 0 {
		return pb.NewValidationError("PollInterval must be positive (%s)", cfg.PollInterval)
	}
	if _, err := cfg.ParseCacheBudget(); err != nil {
		return err
	}
	if cfg.FetchAttempts < 0 {
		return pb.NewValidationError("FetchAttempts cannot be negative (%d)", cfg.FetchAttempts)
	}
	return nil
}

// Thresholds returns the health classification Thresholds of the Config.
func (cfg Config) Thresholds() pb.Thresholds {
	return pb.Thresholds{MaxLag: time.Duration(cfg.MaxLag), StaleLag: time.Duration(cfg.StaleLag)}
}

// ParseCacheBudget parses the CacheBudget expression into bytes.
func (cfg Config) ParseCacheBudget() (int64, error) {
	var v, err = humanize.ParseBytes(cfg.CacheBudget)
	if err != nil {
		return 0, pb.NewValidationError("CacheBudget: %s", err)
	}
	return int64(v), nil
}
