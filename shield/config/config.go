package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kysee/cloak/shield/merkle"
	"github.com/kysee/cloak/shield/poll"
	"github.com/kysee/cloak/shield/prover"
	"github.com/kysee/cloak/shield/types"
	"gopkg.in/yaml.v2"
)

const (
	defaultRPCURL     = "https://api.devnet.solana.com"
	defaultIndexerURL = "http://localhost:3001"
	defaultRelayURL   = "http://localhost:3002"
	defaultProverURL  = "http://localhost:3000"
	defaultStore      = "file"
	defaultLogLevel   = "info"
	defaultLogFormat  = "console"
)

var DefaultHome = filepath.Join(os.Getenv("HOME"), ".cloak")

type StoreConfig struct {
	// memory, file or pebble
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type PollConfig struct {
	DepositInterval time.Duration `yaml:"depositInterval"`
	DepositAttempts int           `yaml:"depositAttempts"`
	RelayInterval   time.Duration `yaml:"relayInterval"`
	RelayAttempts   int           `yaml:"relayAttempts"`
}

type ProverConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	// Left empty, the network is detected from RPCURL.
	Network     types.Network `yaml:"network"`
	RPCURL      string        `yaml:"rpcUrl"`
	IndexerURL  string        `yaml:"indexerUrl"`
	RelayURL    string        `yaml:"relayUrl"`
	ProverURL   string        `yaml:"proverUrl"`
	KeysPath    string        `yaml:"keysPath"`
	MerkleDepth int           `yaml:"merkleDepth"`
	Store       StoreConfig   `yaml:"store"`
	Poll        PollConfig    `yaml:"poll"`
	Prover      ProverConfig  `yaml:"prover"`
	Log         LogConfig     `yaml:"log"`
}

// Default returns the configuration used when no file exists, rooted at home.
func Default(home string) *Config {
	c := &Config{
		RPCURL:     defaultRPCURL,
		IndexerURL: defaultIndexerURL,
		RelayURL:   defaultRelayURL,
		ProverURL:  defaultProverURL,
		KeysPath:   filepath.Join(home, "keys.json"),
		Store: StoreConfig{
			Backend: defaultStore,
			Path:    filepath.Join(home, "notes.json"),
		},
	}
	ret := c.WithDefaults()
	return &ret
}

// WithDefaults returns a copy of c with every unset field filled in.
func (c Config) WithDefaults() Config {
	cpy := c
	if cpy.RPCURL == "" {
		cpy.RPCURL = defaultRPCURL
	}
	if cpy.Network == "" {
		cpy.Network = types.DetectNetwork(cpy.RPCURL)
	}
	if cpy.MerkleDepth == 0 {
		cpy.MerkleDepth = merkle.DefaultDepth
	}
	if cpy.Store.Backend == "" {
		cpy.Store.Backend = defaultStore
	}
	if cpy.Poll.DepositInterval == 0 {
		cpy.Poll.DepositInterval = poll.DepositConfirmation.Interval
	}
	if cpy.Poll.DepositAttempts == 0 {
		cpy.Poll.DepositAttempts = poll.DepositConfirmation.MaxAttempts
	}
	if cpy.Poll.RelayInterval == 0 {
		cpy.Poll.RelayInterval = poll.RelayStatus.Interval
	}
	if cpy.Poll.RelayAttempts == 0 {
		cpy.Poll.RelayAttempts = poll.RelayStatus.MaxAttempts
	}
	if cpy.Prover.Timeout == 0 {
		cpy.Prover.Timeout = prover.DefaultTimeout
	}
	if cpy.Log.Level == "" {
		cpy.Log.Level = defaultLogLevel
	}
	if cpy.Log.Format == "" {
		cpy.Log.Format = defaultLogFormat
	}
	return cpy
}

func (c *Config) Validate() error {
	if _, err := types.ParseNetwork(string(c.Network)); err != nil {
		return err
	}
	for name, u := range map[string]string{
		"rpcUrl":     c.RPCURL,
		"indexerUrl": c.IndexerURL,
		"relayUrl":   c.RelayURL,
		"proverUrl":  c.ProverURL,
	} {
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid %s %q", name, u)
		}
	}
	switch c.Store.Backend {
	case "memory":
	case "file", "pebble":
		if c.Store.Path == "" {
			return fmt.Errorf("store backend %s needs a path", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.MerkleDepth < 1 || c.MerkleDepth > merkle.DefaultDepth {
		return fmt.Errorf("merkleDepth must be between 1 and %d", merkle.DefaultDepth)
	}
	if c.Poll.DepositAttempts < 1 || c.Poll.RelayAttempts < 1 {
		return fmt.Errorf("poll attempts must be positive")
	}
	if c.Poll.DepositInterval < 0 || c.Poll.RelayInterval < 0 || c.Prover.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return c.Log.Validate()
}

func (c *Config) DepositPoll() poll.Options {
	return poll.Options{Interval: c.Poll.DepositInterval, MaxAttempts: c.Poll.DepositAttempts}
}

func (c *Config) RelayPoll() poll.Options {
	return poll.Options{Interval: c.Poll.RelayInterval, MaxAttempts: c.Poll.RelayAttempts}
}

// Load reads the config at path. A missing file yields the defaults for the
// directory holding path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(filepath.Dir(path)), nil
	}
	if err != nil {
		return nil, err
	}

	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cpy := c.WithDefaults()
	if err := cpy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cpy, nil
}

func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
