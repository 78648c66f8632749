// Package config loads the contract toolchain configuration: which network
// to deploy to, where compiled artifacts live, and which constructor
// arguments to pass.
//
// Configuration files may be YAML (deploy.config.yaml / .yml) or JSON with
// comments (deploy.config.jsonc / .json). JSONC files are stripped with
// github.com/tidwall/jsonc before decoding.
//
// The deployer itself reads no environment variables. The variables below
// belong to the toolchain configuration:
//   - DEPLOY_NETWORK overrides defaultNetwork
//   - DEPLOY_PRIVATE_KEY holds the signer key unless a network names another
//     variable via privateKeyEnv
//   - any ${VAR} referenced in a network url is expanded
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/project-deployer/internal/model"
)

const (
	// SimulatedNetwork is the built-in in-process network. It needs no
	// configuration and is used when nothing else is selected.
	SimulatedNetwork = "simulated"

	// EnvNetwork overrides the configured default network.
	EnvNetwork = "DEPLOY_NETWORK"

	// EnvPrivateKey is the default variable holding the signer key.
	EnvPrivateKey = "DEPLOY_PRIVATE_KEY"

	// DefaultArtifactsDir is where compiled artifacts are looked up,
	// relative to the configuration file directory.
	DefaultArtifactsDir = "artifacts"

	// DefaultTimeout bounds how long the toolchain waits for confirmation.
	DefaultTimeout = 5 * time.Minute
)

// DefaultFileNames lists the configuration files searched for, in order,
// when no explicit path is given.
var DefaultFileNames = []string{
	"deploy.config.yaml",
	"deploy.config.yml",
	"deploy.config.jsonc",
	"deploy.config.json",
}

// Config is the resolved toolchain configuration.
type Config struct {
	// Contract is the identifier of the contract to deploy.
	Contract string `yaml:"contract" json:"contract"`

	// DefaultNetwork names the network used when DEPLOY_NETWORK and the
	// --network flag are both unset.
	DefaultNetwork string `yaml:"defaultNetwork" json:"defaultNetwork"`

	Paths Paths `yaml:"paths" json:"paths"`

	// Networks maps network names to their connection settings. The
	// simulated network is always available and cannot be redefined.
	Networks map[string]Network `yaml:"networks" json:"networks"`

	// ConstructorArgs are raw constructor argument values. The toolchain
	// converts them using the contract ABI.
	ConstructorArgs []any `yaml:"constructorArgs" json:"constructorArgs"`

	// Dir is the directory of the loaded file (or the working directory
	// when none was found). Relative paths are resolved against it.
	Dir string `yaml:"-" json:"-"`

	// Source is the path of the loaded file, empty for defaults.
	Source string `yaml:"-" json:"-"`
}

// Paths holds filesystem locations used by the toolchain.
type Paths struct {
	Artifacts string `yaml:"artifacts" json:"artifacts"`
}

// Network describes how to reach and sign for one network.
type Network struct {
	// Name is filled in from the networks map key.
	Name string `yaml:"-" json:"-"`

	// URL is the JSON-RPC endpoint. ${VAR} references are expanded.
	URL string `yaml:"url" json:"url"`

	// ChainID, when non-zero, must match the chain id reported by the node.
	ChainID uint64 `yaml:"chainId" json:"chainId"`

	// PrivateKeyEnv names the variable holding the hex signer key.
	PrivateKeyEnv string `yaml:"privateKeyEnv" json:"privateKeyEnv"`

	// Timeout is a Go duration string ("90s", "5m") bounding confirmation.
	Timeout string `yaml:"timeout" json:"timeout"`

	// GasLimit fixes the creation gas limit; 0 means estimate.
	GasLimit uint64 `yaml:"gasLimit" json:"gasLimit"`
}

// IsSimulated reports whether n is the built-in in-process network.
func (n Network) IsSimulated() bool {
	return n.Name == SimulatedNetwork
}

// ConfirmationTimeout returns the parsed timeout, or DefaultTimeout when unset.
func (n Network) ConfirmationTimeout() (time.Duration, error) {
	if strings.TrimSpace(n.Timeout) == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 0, fmt.Errorf("network %q: invalid timeout %q: %w", n.Name, n.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("network %q: timeout must be positive, got %s", n.Name, d)
	}
	return d, nil
}

// PrivateKey returns the signer key from the environment, without any
// 0x prefix. An empty result means no key is configured.
func (n Network) PrivateKey() string {
	env := n.PrivateKeyEnv
	if env == "" {
		env = EnvPrivateKey
	}
	key := strings.TrimSpace(os.Getenv(env))
	return strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
}

// Default returns the configuration used when no file is found.
func Default(dir string) *Config {
	return &Config{
		Contract:       model.DefaultContract,
		DefaultNetwork: SimulatedNetwork,
		Paths:          Paths{Artifacts: DefaultArtifactsDir},
		Networks:       map[string]Network{},
		Dir:            dir,
	}
}

// Load reads the configuration at path. When path is empty, the default
// file names are searched for in dir; if none exists, Default(dir) is
// returned. All failures are model.KindInvalidConfig errors.
func Load(path, dir string) (*Config, error) {
	if path == "" {
		found, err := Find(dir)
		if err != nil {
			return nil, invalid(err)
		}
		if found == "" {
			return Default(dir), nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalid(fmt.Errorf("failed to read config file: %w", err))
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, invalid(fmt.Errorf("%s: %w", path, err))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Source = abs
	cfg.Dir = filepath.Dir(abs)
	return cfg, nil
}

// Find returns the first default configuration file present in dir, or
// "" if there is none.
func Find(dir string) (string, error) {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", nil
}

// Parse decodes configuration data. ext selects the format: ".json" and
// ".jsonc" are treated as JSONC, anything else as YAML. Missing fields
// take their default values.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default("")

	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		// Keep numbers exact so large uint256 constructor args survive.
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid YAML config: %w", err)
		}
	}

	if cfg.Contract == "" {
		cfg.Contract = model.DefaultContract
	}
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = SimulatedNetwork
	}
	if cfg.Paths.Artifacts == "" {
		cfg.Paths.Artifacts = DefaultArtifactsDir
	}
	if cfg.Networks == nil {
		cfg.Networks = map[string]Network{}
	}
	if _, ok := cfg.Networks[SimulatedNetwork]; ok {
		return nil, fmt.Errorf("network %q is built in and cannot be configured", SimulatedNetwork)
	}
	return cfg, nil
}

// ArtifactsDir returns the absolute-or-dir-relative artifacts directory.
func (c *Config) ArtifactsDir() string {
	if filepath.IsAbs(c.Paths.Artifacts) {
		return c.Paths.Artifacts
	}
	return filepath.Join(c.Dir, c.Paths.Artifacts)
}

// ResolveNetwork picks the network to deploy to. Precedence: override
// (the --network flag), then DEPLOY_NETWORK, then defaultNetwork.
func (c *Config) ResolveNetwork(override string) (Network, error) {
	name := strings.TrimSpace(override)
	if name == "" {
		name = strings.TrimSpace(os.Getenv(EnvNetwork))
	}
	if name == "" {
		name = c.DefaultNetwork
	}

	if name == SimulatedNetwork {
		return Network{Name: SimulatedNetwork}, nil
	}

	n, ok := c.Networks[name]
	if !ok {
		return Network{}, invalid(fmt.Errorf("unknown network %q (configured: %s)", name, c.networkNames()))
	}
	n.Name = name
	n.URL = os.ExpandEnv(n.URL)
	if strings.TrimSpace(n.URL) == "" {
		return Network{}, invalid(fmt.Errorf("network %q has no url", name))
	}
	if _, err := n.ConfirmationTimeout(); err != nil {
		return Network{}, invalid(err)
	}
	return n, nil
}

func (c *Config) networkNames() string {
	names := []string{SimulatedNetwork}
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return strings.Join(names, ", ")
}

func invalid(err error) error {
	return model.NewDeployError(model.KindInvalidConfig, "", err)
}
