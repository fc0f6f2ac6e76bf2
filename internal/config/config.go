package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"repute-go/internal/ledger"
)

// Config represents the main configuration for repute.
type Config struct {
	NodeID     string           `toml:"node_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Vaults     []VaultConfig    `toml:"vaults"`
}

// LedgerConfig holds the ledger constants. They are fixed for the lifetime
// of a ledger instance.
type LedgerConfig struct {
	MinStakeAmount    string `toml:"min_stake_amount"` // decimal, up to 256 bits
	MaxReviewsPerUser uint32 `toml:"max_reviews_per_user"`
}

// DatabaseConfig represents configuration for the ledger store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "bolt" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite and type=bolt
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible services; enables path-style addressing
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a new Config with the provided values, a sqlite store,
// a filesystem vault and the default ledger constants.
func NewConfig(nodeID, baseDir string) *Config {
	defaults := ledger.DefaultParams()
	return &Config{
		NodeID:  nodeID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Ledger: LedgerConfig{
			MinStakeAmount:    ledger.FormatAmount(&defaults.MinStakeAmount),
			MaxReviewsPerUser: defaults.MaxReviewsPerUser,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "repute.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "repute.key"),
		},
		Vaults: []VaultConfig{{
			Type:        "filesystem",
			Name:        "local",
			FSVaultRoot: filepath.Join(baseDir, "vault"),
		}},
	}
}

// Path returns the database file for nodeID, or "" for the memory type.
func (c DatabaseConfig) Path(nodeID string) string {
	switch c.Type {
	case "sqlite":
		return filepath.Join(c.DataDir, nodeID+".db")
	case "bolt":
		return filepath.Join(c.DataDir, nodeID+".bolt")
	default:
		return ""
	}
}

// Params converts the ledger section into ledger.Params.
func (c LedgerConfig) Params() (ledger.Params, error) {
	var p ledger.Params

	amount, err := ledger.ParseAmount(c.MinStakeAmount)
	if err != nil {
		return p, fmt.Errorf("min_stake_amount: %w", err)
	}
	p.MinStakeAmount = *amount
	p.MaxReviewsPerUser = c.MaxReviewsPerUser

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks that the config is complete enough to open a ledger.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if strings.HasPrefix(c.NodeID, ".") || strings.ContainsAny(c.NodeID, `/\`) {
		return fmt.Errorf("node_id %s must not start with a dot or contain a path separator", strconv.Quote(c.NodeID))
	}
	if _, err := c.Ledger.Params(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	switch c.Database.Type {
	case "memory":
	case "sqlite", "bolt":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database: data_dir required for %s", c.Database.Type)
		}
	default:
		return fmt.Errorf("database: unknown type %s", strconv.Quote(c.Database.Type))
	}
	switch c.Encryption.Type {
	case "", "age", "test":
	default:
		return fmt.Errorf("encryption: unknown type %s", strconv.Quote(c.Encryption.Type))
	}
	names := make(map[string]bool)
	for i, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vaults[%d]: name is required", i)
		}
		if names[v.Name] {
			return fmt.Errorf("vaults[%d]: duplicate name %s", i, strconv.Quote(v.Name))
		}
		names[v.Name] = true
		switch v.Type {
		case "memory":
		case "filesystem":
			if v.FSVaultRoot == "" {
				return fmt.Errorf("vaults[%d]: fs_vault_root required for filesystem", i)
			}
		case "s3":
			if v.S3Bucket == "" {
				return fmt.Errorf("vaults[%d]: s3_bucket required for s3", i)
			}
		default:
			return fmt.Errorf("vaults[%d]: unknown type %s", i, strconv.Quote(v.Type))
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Vault returns the vault named name, or the first configured vault when
// name is empty.
func (c *Config) Vault(name string) (VaultConfig, error) {
	if len(c.Vaults) == 0 {
		return VaultConfig{}, fmt.Errorf("no vaults configured")
	}
	if name == "" {
		return c.Vaults[0], nil
	}
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, nil
		}
	}
	return VaultConfig{}, fmt.Errorf("no vault named %s", strconv.Quote(name))
}
