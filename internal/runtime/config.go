package runtime

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/agentropic/internal/agent"
	"github.com/p-blackswan/agentropic/internal/mailbox"
)

// FileConfig is the top-level configuration loaded from agentropic.yaml.
type FileConfig struct {
	Runtime RuntimeSettings `yaml:"runtime"`
	Agents  []AgentSettings `yaml:"agents"`
}

// RuntimeSettings maps to Config in YAML. Durations use Go syntax ("5ms").
type RuntimeSettings struct {
	MaxConcurrency  int                    `yaml:"max_concurrency"`
	MailboxCapacity int                    `yaml:"mailbox_capacity"`
	OverflowPolicy  mailbox.OverflowPolicy `yaml:"overflow_policy"`
	TickTimeout     time.Duration          `yaml:"tick_timeout"`
	RoundInterval   time.Duration          `yaml:"round_interval"`
	TombstoneLimit  int                    `yaml:"tombstone_limit"`
}

// AgentSettings declares a statically configured agent. The binary decides
// which implementation a role maps to.
type AgentSettings struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Role     agent.Role        `yaml:"role"`
	Count    int               `yaml:"count"`
	Settings map[string]string `yaml:"settings"`
}

// LoadConfig reads and parses a YAML config file, expanding env vars.
func LoadConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := LoadConfigBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigBytes parses a YAML config from bytes.
func LoadConfigBytes(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// ToRuntimeConfig converts the YAML runtime settings to a validated Config.
// Unset fields keep their DefaultConfig values.
func (fc *FileConfig) ToRuntimeConfig() (Config, error) {
	cfg := DefaultConfig()
	s := fc.Runtime
	if s.MaxConcurrency != 0 {
		cfg.MaxConcurrency = s.MaxConcurrency
	}
	cfg.MailboxCapacity = s.MailboxCapacity
	cfg.OverflowPolicy = s.OverflowPolicy
	cfg.TickTimeout = s.TickTimeout
	if s.RoundInterval != 0 {
		cfg.RoundInterval = s.RoundInterval
	}
	if s.TombstoneLimit != 0 {
		cfg.TombstoneLimit = s.TombstoneLimit
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.Count == 0 {
			a.Count = 1
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		if a.Role == "" {
			a.Role = agent.RoleGeneral
		}
	}
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the environment value. Missing
// variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
