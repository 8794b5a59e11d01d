package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Ryuzii/FerraEura/internal/generator"
	"github.com/Ryuzii/FerraEura/internal/node"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNodePort       = 2333
	DefaultNodeVersion    = "v4"
	DefaultResumeTimeout  = 60 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultReconnectLimit = 5
	DefaultPingInterval   = 30 * time.Second
)

// ResumeKeys mints resume keys for legacy nodes configured without one.
var ResumeKeys generator.Generator[string] = &generator.ResumeKeyGenerator{Prefix: "ferraeura"}

// NodesFile is the YAML document listing the audio nodes.
type NodesFile struct {
	Nodes []NodeConfig `yaml:"nodes"`
}

type NodeConfig struct {
	Name               string        `yaml:"name"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Secure             bool          `yaml:"secure"`
	Password           string        `yaml:"password"`
	Regions            []string      `yaml:"regions"`
	Version            string        `yaml:"version"`
	Resume             bool          `yaml:"resume"`
	ResumeKey          string        `yaml:"resume_key"`
	ResumeTimeout      time.Duration `yaml:"resume_timeout"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay"`
	ReconnectLimit     int           `yaml:"reconnect_limit"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// LoadNodes reads, defaults and validates a nodes file.
func LoadNodes(path string) ([]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file: %w", err)
	}
	return ParseNodes(data)
}

func ParseNodes(data []byte) ([]NodeConfig, error) {
	var file NodesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse nodes file: %w", err)
	}
	for i := range file.Nodes {
		ApplyNodeDefaults(&file.Nodes[i])
		if err := assignResumeKey(&file.Nodes[i]); err != nil {
			return nil, err
		}
	}
	if err := ValidateNodes(file.Nodes); err != nil {
		return nil, err
	}
	return file.Nodes, nil
}

// ApplyNodeDefaults fills in default values when empty.
func ApplyNodeDefaults(cfg *NodeConfig) {
	if cfg.Name == "" {
		cfg.Name = cfg.Host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultNodePort
	}
	if cfg.Version == "" {
		cfg.Version = DefaultNodeVersion
	}
	if cfg.ResumeTimeout == 0 {
		cfg.ResumeTimeout = DefaultResumeTimeout
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReconnectLimit == 0 {
		cfg.ReconnectLimit = DefaultReconnectLimit
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
}

func assignResumeKey(cfg *NodeConfig) error {
	if !cfg.Resume || cfg.Version == "v4" || cfg.ResumeKey != "" {
		return nil
	}
	key, err := ResumeKeys.Next()
	if err != nil {
		return fmt.Errorf("failed to generate resume key for node %s: %w", cfg.Name, err)
	}
	cfg.ResumeKey = key
	return nil
}

func ValidateNodes(nodes []NodeConfig) error {
	if len(nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	seen := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		if n.Host == "" {
			return fmt.Errorf("nodes[%d].host is required", i)
		}
		if n.Port < 1 || n.Port > 65535 {
			return fmt.Errorf("nodes[%d].port %d is out of range", i, n.Port)
		}
		if n.Version != "v4" && n.ResumeKey == "" && n.Resume {
			return fmt.Errorf("nodes[%d].resume_key is required to resume on %s nodes", i, n.Version)
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

// Options converts the YAML entry into supervisor options.
func (c NodeConfig) Options() node.Options {
	return node.Options{
		Name:               c.Name,
		Host:               c.Host,
		Port:               c.Port,
		Secure:             c.Secure,
		Password:           c.Password,
		Regions:            c.Regions,
		Version:            c.Version,
		Resume:             c.Resume,
		ResumeKey:          c.ResumeKey,
		ResumeTimeout:      c.ResumeTimeout,
		ReconnectDelay:     c.ReconnectDelay,
		ReconnectLimit:     c.ReconnectLimit,
		PingInterval:       c.PingInterval,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}
