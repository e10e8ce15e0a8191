package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Failure policies applied to the owning request when a build step fails.
const (
	OnFailureMarkFailed    = "mark_failed"
	OnFailureLeaveBuilding = "leave_building"
)

// Config models devterm.yml.
type Config struct {
	Pipeline struct {
		OnFailure          string   `yaml:"on_failure" json:"on_failure"`
		DefaultRequestType string   `yaml:"default_request_type" json:"default_request_type"`
		DefaultBuildMode   string   `yaml:"default_build_mode" json:"default_build_mode"`
		DefaultTargetUsers []string `yaml:"default_target_users" json:"default_target_users"`
		MaxPromptLength    int      `yaml:"max_prompt_length" json:"max_prompt_length"`
	} `yaml:"pipeline" json:"pipeline"`
	Schema struct {
		SchemaName    string `yaml:"schema_name" json:"schema_name"`
		DefaultEntity string `yaml:"default_entity" json:"default_entity"`
		UserTable     string `yaml:"user_table" json:"user_table"`
	} `yaml:"schema" json:"schema"`
	Policies struct {
		RoleTable   string `yaml:"role_table" json:"role_table"`
		DefaultRole string `yaml:"default_role" json:"default_role"`
	} `yaml:"policies" json:"policies"`
	Components struct {
		Root string `yaml:"root" json:"root"`
	} `yaml:"components" json:"components"`
	Integrations struct {
		Root string `yaml:"root" json:"root"`
	} `yaml:"integrations" json:"integrations"`
	Status struct {
		RecentLimit   int `yaml:"recent_limit" json:"recent_limit"`
		ArtifactLimit int `yaml:"artifact_limit" json:"artifact_limit"`
		PatternLimit  int `yaml:"pattern_limit" json:"pattern_limit"`
	} `yaml:"status" json:"status"`
	Roles map[string]RoleConfig `yaml:"roles" json:"roles"`
}

type RoleConfig struct {
	Description string `yaml:"description" json:"description"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Pipeline.OnFailure {
	case OnFailureMarkFailed, OnFailureLeaveBuilding:
	default:
		return fmt.Errorf("config.pipeline.on_failure must be %q or %q", OnFailureMarkFailed, OnFailureLeaveBuilding)
	}
	if c.Pipeline.DefaultRequestType == "" {
		return fmt.Errorf("config.pipeline.default_request_type is required")
	}
	if c.Pipeline.DefaultBuildMode == "" {
		return fmt.Errorf("config.pipeline.default_build_mode is required")
	}
	if c.Pipeline.MaxPromptLength <= 0 {
		return fmt.Errorf("config.pipeline.max_prompt_length must be positive")
	}
	if c.Schema.SchemaName == "" {
		return fmt.Errorf("config.schema.schema_name is required")
	}
	if c.Schema.DefaultEntity == "" {
		return fmt.Errorf("config.schema.default_entity is required")
	}
	if c.Schema.UserTable == "" {
		return fmt.Errorf("config.schema.user_table is required")
	}
	if c.Policies.RoleTable == "" {
		return fmt.Errorf("config.policies.role_table is required")
	}
	if c.Status.RecentLimit <= 0 || c.Status.ArtifactLimit <= 0 || c.Status.PatternLimit <= 0 {
		return fmt.Errorf("config.status limits must be positive")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles must define at least one role")
	}
	for id := range c.Roles {
		if id == "" {
			return fmt.Errorf("config.roles contains empty role id")
		}
	}
	if _, ok := c.Roles[c.Policies.DefaultRole]; !ok {
		return fmt.Errorf("config.policies.default_role %q is not a configured role", c.Policies.DefaultRole)
	}
	for _, role := range c.Pipeline.DefaultTargetUsers {
		if _, ok := c.Roles[role]; !ok {
			return fmt.Errorf("config.pipeline.default_target_users references unknown role %s", role)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "devterm.yml")
}

// Load reads and validates config from path, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `pipeline:
  # mark_failed moves the request to failed when a step aborts the build;
  # leave_building keeps it in building for operator inspection.
  on_failure: mark_failed
  default_request_type: plugin
  default_build_mode: think_first
  default_target_users: [public]
  max_prompt_length: 4000

schema:
  schema_name: public
  default_entity: generated_feature
  user_table: auth.users

policies:
  role_table: public.user_roles
  default_role: admin

components:
  root: src/components

integrations:
  root: supabase/functions

status:
  recent_limit: 10
  artifact_limit: 10
  pattern_limit: 5

roles:
  public:
    description: "Citizens and anonymous visitors"
  admin:
    description: "Platform administrators"
  minister:
    description: "Government officials with read access to civic data"
  researcher:
    description: "Analysts with read access to aggregated data"
`
