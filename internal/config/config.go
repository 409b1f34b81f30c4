package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/moby/patternmatcher"
)

var (
	ErrNoComponents     = errors.New("config: no components defined")
	ErrDuplicateName    = errors.New("config: duplicate component name")
	ErrUnknownDependsOn = errors.New("config: depends_on references unknown component")
	ErrDependencyCycle  = errors.New("config: component dependency cycle")
	ErrBadPattern       = errors.New("config: malformed path pattern")
)

// Duration wraps time.Duration for TOML text values such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Component is one deployable unit with its trigger patterns.
type Component struct {
	Name       string   `toml:"name"`
	Paths      []string `toml:"paths"`
	DependsOn  string   `toml:"depends_on"`
	Repository string   `toml:"repository"`
	ContextDir string   `toml:"context_dir"`
}

// RegistryConfig locates the container registry queried for pushed tags.
type RegistryConfig struct {
	Endpoint     string   `toml:"endpoint"`
	Namespace    string   `toml:"namespace"`
	QueryTimeout Duration `toml:"query_timeout"`
}

// LockMode selects behavior when the reconciliation lock is already held.
type LockMode string

const (
	LockModeWait     LockMode = "wait"
	LockModeFailFast LockMode = "fail_fast"
)

// LockConfig governs reconciliation mutual exclusion for one environment.
type LockConfig struct {
	Mode        LockMode `toml:"mode"`
	WaitTimeout Duration `toml:"wait_timeout"`
	TTL         Duration `toml:"ttl"`
}

// BuilderConfig locates build workspaces and the optional remote agent.
type BuilderConfig struct {
	WorkspaceRoot string   `toml:"workspace_root"`
	BuildTimeout  Duration `toml:"build_timeout"`

	AgentHost    string `toml:"agent_host"`
	AgentPort    string `toml:"agent_port"`
	AgentUser    string `toml:"agent_user"`
	AgentKeyPath string `toml:"agent_key_path"`
}

// InfraConfig locates the terraform working directory for the reconciler.
type InfraConfig struct {
	WorkDir      string   `toml:"work_dir"`
	ApplyTimeout Duration `toml:"apply_timeout"`
}

// ProbeConfig is one health probe definition against the deployed endpoint.
type ProbeConfig struct {
	Name         string     `toml:"name"`
	Path         string     `toml:"path"`
	Body         string     `toml:"body"`
	ExpectStatus int        `toml:"expect_status"`
	ExpectField  string     `toml:"expect_field"`
	MaxAttempts  int        `toml:"max_attempts"`
	Backoff      []Duration `toml:"backoff"`
	Timeout      Duration   `toml:"timeout"`
}

// VerifyConfig holds rollout verification settings shared by all probes.
type VerifyConfig struct {
	SettleDelay Duration `toml:"settle_delay"`
}

// WatchConfig drives scheduled verify-only runs.
type WatchConfig struct {
	Schedule   string `toml:"schedule"`
	StatusAddr string `toml:"status_addr"`
}

// ReleaseConfig is the complete releasectl configuration file.
type ReleaseConfig struct {
	Environment string         `toml:"environment"`
	ReportDir   string         `toml:"report_dir"`
	Components  []Component    `toml:"components"`
	Registry    RegistryConfig `toml:"registry"`
	Lock        LockConfig     `toml:"lock"`
	Builder     BuilderConfig  `toml:"builder"`
	Infra       InfraConfig    `toml:"infra"`
	Verify      VerifyConfig   `toml:"verify"`
	Probes      []ProbeConfig  `toml:"probes"`
	Watch       WatchConfig    `toml:"watch"`
}

func LoadReleaseConfig(path string) (ReleaseConfig, error) {
	var cfg ReleaseConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return ReleaseConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ReleaseConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	applyDefaults(&cfg)
	if err := ValidateReleaseConfig(cfg); err != nil {
		return ReleaseConfig{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *ReleaseConfig) {
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = "reports"
	}
	if cfg.Registry.QueryTimeout.Duration == 0 {
		cfg.Registry.QueryTimeout.Duration = 10 * time.Second
	}
	if cfg.Lock.Mode == "" {
		cfg.Lock.Mode = LockModeWait
	}
	if cfg.Lock.WaitTimeout.Duration == 0 {
		cfg.Lock.WaitTimeout.Duration = 5 * time.Minute
	}
	if cfg.Lock.TTL.Duration == 0 {
		cfg.Lock.TTL.Duration = 30 * time.Minute
	}
	if cfg.Builder.WorkspaceRoot == "" {
		cfg.Builder.WorkspaceRoot = "build"
	}
	if cfg.Builder.BuildTimeout.Duration == 0 {
		cfg.Builder.BuildTimeout.Duration = 15 * time.Minute
	}
	if cfg.Infra.WorkDir == "" {
		cfg.Infra.WorkDir = "terraform"
	}
	if cfg.Infra.ApplyTimeout.Duration == 0 {
		cfg.Infra.ApplyTimeout.Duration = 20 * time.Minute
	}
	if cfg.Verify.SettleDelay.Duration == 0 {
		cfg.Verify.SettleDelay.Duration = 30 * time.Second
	}
	for i := range cfg.Probes {
		p := &cfg.Probes[i]
		if p.ExpectStatus == 0 {
			p.ExpectStatus = 200
		}
		if p.MaxAttempts == 0 {
			p.MaxAttempts = 3
		}
		if p.Timeout.Duration == 0 {
			p.Timeout.Duration = 10 * time.Second
		}
	}
}

func ValidateReleaseConfig(cfg ReleaseConfig) error {
	if len(cfg.Components) == 0 {
		return ErrNoComponents
	}
	if err := validateComponents(cfg.Components); err != nil {
		return err
	}
	if cfg.Lock.Mode != LockModeWait && cfg.Lock.Mode != LockModeFailFast {
		return fmt.Errorf("config: unknown lock mode %q", cfg.Lock.Mode)
	}
	for i, p := range cfg.Probes {
		if err := validateProbe(p); err != nil {
			return fmt.Errorf("probe[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func validateComponents(components []Component) error {
	byName := make(map[string]Component, len(components))
	for i, c := range components {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("component[%d] missing name", i)
		}
		if _, seen := byName[name]; seen {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		byName[name] = c
		for _, pat := range c.Paths {
			if _, err := patternmatcher.New([]string{pat}); err != nil {
				return fmt.Errorf("%w: component %s pattern %q: %v", ErrBadPattern, name, pat, err)
			}
		}
	}
	for _, c := range components {
		if c.DependsOn == "" {
			continue
		}
		if _, ok := byName[c.DependsOn]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrUnknownDependsOn, c.Name, c.DependsOn)
		}
	}
	return detectCycle(byName)
}

// detectCycle walks each depends_on chain; the relation is a forest of
// single-parent links, so any repeat on one walk is a cycle.
func detectCycle(byName map[string]Component) error {
	for name := range byName {
		seen := map[string]bool{}
		cur := name
		for cur != "" {
			if seen[cur] {
				return fmt.Errorf("%w: via %s", ErrDependencyCycle, cur)
			}
			seen[cur] = true
			cur = byName[cur].DependsOn
		}
	}
	return nil
}

func validateProbe(p ProbeConfig) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !strings.HasPrefix(p.Path, "/") {
		return fmt.Errorf("path must start with /")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	if len(p.Backoff) > 0 && len(p.Backoff) < p.MaxAttempts-1 {
		return fmt.Errorf("backoff schedule shorter than max_attempts-1")
	}
	return nil
}
