package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dceres/releasectl/internal/builder"
	"github.com/dceres/releasectl/internal/config"
	"github.com/dceres/releasectl/internal/infra"
	"github.com/dceres/releasectl/internal/lock"
	"github.com/dceres/releasectl/internal/registry"
	"github.com/dceres/releasectl/internal/release"
	"github.com/dceres/releasectl/internal/tools"
)

// buildOrchestrator assembles the run pipeline from configuration.
func buildOrchestrator(configPath string) (*release.Orchestrator, config.ReleaseConfig, error) {
	cfg, err := config.LoadReleaseConfig(configPath)
	if err != nil {
		return nil, config.ReleaseConfig{}, err
	}

	lister, err := registry.NewClient(cfg.Registry.Endpoint, cfg.Registry.Namespace, cfg.Registry.QueryTimeout.Duration)
	if err != nil {
		return nil, config.ReleaseConfig{}, err
	}

	runner := buildRunner(cfg.Builder)
	imageBuilder := builder.NewDockerBuilder(runner, cfg.Builder.WorkspaceRoot, cfg.Builder.BuildTimeout.Duration)

	reconciler, err := infra.NewTerraform(tools.ExecRunner{}, cfg.Infra.WorkDir, cfg.Infra.ApplyTimeout.Duration)
	if err != nil {
		return nil, config.ReleaseConfig{}, err
	}

	orch, err := release.NewOrchestrator(cfg, lister, imageBuilder, reconciler, lock.NewManager())
	if err != nil {
		return nil, config.ReleaseConfig{}, err
	}
	return orch, cfg, nil
}

// buildRunner picks the remote build agent when configured, local exec
// otherwise.
func buildRunner(cfg config.BuilderConfig) tools.Runner {
	if strings.TrimSpace(cfg.AgentHost) == "" {
		return tools.ExecRunner{}
	}
	return builder.AgentRunner{
		Host:    cfg.AgentHost,
		Port:    cfg.AgentPort,
		User:    cfg.AgentUser,
		KeyPath: cfg.AgentKeyPath,
	}
}

func readPathsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read changed paths %s: %w", path, err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, scanner.Err()
}
