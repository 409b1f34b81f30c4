package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/locker"
	"github.com/rs/zerolog/log"

	"github.com/dceres/releasectl/internal/tools"
)

var (
	ErrContextDirRequired = errors.New("builder: build context dir required")
	ErrImageRequired      = errors.New("builder: repository and tag required")
)

// Spec describes one image build-and-push invocation.
type Spec struct {
	Component  string
	Repository string
	Tag        string
	ContextDir string
}

// Image returns the repository:tag the build publishes.
func (s Spec) Image() string {
	return s.Repository + ":" + s.Tag
}

// Builder is the opaque build capability invoked once per BuildTask.
type Builder interface {
	BuildAndPush(ctx context.Context, spec Spec) error
}

// DockerBuilder shells out to the docker CLI through a Runner. Each
// invocation owns a scratch workspace under WorkspaceRoot that is reclaimed
// after the build; build agents have limited disk, so reclamation is not
// optional. Workspaces are keyed by component and serialized with a named
// lock so two invocations never share intermediate state.
type DockerBuilder struct {
	runner        tools.Runner
	workspaceRoot string
	buildTimeout  time.Duration
	locks         *locker.Locker
}

func NewDockerBuilder(runner tools.Runner, workspaceRoot string, buildTimeout time.Duration) *DockerBuilder {
	if buildTimeout <= 0 {
		buildTimeout = 15 * time.Minute
	}
	return &DockerBuilder{
		runner:        runner,
		workspaceRoot: workspaceRoot,
		buildTimeout:  buildTimeout,
		locks:         locker.New(),
	}
}

func (b *DockerBuilder) BuildAndPush(ctx context.Context, spec Spec) error {
	if strings.TrimSpace(spec.ContextDir) == "" {
		return ErrContextDirRequired
	}
	if strings.TrimSpace(spec.Repository) == "" || strings.TrimSpace(spec.Tag) == "" {
		return ErrImageRequired
	}

	b.locks.Lock(spec.Component)
	defer b.locks.Unlock(spec.Component)

	workspace := filepath.Join(b.workspaceRoot, spec.Component+"-"+spec.Tag)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("builder: workspace %s: %w", workspace, err)
	}
	defer b.reclaim(workspace)

	ctx, cancel := context.WithTimeout(ctx, b.buildTimeout)
	defer cancel()

	image := spec.Image()
	iidFile := filepath.Join(workspace, "image.id")

	log.Info().Str("component", spec.Component).Str("image", image).Msg("building image")
	out, _, err := b.runner.Run(ctx, "docker", "build",
		"--tag", image,
		"--iidfile", iidFile,
		spec.ContextDir,
	)
	if err != nil {
		return fmt.Errorf("builder: build %s: %w: %s", image, err, tail(out))
	}

	log.Info().Str("component", spec.Component).Str("image", image).Msg("pushing image")
	out, _, err = b.runner.Run(ctx, "docker", "push", image)
	if err != nil {
		return fmt.Errorf("builder: push %s: %w: %s", image, err, tail(out))
	}
	return nil
}

func (b *DockerBuilder) reclaim(workspace string) {
	if err := os.RemoveAll(workspace); err != nil {
		log.Warn().Err(err).Str("workspace", workspace).Msg("workspace reclaim failed")
	}
}

// tail trims command output to the last few lines for error context.
func tail(out []byte) string {
	text := strings.TrimSpace(string(out))
	lines := strings.Split(text, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
