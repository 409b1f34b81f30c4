package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dceres/releasectl/internal/tools"
)

var (
	ErrWorkDirRequired = errors.New("infra: terraform work dir required")
	ErrApplyFailed     = errors.New("infra: apply failed")
	ErrDestroyFailed   = errors.New("infra: destroy failed")
)

const varsFileName = "releasectl.auto.tfvars.json"

// plan -detailed-exitcode reports pending changes with exit status 2.
const planExitChanges = 2

// Terraform drives the terraform CLI in a fixed working directory.
type Terraform struct {
	runner  tools.Runner
	workDir string
	timeout time.Duration
}

func NewTerraform(runner tools.Runner, workDir string, timeout time.Duration) (*Terraform, error) {
	if strings.TrimSpace(workDir) == "" {
		return nil, ErrWorkDirRequired
	}
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	return &Terraform{runner: runner, workDir: workDir, timeout: timeout}, nil
}

func (t *Terraform) Plan(ctx context.Context, desired DesiredState) (Diff, error) {
	if err := t.writeVars(desired); err != nil {
		return Diff{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, exit, err := t.runner.Run(ctx, "terraform",
		"-chdir="+t.workDir, "plan", "-input=false", "-no-color", "-detailed-exitcode")
	switch exit {
	case 0:
		return Diff{HasChanges: false, Summary: tail(out)}, nil
	case planExitChanges:
		return Diff{HasChanges: true, Summary: tail(out)}, nil
	default:
		return Diff{}, fmt.Errorf("infra: plan: %w: %s", err, tail(out))
	}
}

func (t *Terraform) Apply(ctx context.Context, desired DesiredState) (Outputs, error) {
	if err := t.writeVars(desired); err != nil {
		return Outputs{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	log.Info().Str("environment", desired.Environment).Msg("applying desired state")
	out, _, err := t.runner.Run(ctx, "terraform",
		"-chdir="+t.workDir, "apply", "-input=false", "-no-color", "-auto-approve")
	if err != nil {
		return Outputs{}, fmt.Errorf("%w: %v: %s", ErrApplyFailed, err, tail(out))
	}
	return t.readOutputs(ctx)
}

func (t *Terraform) Destroy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, _, err := t.runner.Run(ctx, "terraform",
		"-chdir="+t.workDir, "destroy", "-input=false", "-no-color", "-auto-approve")
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrDestroyFailed, err, tail(out))
	}
	return nil
}

// writeVars materializes desired state as an auto-loaded tfvars file so the
// declared infrastructure stays a black box to the orchestrator.
func (t *Terraform) writeVars(desired DesiredState) error {
	vars := map[string]any{
		"environment": desired.Environment,
	}
	images := make(map[string]string, len(desired.Images))
	for component, ref := range desired.Images {
		images[component] = ref.String()
	}
	vars["component_images"] = images
	for k, v := range desired.Variables {
		vars[k] = v
	}

	data, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		return fmt.Errorf("infra: encode vars: %w", err)
	}
	path := filepath.Join(t.workDir, varsFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("infra: write vars %s: %w", path, err)
	}
	return nil
}

func (t *Terraform) readOutputs(ctx context.Context) (Outputs, error) {
	raw, _, err := t.runner.Run(ctx, "terraform", "-chdir="+t.workDir, "output", "-json")
	if err != nil {
		return Outputs{}, fmt.Errorf("infra: read outputs: %w: %s", err, tail(raw))
	}

	doc := string(raw)
	outputs := Outputs{
		EndpointBaseURL: gjson.Get(doc, "endpoint_base_url.value").String(),
		FunctionNames:   make(map[string]string),
		FunctionImages:  make(map[string]string),
	}
	gjson.Get(doc, "function_names.value").ForEach(func(key, value gjson.Result) bool {
		outputs.FunctionNames[key.String()] = value.String()
		return true
	})
	gjson.Get(doc, "function_images.value").ForEach(func(key, value gjson.Result) bool {
		outputs.FunctionImages[key.String()] = value.String()
		return true
	})
	return outputs, nil
}

func tail(out []byte) string {
	text := strings.TrimSpace(string(out))
	lines := strings.Split(text, "\n")
	if len(lines) > 8 {
		lines = lines[len(lines)-8:]
	}
	return strings.Join(lines, "\n")
}
