// Package infra applies desired release state to running infrastructure.
package infra

import (
	"context"

	"github.com/dceres/releasectl/internal/registry"
)

// DesiredState is the input to one reconciliation: every component image to
// deploy plus declared configuration. Applying identical desired state twice
// is expected to produce no further effective change.
type DesiredState struct {
	Environment string
	Images      map[string]registry.ImageReference
	Variables   map[string]string
}

// Diff summarizes a plan against current infrastructure.
type Diff struct {
	HasChanges bool   `json:"has_changes"`
	Summary    string `json:"summary,omitempty"`
}

// Outputs are the named values a successful apply returns; the verifier
// consumes them to locate the deployed endpoints.
type Outputs struct {
	EndpointBaseURL string            `json:"endpoint_base_url"`
	FunctionNames   map[string]string `json:"function_names,omitempty"`
	FunctionImages  map[string]string `json:"function_images,omitempty"`
}

// Reconciler is the infra collaborator contract. Callers must hold the
// environment's reconciliation lock across Apply and Destroy.
type Reconciler interface {
	Plan(ctx context.Context, desired DesiredState) (Diff, error)
	Apply(ctx context.Context, desired DesiredState) (Outputs, error)
	Destroy(ctx context.Context) error
}
