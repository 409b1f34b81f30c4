package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dceres/releasectl/internal/builder"
	"github.com/dceres/releasectl/internal/config"
	"github.com/dceres/releasectl/internal/detect"
	"github.com/dceres/releasectl/internal/infra"
	"github.com/dceres/releasectl/internal/lock"
	"github.com/dceres/releasectl/internal/observability"
	"github.com/dceres/releasectl/internal/registry"
	"github.com/dceres/releasectl/internal/trigger"
	"github.com/dceres/releasectl/internal/verify"
)

var ErrBuildsFailed = errors.New("release: build failures block reconciliation")

// Orchestrator sequences one release run: detect, gated parallel builds, tag
// resolution, exclusive reconciliation, settle, verification, report.
type Orchestrator struct {
	cfg        config.ReleaseConfig
	detector   *detect.Detector
	lister     registry.TagLister
	builder    builder.Builder
	reconciler infra.Reconciler
	locks      *lock.Manager
	verifier   *verify.Verifier
}

func NewOrchestrator(
	cfg config.ReleaseConfig,
	lister registry.TagLister,
	b builder.Builder,
	reconciler infra.Reconciler,
	locks *lock.Manager,
) (*Orchestrator, error) {
	detector, err := detect.NewDetector(cfg.Components)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:        cfg,
		detector:   detector,
		lister:     lister,
		builder:    b,
		reconciler: reconciler,
		locks:      locks,
		verifier:   verify.NewVerifier(cfg.Verify.SettleDelay.Duration),
	}, nil
}

// Run executes one trigger to completion and returns the release report.
// Callers map a failed verdict to a non-zero process exit.
func (o *Orchestrator) Run(ctx context.Context, trig trigger.Trigger) Report {
	report := Report{
		RunID:       uuid.NewString(),
		Action:      string(trig.Action),
		Environment: o.cfg.Environment,
		Revision:    trig.Revision,
		StartedAt:   time.Now(),
		Verdict:     VerdictFailure,
	}
	log.Info().
		Str("run_id", report.RunID).
		Str("action", report.Action).
		Str("source", string(trig.Source)).
		Str("revision", trig.Revision).
		Msg("release run starting")

	switch trig.Action {
	case trigger.ActionDestroy:
		o.runDestroy(ctx, &report)
	case trigger.ActionPlan:
		o.runPlan(ctx, &report)
	default:
		o.runDeploy(ctx, trig, &report)
	}

	report.FinishedAt = time.Now()
	observability.RecordRun(report.Action, string(report.Verdict))
	return report
}

func (o *Orchestrator) runDeploy(ctx context.Context, trig trigger.Trigger, report *Report) {
	cs := detect.ChangeSet{Revision: trig.Revision, Paths: trig.Paths}
	affected := o.detector.Affected(cs)
	report.Affected = affected.Names()

	tag := cs.ShortRevision()
	if tag == "" {
		tag = "run-" + report.RunID[:8]
	}

	tasks := PlanBuilds(affected, trig.Forced, o.cfg.Components, tag)
	o.executeBuilds(ctx, tasks)
	report.Tasks = tasks

	for _, t := range tasks {
		if t.State == TaskFailed {
			report.RunError = ErrBuildsFailed.Error()
			return
		}
	}

	desired := o.resolveImages(ctx, tasks, report)

	if !o.reconcile(ctx, report, func(ctx context.Context) error {
		outputs, err := o.reconciler.Apply(ctx, desired)
		if err != nil {
			return err
		}
		report.Outputs = &outputs
		return nil
	}) {
		return
	}

	if !o.verifyRelease(ctx, desired, report) {
		return
	}
	report.Verdict = VerdictSuccess
}

func (o *Orchestrator) runPlan(ctx context.Context, report *Report) {
	desired := o.resolveImages(ctx, nil, report)
	diff, err := o.reconciler.Plan(ctx, desired)
	if err != nil {
		report.ReconcileError = err.Error()
		return
	}
	report.Diff = &diff
	report.Verdict = VerdictSuccess
}

func (o *Orchestrator) runDestroy(ctx context.Context, report *Report) {
	if !o.reconcile(ctx, report, func(ctx context.Context) error {
		return o.reconciler.Destroy(ctx)
	}) {
		return
	}
	report.Verdict = VerdictSuccess
}

// executeBuilds fans out one builder invocation per task and joins before
// returning; every task reaches a terminal state. A failed sibling does not
// cancel builds already in flight.
func (o *Orchestrator) executeBuilds(ctx context.Context, tasks []BuildTask) {
	var eg errgroup.Group
	for i := range tasks {
		task := &tasks[i]
		eg.Go(func() error {
			task.State = TaskBuilding
			task.StartedAt = time.Now()
			err := o.builder.BuildAndPush(ctx, builder.Spec{
				Component:  task.Component,
				Repository: task.Repository,
				Tag:        task.Tag,
				ContextDir: task.ContextDir,
			})
			task.FinishedAt = time.Now()
			if err != nil {
				task.State = TaskFailed
				task.Error = err.Error()
				log.Error().Str("component", task.Component).Err(err).Msg("build failed")
			} else {
				task.State = TaskPushed
			}
			observability.RecordBuild(task.Component, string(task.State), task.FinishedAt.Sub(task.StartedAt))
			return nil
		})
	}
	eg.Wait()
}

// resolveImages produces the desired state for every repository component.
// Components whose task just pushed use that tag directly; the rest resolve
// through the registry with the run-scoped cache, recorded as skipped tasks
// since their prior image is reused.
func (o *Orchestrator) resolveImages(ctx context.Context, tasks []BuildTask, report *Report) infra.DesiredState {
	pushed := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if t.State == TaskPushed {
			pushed[t.Component] = t.Tag
		}
	}

	resolver := registry.NewResolver(o.lister)
	desired := infra.DesiredState{
		Environment: o.cfg.Environment,
		Images:      make(map[string]registry.ImageReference),
	}
	for _, c := range o.cfg.Components {
		if c.Repository == "" {
			continue
		}
		ref := resolver.Resolve(ctx, c.Repository, pushed[c.Name])
		desired.Images[c.Name] = ref
		report.Images = append(report.Images, ref)
		if _, built := pushed[c.Name]; !built && !hasTask(tasks, c.Name) {
			report.Tasks = append(report.Tasks, BuildTask{
				Component:  c.Name,
				Repository: c.Repository,
				Tag:        ref.Tag,
				State:      TaskSkipped,
			})
		}
	}
	return desired
}

func hasTask(tasks []BuildTask, component string) bool {
	for _, t := range tasks {
		if t.Component == component {
			return true
		}
	}
	return false
}

// reconcile runs fn while holding the environment's reconciliation lock.
// A held lock either waits with a bound or fails fast per configuration;
// apply never runs concurrently for one environment.
func (o *Orchestrator) reconcile(ctx context.Context, report *Report, fn func(ctx context.Context) error) bool {
	opts := lock.Options{
		Wait:        o.cfg.Lock.Mode == config.LockModeWait,
		WaitTimeout: o.cfg.Lock.WaitTimeout.Duration,
		TTL:         o.cfg.Lock.TTL.Duration,
	}
	lease, err := o.locks.Acquire(ctx, o.cfg.Environment, report.RunID, opts)
	if err != nil {
		report.ReconcileError = err.Error()
		if errors.Is(err, lock.ErrHeld) {
			log.Warn().Str("environment", o.cfg.Environment).Err(err).Msg("reconciliation lock held")
		}
		return false
	}
	defer o.locks.Release(lease)

	start := time.Now()
	err = fn(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordReconcile(o.cfg.Environment, outcome, time.Since(start))
	if err != nil {
		report.ReconcileError = err.Error()
		return false
	}
	return true
}

// verifyRelease runs the configured probes and records stale-rollout
// warnings; it reports false when any probe resolves unhealthy.
func (o *Orchestrator) verifyRelease(ctx context.Context, desired infra.DesiredState, report *Report) bool {
	if report.Outputs == nil {
		report.RunError = "release: apply returned no outputs"
		return false
	}
	if len(o.cfg.Probes) == 0 {
		return true
	}

	results, err := o.verifier.VerifyRelease(ctx, *report.Outputs, toProbes(o.cfg.Probes))
	if err != nil {
		report.RunError = err.Error()
		return false
	}
	report.Probes = results

	wanted := make(map[string]string, len(desired.Images))
	for component, ref := range desired.Images {
		wanted[component] = ref.String()
	}
	report.Warnings = verify.StaleRollout(wanted, *report.Outputs)
	for _, w := range report.Warnings {
		log.Warn().Str("component", w.Component).Str("observed", w.ObservedImage).Msg("stale rollout")
	}

	healthy := true
	for _, res := range results {
		observability.RecordProbe(res.Probe, string(res.Outcome), res.Attempts)
		if res.Outcome != verify.OutcomeHealthy {
			healthy = false
		}
	}
	if !healthy {
		report.RunError = fmt.Sprintf("release: %d of %d probes unhealthy", countUnhealthy(results), len(results))
	}
	return healthy
}

func countUnhealthy(results []verify.ProbeResult) int {
	n := 0
	for _, res := range results {
		if res.Outcome != verify.OutcomeHealthy {
			n++
		}
	}
	return n
}

func toProbes(configs []config.ProbeConfig) []verify.Probe {
	out := make([]verify.Probe, 0, len(configs))
	for _, p := range configs {
		backoff := make([]time.Duration, 0, len(p.Backoff))
		for _, d := range p.Backoff {
			backoff = append(backoff, d.Duration)
		}
		out = append(out, verify.Probe{
			Name:         p.Name,
			Path:         p.Path,
			Body:         p.Body,
			ExpectStatus: p.ExpectStatus,
			ExpectField:  p.ExpectField,
			MaxAttempts:  p.MaxAttempts,
			Backoff:      backoff,
			Timeout:      p.Timeout.Duration,
		})
	}
	return out
}
