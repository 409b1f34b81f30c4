// Package trigger normalizes the events that start a release run.
package trigger

import "strings"

// Action selects which pipeline a run executes.
type Action string

const (
	ActionDeploy  Action = "deploy"
	ActionPlan    Action = "plan"
	ActionDestroy Action = "destroy"
)

// Source records what initiated a run.
type Source string

const (
	SourcePush     Source = "push"
	SourceManual   Source = "manual"
	SourceSchedule Source = "schedule"
)

// Trigger is one normalized run request.
type Trigger struct {
	Action   Action
	Source   Source
	Revision string
	Paths    []string
	Forced   bool
}

// Push builds a trigger from a revision push event.
func Push(revision string, paths []string) Trigger {
	return Trigger{
		Action:   ActionDeploy,
		Source:   SourcePush,
		Revision: strings.TrimSpace(revision),
		Paths:    paths,
	}
}

// Manual builds a trigger from an operator invocation.
func Manual(action Action, revision string, forced bool) Trigger {
	return Trigger{
		Action:   action,
		Source:   SourceManual,
		Revision: strings.TrimSpace(revision),
		Forced:   forced,
	}
}

// Schedule builds the recurring health-check trigger: no changed paths, so
// no builds are gated in; the idempotent apply and the probes still run.
func Schedule() Trigger {
	return Trigger{
		Action: ActionDeploy,
		Source: SourceSchedule,
	}
}
