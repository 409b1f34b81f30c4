package release

import (
	"github.com/dceres/releasectl/internal/config"
	"github.com/dceres/releasectl/internal/detect"
)

// PlanBuilds is the build gate: a pending BuildTask is created for every
// component that has a container repository and is either affected by the
// change set or covered by a forced deploy. Components without a repository
// never build; unaffected repository components are skipped here and pick up
// a previously pushed image at tag resolution.
func PlanBuilds(affected detect.AffectedSet, forced bool, components []config.Component, tag string) []BuildTask {
	var tasks []BuildTask
	for _, c := range components {
		if c.Repository == "" {
			continue
		}
		if !forced && !affected.Has(c.Name) {
			continue
		}
		contextDir := c.ContextDir
		if contextDir == "" {
			contextDir = "."
		}
		tasks = append(tasks, BuildTask{
			Component:  c.Name,
			Repository: c.Repository,
			Tag:        tag,
			ContextDir: contextDir,
			State:      TaskPending,
		})
	}
	return tasks
}
