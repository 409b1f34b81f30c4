// Package detect maps a revision's changed paths to affected components.
package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"

	"github.com/dceres/releasectl/internal/config"
)

// ChangeSet is the immutable changed-path set of one triggering revision.
type ChangeSet struct {
	Revision string
	Paths    []string
}

// ShortRevision returns the first eight characters of the revision identifier.
func (c ChangeSet) ShortRevision() string {
	rev := strings.TrimSpace(c.Revision)
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// AffectedSet is the set of component names touched by a change set.
type AffectedSet map[string]struct{}

func (s AffectedSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the affected component names in sorted order.
func (s AffectedSet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Detector matches changed paths against component patterns. It is a pure
// function of its inputs; construction assumes the component set already
// passed config validation (unique names, acyclic depends_on, valid globs).
type Detector struct {
	components []config.Component
	matchers   map[string]*patternmatcher.PatternMatcher
}

func NewDetector(components []config.Component) (*Detector, error) {
	d := &Detector{
		components: components,
		matchers:   make(map[string]*patternmatcher.PatternMatcher, len(components)),
	}
	for _, c := range components {
		if len(c.Paths) == 0 {
			continue
		}
		pm, err := patternmatcher.New(c.Paths)
		if err != nil {
			return nil, fmt.Errorf("detect: component %s: %w", c.Name, err)
		}
		d.matchers[c.Name] = pm
	}
	return d, nil
}

// Affected returns every component with a matching changed path, plus every
// component whose depends_on chain reaches an affected component. An empty
// change set yields an empty set; forced deploys are the caller's concern.
func (d *Detector) Affected(cs ChangeSet) AffectedSet {
	direct := make(AffectedSet)
	for _, c := range d.components {
		pm := d.matchers[c.Name]
		if pm == nil {
			continue
		}
		for _, path := range cs.Paths {
			ok, err := pm.MatchesOrParentMatches(path)
			if err != nil {
				continue
			}
			if ok {
				direct[c.Name] = struct{}{}
				break
			}
		}
	}

	byName := make(map[string]config.Component, len(d.components))
	for _, c := range d.components {
		byName[c.Name] = c
	}

	out := make(AffectedSet, len(direct))
	for name := range direct {
		out[name] = struct{}{}
	}
	for _, c := range d.components {
		cur := c.DependsOn
		// Bounded by component count: a chain longer than that is a cycle.
		for steps := 0; cur != "" && steps < len(d.components); steps++ {
			if direct.Has(cur) {
				out[c.Name] = struct{}{}
				break
			}
			cur = byName[cur].DependsOn
		}
	}
	return out
}
