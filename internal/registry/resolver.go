package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/distribution/reference"
	"github.com/rs/zerolog/log"
)

// LatestAlias is the mutable tag used when no revision-specific tag exists.
const LatestAlias = "latest"

// ImageReference is a resolved (repository, tag) pair. Immutable once
// resolved; ResolvedAt records when the resolution happened.
type ImageReference struct {
	Repository string
	Tag        string
	ResolvedAt time.Time
}

// String renders the reference in repository:tag form when the pair is a
// well-formed image reference, falling back to plain concatenation.
func (r ImageReference) String() string {
	named, err := reference.ParseNormalizedNamed(r.Repository)
	if err != nil {
		return r.Repository + ":" + r.Tag
	}
	tagged, err := reference.WithTag(named, r.Tag)
	if err != nil {
		return r.Repository + ":" + r.Tag
	}
	return reference.FamiliarString(tagged)
}

// Resolver decides which pushed tag to deploy for a repository. Results are
// cached for the lifetime of the resolver, which callers scope to one run.
type Resolver struct {
	lister TagLister

	mu    sync.Mutex
	cache map[string]ImageReference
}

func NewResolver(lister TagLister) *Resolver {
	return &Resolver{
		lister: lister,
		cache:  make(map[string]ImageReference),
	}
}

// Resolve returns the image reference to deploy for repository. An explicit
// override (a tag a build just pushed) is used directly without a registry
// query. Otherwise the most recently pushed tag wins, skipping the mutable
// latest alias; a failed or empty query falls back to latest so a first
// deploy still produces a usable reference.
func (r *Resolver) Resolve(ctx context.Context, repository, override string) ImageReference {
	repository = strings.TrimSpace(repository)

	r.mu.Lock()
	defer r.mu.Unlock()

	if override = strings.TrimSpace(override); override != "" {
		ref := ImageReference{Repository: repository, Tag: override, ResolvedAt: time.Now()}
		r.cache[repository] = ref
		return ref
	}
	if ref, ok := r.cache[repository]; ok {
		return ref
	}

	ref := ImageReference{Repository: repository, Tag: r.queryLatestPushed(ctx, repository), ResolvedAt: time.Now()}
	r.cache[repository] = ref
	return ref
}

func (r *Resolver) queryLatestPushed(ctx context.Context, repository string) string {
	tags, err := r.lister.ListTags(ctx, repository)
	if err != nil {
		log.Warn().Err(err).Str("repository", repository).
			Msg("registry query failed, falling back to latest")
		return LatestAlias
	}

	eligible := tags[:0:0]
	for _, t := range tags {
		if t.Tag == LatestAlias || strings.TrimSpace(t.Tag) == "" {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		log.Warn().Str("repository", repository).
			Msg("no eligible pushed tags, falling back to latest")
		return LatestAlias
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].PushedAt.After(eligible[j].PushedAt)
	})
	return eligible[0].Tag
}
