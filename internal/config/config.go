// Package config resolves the rebase engine's tunables from git-config,
// with CLI/programmatic overrides taking precedence, the way the
// teacher's CLI layers kong flags over repository configuration.
package config

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
	"go.branchstack.dev/bse/internal/git"
)

const (
	_configTag     = "config"
	_configSection = "srctl"
)

// Engine holds the rebase engine's tunables, per the specification's
// configuration surface: a bounded log-walk depth, the set of branch
// names considered trunk candidates, and a bound on optimistic session
// update retries.
type Engine struct {
	// MaxLogDepth bounds how many commits the repository model builder
	// walks per branch. Defaults to 1000.
	MaxLogDepth int `config:"max-log-depth"`

	// CanonicalTrunkNames lists local branch names preferred as trunk,
	// in priority order, when no branch is explicitly marked as trunk.
	// Defaults to ["main", "master", "develop"].
	CanonicalTrunkNames []string `config:"trunk" sep:","`

	// UpdateRetryLimit bounds how many times the session store retries
	// an optimistic update before giving up. Defaults to 3.
	UpdateRetryLimit int `config:"update-retry-limit"`
}

// DefaultEngine returns the engine configuration used when nothing
// overrides it: the values named explicitly by the specification.
func DefaultEngine() Engine {
	return Engine{
		MaxLogDepth:         1000,
		CanonicalTrunkNames: []string{"main", "master", "develop"},
		UpdateRetryLimit:    3,
	}
}

// GitConfigLister is the subset of [*git.Config] this package depends on,
// narrowed so tests can substitute a fake.
type GitConfigLister interface {
	ListRegexp(ctx context.Context, pattern string) (func(yield func(git.ConfigEntry, error) bool), error)
}

var _ GitConfigLister = (*git.Config)(nil)

// Resolver loads [Engine] overrides from git-config and exposes them to
// Kong as a [kong.Resolver], so the same three keys are both
// programmatically settable and overridable via `git config srctl.*`.
type Resolver struct {
	items map[git.ConfigKey][]string
}

var _ kong.Resolver = (*Resolver)(nil)

// LoadResolver reads every "srctl.*" key from the given configuration
// source.
func LoadResolver(ctx context.Context, cfg GitConfigLister) (*Resolver, error) {
	iterate, err := cfg.ListRegexp(ctx, `^`+_configSection+`\.`)
	if err != nil {
		return nil, fmt.Errorf("list configuration: %w", err)
	}

	items := make(map[git.ConfigKey][]string)
	for entry, err := range iterate {
		if err != nil {
			return nil, fmt.Errorf("read configuration: %w", err)
		}

		key := entry.Key.Canonical()
		if key.Section() != _configSection {
			continue
		}
		items[key] = append(items[key], entry.Value)
	}

	return &Resolver{items: items}, nil
}

// Validate implements [kong.Resolver]. Unknown configuration keys are
// allowed: the repository may carry settings for a newer binary.
func (*Resolver) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (r *Resolver) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	k := flag.Tag.Get(_configTag)
	if k == "" {
		return nil, nil
	}

	key := git.ConfigKey(_configSection + "." + k).Canonical()
	values := r.items[key]
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	default:
		if flag.IsSlice() {
			if flag.Tag.Sep != -1 {
				return kong.JoinEscaped(values, flag.Tag.Sep), nil
			}
			return nil, fmt.Errorf("key %q has multiple values but no separator is defined", key)
		}
		return values[len(values)-1], nil
	}
}

// Apply overlays any values present in the resolver onto base, returning
// the merged configuration. Values found in git-config replace the
// corresponding default; base fields with no matching key are untouched.
func (r *Resolver) Apply(base Engine) Engine {
	if v, ok := r.int(_configSection + ".max-log-depth"); ok {
		base.MaxLogDepth = v
	}
	if v, ok := r.items[git.ConfigKey(_configSection+".trunk").Canonical()]; ok && len(v) > 0 {
		base.CanonicalTrunkNames = v
	}
	if v, ok := r.int(_configSection + ".update-retry-limit"); ok {
		base.UpdateRetryLimit = v
	}
	return base
}

func (r *Resolver) int(key string) (int, bool) {
	values, ok := r.items[git.ConfigKey(key).Canonical()]
	if !ok || len(values) == 0 {
		return 0, false
	}

	var n int
	for _, c := range values[len(values)-1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
