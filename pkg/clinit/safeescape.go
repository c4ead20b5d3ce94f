package clinit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/redopt/clinit/pkg/irmodel"
)

// SafeEscapeSet is the configured set of methods known not to retain or
// publish a tracked argument beyond the call. Membership is by
// declaring-type-name and method-name, not by irmodel.MethodRef pointer
// identity, since the set is built once from configuration text before
// any program is loaded.
type SafeEscapeSet map[string]struct{}

// NewSafeEscapeSet builds a set from "Type#method" formatted references.
func NewSafeEscapeSet(refs []string) SafeEscapeSet {
	s := make(SafeEscapeSet, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

func methodKey(m irmodel.MethodRef) string {
	decl := m.DeclaringType()
	if decl == nil {
		return m.Name()
	}
	return decl.Name() + "#" + m.Name()
}

// Contains reports whether m is in the safe-escape set.
func (s SafeEscapeSet) Contains(m irmodel.MethodRef) bool {
	if s == nil || m == nil {
		return false
	}
	_, ok := s[methodKey(m)]
	return ok
}

// ValidateSafeEscapes resolves every configured safe-escape reference
// against prog's declared classes before RunProgram schedules any
// analysis work, so a typo'd or stale "Type#method" string in
// configuration is caught up front rather than silently never matching
// any call site. Resolution fans out across prog's Units concurrently via
// errgroup, the same split discoverTasks uses, since Unit is specifically
// documented as the grouping that lets this scan run in parallel.
// Unresolved references are logged as warnings, not returned as errors:
// a reference naming a method that genuinely doesn't exist in this
// program (e.g. one shared across configs for several programs) is a
// configuration smell, not a fatal condition.
func ValidateSafeEscapes(ctx context.Context, prog irmodel.Program, safe SafeEscapeSet, log *logrus.Entry) error {
	if len(safe) == 0 {
		return nil
	}

	units := prog.Units()
	var resolved map[string]struct{}
	if len(units) == 0 {
		resolved = resolveSafeEscapesIn(prog.Classes(), safe)
	} else {
		var mu sync.Mutex
		resolved = make(map[string]struct{}, len(safe))
		g, gctx := errgroup.WithContext(ctx)
		for _, u := range units {
			u := u
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				local := resolveSafeEscapesIn(u.Classes(), safe)
				mu.Lock()
				for k := range local {
					resolved[k] = struct{}{}
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for ref := range safe {
		if _, ok := resolved[ref]; !ok {
			log.WithField("ref", ref).Warn("clinit: configured safe-escape method reference never resolved against the loaded program")
		}
	}
	return nil
}

// resolveSafeEscapesIn returns the subset of safe's keys that name an
// actual method declared somewhere in classes.
func resolveSafeEscapesIn(classes []irmodel.Class, safe SafeEscapeSet) map[string]struct{} {
	found := make(map[string]struct{})
	for _, c := range classes {
		t := c.Type()
		if t == nil {
			continue
		}
		for _, m := range c.Methods() {
			key := t.Name() + "#" + m.Name()
			if _, ok := safe[key]; ok {
				found[key] = struct{}{}
			}
		}
	}
	return found
}
