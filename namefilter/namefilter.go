// Package namefilter implements the name filter (spec.md §4.1): a service
// name is indexed iff some allow-list prefix is a prefix of it, it does not
// appear in the deny-list, and it is not the mapper's own name.
package namefilter

import (
	"strings"
	"sync/atomic"
)

// Filter decides which bus connections get indexed. It is safe for
// concurrent reads via Allows while Reload installs a new configuration,
// since config reload (triggered by SIGHUP / fsnotify, see cmd/mapperd) runs
// on a different goroutine than the event loop that calls Allows.
type Filter struct {
	self string
	cfg  atomic.Pointer[config]
}

type config struct {
	allowPrefixes []string
	denyNames     map[string]bool
}

// New constructs a Filter for the given self name (never indexed),
// allow-list prefixes, and deny-list of exact names.
func New(self string, allowPrefixes, denyNames []string) *Filter {
	f := &Filter{self: self}
	f.Reload(allowPrefixes, denyNames)
	return f
}

// Reload atomically replaces the allow/deny lists, e.g. after the config
// file changes.
func (f *Filter) Reload(allowPrefixes, denyNames []string) {
	deny := make(map[string]bool, len(denyNames))
	for _, n := range denyNames {
		deny[n] = true
	}
	f.cfg.Store(&config{
		allowPrefixes: append([]string(nil), allowPrefixes...),
		denyNames:     deny,
	})
}

// Allows reports whether name should be indexed: some allow prefix is a
// prefix of name, name is not denied, and name is not the mapper itself.
// It short-circuits on the first failing check, since it runs on every
// signal (spec.md §4.1).
func (f *Filter) Allows(name string) bool {
	if name == "" || name == f.self {
		return false
	}
	cfg := f.cfg.Load()
	if cfg.denyNames[name] {
		return false
	}
	for _, prefix := range cfg.allowPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
