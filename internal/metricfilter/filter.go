// Package metricfilter prunes nested epoch metrics down to an allow-list of
// variable names.
//
// A variable is matched by its key at any depth, so "loss" selects both
// train.loss and test.loss. A matched key keeps its whole subtree, since a
// variable's value is often a mapping of aggregates such as {"mean": 2.5}.
// Unmatched mappings survive only when something beneath them matched;
// unmatched scalars and sequences are dropped.
package metricfilter

import (
	"sort"
	"strings"

	"github.com/animus-labs/runlog/internal/domain"
)

// Set is an allow-list of variable names. A nil or empty Set allows everything.
type Set map[string]struct{}

// NewSet builds a Set, ignoring blank names.
func NewSet(names ...string) Set {
	if len(names) == 0 {
		return nil
	}
	s := make(Set, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			s[name] = struct{}{}
		}
	}
	if len(s) == 0 {
		return nil
	}
	return s
}

func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Filter returns a pruned deep copy of data. The result never shares
// containers with data.
func Filter(data domain.Value, allow Set) domain.Value {
	if len(allow) == 0 {
		return data.Clone()
	}
	if data.Kind() != domain.KindMapping {
		return domain.MappingValue(nil)
	}
	out, _ := prune(data, allow)
	return out
}

// prune reports whether any descendant of a mapping matched.
func prune(data domain.Value, allow Set) (domain.Value, bool) {
	fields := make(map[string]domain.Value)
	for key, child := range data.Fields() {
		if allow.Contains(key) {
			fields[key] = child.Clone()
			continue
		}
		if child.Kind() != domain.KindMapping {
			continue
		}
		if sub, ok := prune(child, allow); ok {
			fields[key] = sub
		}
	}
	return domain.MappingValue(fields), len(fields) > 0
}
