// Package typeguard enforces the unknown-type policy on filtered metrics.
package typeguard

import (
	"fmt"
	"strings"

	"github.com/animus-labs/runlog/internal/domain"
)

// Policy decides what happens to a leaf with no JSON representation.
type Policy string

const (
	PolicyError  Policy = "error"
	PolicyWarn   Policy = "warn"
	PolicyIgnore Policy = "ignore"
	PolicyCoerce Policy = "coerce"
)

// DefaultPolicy fails the append rather than losing data silently.
const DefaultPolicy = PolicyError

// ParsePolicy accepts the policy names case-insensitively; blank yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return DefaultPolicy, nil
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

func (p Policy) Validate() error {
	switch p {
	case PolicyError, PolicyWarn, PolicyIgnore, PolicyCoerce:
		return nil
	default:
		return fmt.Errorf("unsupported unknown-type policy %q", string(p))
	}
}

// UnknownTypeError is returned under PolicyError.
type UnknownTypeError struct {
	Path   string
	GoType string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown metric type %s at %s", e.GoType, e.Path)
}

// Issue records one unknown leaf that was dropped or coerced.
type Issue struct {
	Path   string
	GoType string
}

type Report struct {
	Dropped []Issue
	Coerced []Issue
}

func (r Report) Empty() bool {
	return len(r.Dropped) == 0 && len(r.Coerced) == 0
}

// Apply walks v and resolves every unknown leaf according to policy. The
// result contains no unknown leaves. Mapping keys are visited in sorted
// order so reports are stable.
func Apply(v domain.Value, policy Policy) (domain.Value, Report, error) {
	if err := policy.Validate(); err != nil {
		return domain.Value{}, Report{}, err
	}
	g := guard{policy: policy}
	out, keep, err := g.walk(v, "")
	if err != nil {
		return domain.Value{}, Report{}, err
	}
	if !keep {
		out = domain.NullValue()
	}
	return out, g.report, nil
}

type guard struct {
	policy Policy
	report Report
}

func (g *guard) walk(v domain.Value, path string) (domain.Value, bool, error) {
	switch v.Kind() {
	case domain.KindNull, domain.KindNumber, domain.KindString, domain.KindBool:
		return v, true, nil
	case domain.KindMapping:
		fields := make(map[string]domain.Value, len(v.Fields()))
		for _, key := range v.Keys() {
			child, keep, err := g.walk(v.Fields()[key], domain.JoinPath(path, key))
			if err != nil {
				return domain.Value{}, false, err
			}
			if keep {
				fields[key] = child
			}
		}
		return domain.MappingValue(fields), true, nil
	case domain.KindSequence:
		items := make([]domain.Value, 0, len(v.Items()))
		for i, item := range v.Items() {
			child, keep, err := g.walk(item, domain.IndexPath(path, i))
			if err != nil {
				return domain.Value{}, false, err
			}
			if keep {
				items = append(items, child)
			}
		}
		return domain.SequenceValue(items), true, nil
	case domain.KindUnknown:
		return g.unknown(v, path)
	}
	return domain.Value{}, false, fmt.Errorf("unhandled value kind %s at %s", v.Kind(), path)
}

func (g *guard) unknown(v domain.Value, path string) (domain.Value, bool, error) {
	issue := Issue{Path: path, GoType: domain.TypeName(v.Raw())}
	switch g.policy {
	case PolicyError:
		return domain.Value{}, false, &UnknownTypeError{Path: issue.Path, GoType: issue.GoType}
	case PolicyWarn, PolicyIgnore:
		g.report.Dropped = append(g.report.Dropped, issue)
		return domain.Value{}, false, nil
	case PolicyCoerce:
		g.report.Coerced = append(g.report.Coerced, issue)
		return domain.StringValue(fmt.Sprint(v.Raw())), true, nil
	}
	return domain.Value{}, false, fmt.Errorf("unsupported unknown-type policy %q", string(g.policy))
}
