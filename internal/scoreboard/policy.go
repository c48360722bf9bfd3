package scoreboard

import (
	"fmt"
	"strings"
)

// Policy decides how a repeated observation of the same (player, field)
// combines with the value already recorded.
type Policy int

const (
	Sum Policy = iota
	Max
	Latest
	Min
	First
)

var policyNames = map[Policy]string{
	Sum:    "SUM",
	Max:    "MAX",
	Latest: "LATEST",
	Min:    "MIN",
	First:  "FIRST",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy resolves a policy name, case-insensitively.
func ParsePolicy(name string) (Policy, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for p, n := range policyNames {
		if n == upper {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown merge policy %q (want SUM, MAX, LATEST, MIN or FIRST)", name)
}

// ParseOverrides reads a "field=POLICY,field=POLICY" list.
func ParseOverrides(spec string) (map[string]Policy, error) {
	out := make(map[string]Policy)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, name, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("malformed field policy %q", part)
		}
		p, err := ParsePolicy(name)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[strings.TrimSpace(field)] = p
	}
	return out, nil
}

// merge combines the stored value with a new observation.
func (p Policy) merge(old, v int64) int64 {
	switch p {
	case Sum:
		return old + v
	case Max:
		return max(old, v)
	case Min:
		return min(old, v)
	case First:
		return old
	default:
		return v
	}
}
