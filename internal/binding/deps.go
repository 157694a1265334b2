package binding

import (
	"reflect"
	"strings"

	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/expr"

	"github.com/samber/lo"
)

// Mode is the effective mode of d; an empty or unknown mode is inferred
// from the expression text.
func Mode(d domain.BindingDefinition) domain.BindingMode {
	if m := d.Mode.Normalize(); m != "" {
		return m
	}
	return expr.Classify(d.Expression)
}

// Dependencies returns the declared dependencies of d, or the fields its
// expression and transform read when none are declared. Names in modules
// are left out.
func Dependencies(d domain.BindingDefinition, modules []string) []string {
	if len(d.Dependencies) > 0 {
		return append([]string(nil), d.Dependencies...)
	}
	var deps []string
	switch Mode(d) {
	case domain.ModeLiteral:
	case domain.ModeField, domain.ModeTwoWay:
		deps = append(deps, strings.TrimSpace(d.Expression))
	default:
		if p, err := expr.Compile(d.Expression); err == nil {
			deps = append(deps, p.Fields()...)
		}
	}
	if strings.TrimSpace(d.Transform) != "" {
		if p, err := expr.Compile(d.Transform); err == nil {
			deps = append(deps, p.Fields()...)
		}
	}
	deps = lo.Uniq(lo.Without(deps, modules...))
	if len(deps) == 0 {
		return nil
	}
	return deps
}

// touches reports whether any dependency path mentions a changed field,
// either as a whole or as one of its hops.
func touches(deps, changed []string) bool {
	for _, dep := range deps {
		hops, err := entity.ParsePath(dep)
		if err != nil {
			hops = []string{dep}
		}
		for _, c := range changed {
			if dep == c || lo.Contains(hops, c) {
				return true
			}
		}
	}
	return false
}

// activeDefs keeps the last definition per key, in first-seen key order.
func activeDefs(defs []domain.BindingDefinition) []domain.BindingDefinition {
	index := map[string]int{}
	var out []domain.BindingDefinition
	for _, d := range defs {
		if i, ok := index[d.Key()]; ok {
			out[i] = d
			continue
		}
		index[d.Key()] = len(out)
		out = append(out, d)
	}
	return out
}

func equalValues(a, b any) bool { return reflect.DeepEqual(a, b) }
