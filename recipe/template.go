package recipe

import (
	"fmt"
	"regexp"

	"github.com/sciagent/sci-agent/environment"
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// maxSubstitutionPasses bounds the fixed-point loop so a template that
// genuinely cycles (A references B, B references A) fails instead of
// looping forever; any finite-cycle-free template converges well before
// this many passes.
const maxSubstitutionPasses = 64

// substituteValue walks v, substituting {{NAME}} placeholders in any string
// it finds (recursively through slices and maps), resolving names first
// against overrides and then against env. Non-string, non-collection values
// pass through unchanged.
func substituteValue(v any, overrides map[string]any, env *environment.Environment) (any, error) {
	switch t := v.(type) {
	case string:
		return substituteString(t, overrides, env)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			sub, err := substituteValue(elem, overrides, env)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			sub, err := substituteValue(elem, overrides, env)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

// substituteString resolves every {{NAME}} placeholder in s, repeating to a
// fixed point so that a resolved value which itself contains a placeholder
// (nested references) is fully expanded.
func substituteString(s string, overrides map[string]any, env *environment.Environment) (string, error) {
	for pass := 0; pass < maxSubstitutionPasses; pass++ {
		if !placeholderRe.MatchString(s) {
			return s, nil
		}

		var resolveErr error
		next := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
			name := placeholderRe.FindStringSubmatch(m)[1]
			if v, ok := overrides[name]; ok {
				return fmt.Sprintf("%v", v)
			}
			if v, ok := env.Get(name); ok {
				return fmt.Sprintf("%v", v)
			}
			if resolveErr == nil {
				resolveErr = &ErrUnresolvedTemplate{Name: name}
			}
			return m
		})
		if resolveErr != nil {
			return "", resolveErr
		}
		if next == s {
			return next, nil
		}
		s = next
	}
	return "", fmt.Errorf("recipe: template %q did not converge after %d passes", s, maxSubstitutionPasses)
}
