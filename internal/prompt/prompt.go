// Package prompt fills "{name}" placeholders in prompt templates.
//
// Prompts are configurable text, so they use the brace syntax users already
// write in configuration files: "{topic}" is replaced by the value of
// topic, and "{{" / "}}" produce literal braces (needed for JSON examples
// inside a prompt).
package prompt

import (
	"fmt"
	"strings"
)

// Vars maps placeholder names to values. Values are rendered with %v.
type Vars map[string]any

// Format renders tmpl. A placeholder without a value is an error, as is an
// unmatched single brace.
func Format(tmpl string, vars Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := tmpl[i+1 : i+1+end]
			if !validName(name) {
				return "", fmt.Errorf("invalid placeholder %q at offset %d", name, i)
			}
			v, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("missing value for placeholder %q", name)
			}
			fmt.Fprint(&b, v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Validate reports a malformed template or one that uses a placeholder
// outside allowed. Configuration loading calls it so a bad prompt fails at
// startup instead of mid-run.
func Validate(tmpl string, allowed ...string) error {
	vars := make(Vars, len(allowed))
	for _, name := range allowed {
		vars[name] = ""
	}
	for _, name := range Placeholders(tmpl) {
		if _, ok := vars[name]; !ok {
			return fmt.Errorf("unknown placeholder %q (allowed: %s)", name, strings.Join(allowed, ", "))
		}
	}
	_, err := Format(tmpl, vars)
	return err
}

// Placeholders lists the distinct placeholder names used by tmpl, in order
// of first use.
func Placeholders(tmpl string) []string {
	var names []string
	seen := map[string]bool{}
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '}')
		if end < 0 {
			break
		}
		name := tmpl[i+1 : i+1+end]
		if validName(name) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i += end + 1
	}
	return names
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
