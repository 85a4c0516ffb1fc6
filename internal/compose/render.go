package compose

import (
	"strings"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// Render substitutes values into tmpl. Every placeholder without a value is
// reported in a single TemplateError; everything that is not a placeholder is
// copied through unchanged.
func Render(tmpl string, values map[string]string) (string, error) {
	return render(tmpl, func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	})
}

func render(tmpl string, lookup func(string) (string, bool)) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))

	var missing []string
	seen := map[string]bool{}

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			out.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			out.WriteByte('}')
			i += 2
		case c == '{':
			name, ok := placeholderAt(tmpl[i+1:])
			if !ok {
				out.WriteByte(c)
				i++
				continue
			}
			if v, found := lookup(name); found {
				out.WriteString(v)
			} else if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
			i += len(name) + 2
		default:
			out.WriteByte(c)
			i++
		}
	}

	if len(missing) > 0 {
		return "", errors.TemplateError("template references placeholders with no value").
			WithContext("missing", strings.Join(missing, ", ")).
			Build()
	}
	return out.String(), nil
}

// placeholderAt returns the identifier at the start of s if it is closed by '}'.
func placeholderAt(s string) (string, bool) {
	n := 0
	for n < len(s) && isIdentByte(s[n], n == 0) {
		n++
	}
	if n == 0 || n >= len(s) || s[n] != '}' {
		return "", false
	}
	return s[:n], true
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// Placeholders lists the distinct placeholder names referenced by tmpl in
// order of first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	_, _ = render(tmpl, func(name string) (string, bool) {
		for _, n := range names {
			if n == name {
				return "", true
			}
		}
		names = append(names, name)
		return "", true
	})
	return names
}
