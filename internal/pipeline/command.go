package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\(\((.*?)\)\)`)

// ExpandCommand replaces each ((name)) in template with the single-quoted path
// that resolve returns for name. Single quotes inside a path are written as
// '\'' so the result is safe to hand to a POSIX shell.
func ExpandCommand(template string, resolve func(name string) (string, error)) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template, nil
	}
	var b strings.Builder
	b.Grow(len(template) + 32*len(matches))
	last := 0
	for _, m := range matches {
		name := strings.TrimSpace(template[m[2]:m[3]])
		path, err := resolve(name)
		if err != nil {
			return "", fmt.Errorf("placeholder ((%s)): %w", name, err)
		}
		b.WriteString(template[last:m[0]])
		b.WriteString(ShellQuote(path))
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

// Placeholders lists the pipe names referenced by template in order of
// appearance, without duplicates.
func Placeholders(template string) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
