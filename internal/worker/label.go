package worker

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label renders a process name such as "pipewright file-source <(in) >(a b)".
func Label(worker string, readers, writers []string) string {
	var b strings.Builder
	b.WriteString("pipewright ")
	b.WriteString(Dasherize(worker))
	if len(readers) > 0 {
		b.WriteString(" <(")
		b.WriteString(strings.Join(readers, " "))
		b.WriteByte(')')
	}
	if len(writers) > 0 {
		b.WriteString(" >(")
		b.WriteString(strings.Join(writers, " "))
		b.WriteByte(')')
	}
	return b.String()
}

// Dasherize turns "FileSource", "file_source" or "HTTPSink" into
// "file-source" and "http-sink".
func Dasherize(name string) string {
	runes := []rune(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(runes) + 4)
	prevDash := true
	for i, r := range runes {
		if r == '_' || r == ' ' || r == '-' {
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
			continue
		}
		if unicode.IsUpper(r) && !prevDash && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('-')
			}
		}
		b.WriteRune(r)
		prevDash = false
	}
	return strings.TrimSuffix(cases.Lower(language.Und).String(b.String()), "-")
}
