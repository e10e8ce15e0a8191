package prompt

import (
	"regexp"
	"strings"
	"unicode"
)

type entityRule struct {
	re    *regexp.Regexp
	build func(m []string) (string, bool)
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "new": true, "simple": true, "my": true, "our": true, "their": true,
	"build": true, "create": true, "make": true, "add": true, "generate": true, "basic": true, "custom": true,
	"admin": true, "public": true, "to": true, "for": true, "and": true, "with": true, "of": true,
}

var entityRules = []entityRule{
	{
		re: regexp.MustCompile(`\b(citizen|village|user|public|community|regional|youth|school|health)\s+(complaint|feedback|report|petition|survey|event|project|rating|request)s?\b`),
		build: func(m []string) (string, bool) {
			return m[1] + "_" + m[2], true
		},
	},
	{
		re: regexp.MustCompile(`\b(?:manage|track|log|submit|record)(?:s|ing)?\s+(?:the\s+|all\s+|our\s+|new\s+)?([a-z]+)`),
		build: func(m []string) (string, bool) {
			return m[1], !stopWords[m[1]]
		},
	},
	{
		re: regexp.MustCompile(`\b([a-z]+)\s+(?:form|dashboard|tracker|portal|directory|registry|system|manager)\b`),
		build: func(m []string) (string, bool) {
			return m[1], !stopWords[m[1]]
		},
	},
	{
		re: regexp.MustCompile(`\b(complaint|feedback|report|petition|survey|event|project|rating|budget|debt|investment|announcement|village)s?\b`),
		build: func(m []string) (string, bool) {
			return m[1], true
		},
	},
}

// EntityName derives the snake_case naming root for a prompt. Rules are tried
// in order and the first one that yields a usable word wins; fallback is
// returned when none does. Distinct prompts can map to the same name.
func EntityName(text, fallback string) string {
	lower := Normalize(text)
	for _, rule := range entityRules {
		for _, m := range rule.re.FindAllStringSubmatch(lower, -1) {
			name, ok := rule.build(m)
			if !ok {
				continue
			}
			if name = Snake(singular(name)); name != "" {
				return name
			}
		}
	}
	return fallback
}

func singular(word string) string {
	parts := strings.Split(word, "_")
	last := parts[len(parts)-1]
	switch {
	case last == "feedback", last == "news", last == "analytics":
	case strings.HasSuffix(last, "ss"), strings.HasSuffix(last, "us"):
	case strings.HasSuffix(last, "ies") && len(last) > 3:
		last = strings.TrimSuffix(last, "ies") + "y"
	case strings.HasSuffix(last, "s") && len(last) > 1:
		last = strings.TrimSuffix(last, "s")
	}
	parts[len(parts)-1] = last
	return strings.Join(parts, "_")
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Snake lower-cases s and joins its words with underscores.
func Snake(s string) string {
	return strings.Join(words(strings.ToLower(s)), "_")
}

// Pascal joins the words of s with each word capitalised.
func Pascal(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		b.WriteString(strings.ToUpper(w[:1]) + strings.ToLower(w[1:]))
	}
	return b.String()
}

// Camel is Pascal with a lower-case first letter.
func Camel(s string) string {
	p := Pascal(s)
	if p == "" {
		return p
	}
	return strings.ToLower(p[:1]) + p[1:]
}

// Kebab splits camel humps and word separators and joins with hyphens.
func Kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return strings.Join(words(strings.ToLower(b.String())), "-")
}
