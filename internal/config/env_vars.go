package config

import (
	"bytes"
	"fmt"
	"regexp"
)

// refPattern matches "${NAME}" or "${NAME:default}". The default segment may
// itself contain a nested "${...}" reference.
var refPattern = regexp.MustCompile(`\$\{[0-9A-Za-z_.]+(:((\$\{[^}]+\})|[^}])*)?\}`)

// literalPattern matches an escaped reference "${{NAME:default}}", used to
// emit a literal "${NAME:default}" in the output without resolving it.
var literalPattern = regexp.MustCompile(`\$\{(\{[0-9A-Za-z_.]+(:((\$\{[^}]+\})|[^}])*)?\})\}`)

// MissingEnvVars is returned when expanding a config blob references
// environment variables that have no default and are not set. Resolved
// holds the best-effort expansion with those references left empty, in case
// it's still useful for diagnosing the rest of the file.
type MissingEnvVars struct {
	Names    []string
	Resolved []byte
}

// Error implements error.
func (e *MissingEnvVars) Error() string {
	return fmt.Sprintf("config: required environment variables not set: %v", e.Names)
}

// ReplaceEnvVariables expands every "${NAME}" / "${NAME:default}" reference
// in raw by calling lookup, and unescapes "${{NAME}}" into a literal
// "${NAME}" for values that must survive expansion untouched (e.g. a
// webhook payload template that itself uses "${...}" syntax).
func ReplaceEnvVariables(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var missing []string

	expanded := refPattern.ReplaceAllFunc(raw, func(token []byte) []byte {
		inner := token[2 : len(token)-1] // strip leading "${" and trailing "}"

		var name string
		var fallback []byte
		if colon := bytes.IndexByte(inner, ':'); colon == -1 {
			name = string(inner)
		} else {
			name = string(inner[:colon])
			fallback = inner[colon+1:]
		}

		value, ok := lookup(name)
		switch {
		case !ok && fallback == nil:
			missing = append(missing, name)
			return nil
		case !ok, value == "":
			if fallback != nil {
				value = string(fallback)
			}
		}
		return bytes.ReplaceAll([]byte(value), []byte("\n"), []byte(`\n`))
	})

	expanded = literalPattern.ReplaceAll(expanded, []byte("$$$1"))

	if len(missing) > 0 {
		return nil, &MissingEnvVars{Names: missing, Resolved: expanded}
	}
	return expanded, nil
}
