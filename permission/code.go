package permission

import (
	"errors"
	"strings"
)

var ErrInvalidCode = errors.New("permission: code must be resource:action")

// Parse splits a permission code into resource and action. Both parts must be non-empty
// lowercase identifiers made of letters, digits, '_' or '-'; '*' is allowed as an action.
func Parse(code string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(code, ":")
	if !ok || !validPart(resource, false) || !validPart(action, true) {
		return "", "", ErrInvalidCode
	}
	return resource, action, nil
}

// Valid reports whether code parses.
func Valid(code string) bool {
	_, _, err := Parse(code)
	return err == nil
}

func validPart(s string, allowWildcard bool) bool {
	if s == "" {
		return false
	}
	if allowWildcard && s == "*" {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
