package dmarc

import "strings"

// parseTags splits the part of a record that follows the policy into a
// tag map. Any syntax error makes the whole remainder unusable, in which
// case ok is false and no partial map is returned.
func parseTags(s string) (map[string]string, bool) {
	s = strings.TrimPrefix(s, ";")
	s = strings.TrimSuffix(s, ";")

	tags := map[string]string{}
	if strings.Trim(s, " \t") == "" {
		return tags, true
	}

	for _, pair := range strings.Split(s, ";") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, false
		}
		key = strings.Trim(key, " \t")
		value = strings.Trim(value, " \t")

		if !validKey(key) || !validValue(value) {
			return nil, false
		}
		if _, dup := tags[key]; dup {
			return nil, false
		}
		tags[key] = value
	}
	return tags, true
}

func validKey(key string) bool {
	if key == "" || !isAlpha(key[0]) {
		return false
	}
	for i := 1; i < len(key); i++ {
		c := key[i]
		if !isAlpha(c) && !isDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

// validValue checks the boundary characters of a value: both must be
// printable ASCII other than ';'.
func validValue(value string) bool {
	if value == "" {
		return false
	}
	return isValueChar(value[0]) && isValueChar(value[len(value)-1])
}

func isValueChar(c byte) bool {
	return c >= 33 && c <= 126 && c != ';'
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
