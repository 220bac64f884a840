package dmarc

import "strings"

// Parse parses a DMARC TXT record as published in DNS.
//
// The record must start with "v=DMARC1;p=<policy>" (whitespace is allowed
// around the separators but not before the v). If it does not, ok is
// false and the string is not a DMARC record. Once the prefix matched a
// record is always returned: a syntax error in the remaining tags makes
// the parser fall back to the defaults as required by RFC 7489 section
// 6.3, and tags with unusable values are marked invalid.
func Parse(s string) (rec *Record, ok bool) {
	rest, ok := consume(s, false, "v")
	if !ok {
		return nil, false
	}
	for _, token := range []string{"=", "DMARC1", ";", "p", "="} {
		rest, ok = consume(rest, true, token)
		if !ok {
			return nil, false
		}
	}

	var policy Policy
	for _, p := range Policies {
		if strings.HasPrefix(rest, string(p)) {
			policy = p
			rest = rest[len(p):]
			break
		}
	}
	if policy == "" {
		return nil, false
	}

	tags, ok := parseTags(rest)
	if !ok {
		rec = newRecord(map[string]string{"p": string(policy)})
		rec.remainderIgnored = true
		return rec, true
	}
	tags["p"] = string(policy)
	return newRecord(tags), true
}

// consume removes token from the start of s. With skipWSP, spaces and
// tabs in front of the token are dropped first.
func consume(s string, skipWSP bool, token string) (string, bool) {
	if skipWSP {
		s = strings.TrimLeft(s, " \t")
	}
	if !strings.HasPrefix(s, token) {
		return "", false
	}
	return s[len(token):], true
}
