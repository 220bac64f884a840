package dmarc

import "regexp"

// heuristicRegex matches a v= assignment at the start of the text or the
// word DMARC, both tolerating noise characters between the letters. \b is
// an ASCII word boundary: a non-ASCII letter next to DMARC still counts as
// a boundary, so "éDMARC" matches.
var heuristicRegex = regexp.MustCompile(`(?i)(^[^a-z]*v[^a-z]*=)|(\bD[^a-z]*M[^a-z]*A[^a-z]*R[^a-z]*C\b)`)

// LooksLikeDMARC is a cheap pre-filter for bulk scans. It is approximate
// in both directions and must not replace Parse where completeness
// matters.
func LooksLikeDMARC(text string) bool {
	return heuristicRegex.MatchString(text)
}
