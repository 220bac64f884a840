package dmarc

import (
	"math"
	"math/big"
	"strings"
)

const (
	defaultPercentage = 100
	defaultInterval   = 86400
)

var knownTags = map[string]bool{
	"v":     true,
	"p":     true,
	"sp":    true,
	"adkim": true,
	"aspf":  true,
	"fo":    true,
	"pct":   true,
	"rf":    true,
	"ri":    true,
	"rua":   true,
	"ruf":   true,
}

// Record is a parsed DMARC policy record. Every known tag is populated,
// absent tags carry their RFC 7489 default. Records are only created by
// Parse.
type Record struct {
	V     TagValue[string]
	P     TagValue[Policy]
	SP    TagValue[Policy]
	ADKIM TagValue[Alignment]
	ASPF  TagValue[Alignment]
	FO    TagValue[[]string]
	PCT   TagValue[int]
	RF    TagValue[[]string]
	RI    TagValue[int]
	RUA   TagValue[[]string]
	RUF   TagValue[[]string]

	// UnknownTags holds tags that are not defined for DMARC1. They are
	// kept for inspection and never affect validity.
	UnknownTags map[string]string

	remainderIgnored bool
}

// newRecord builds a record from a tag map that is known to contain a
// valid p tag.
func newRecord(tags map[string]string) *Record {
	r := &Record{
		V:           explicit("DMARC1", "DMARC1", true),
		P:           explicit(tags["p"], Policy(tags["p"]), true),
		SP:          defaulted(Policy("")),
		ADKIM:       defaulted(AlignmentRelaxed),
		ASPF:        defaulted(AlignmentRelaxed),
		FO:          defaulted([]string{"0"}),
		PCT:         defaulted(defaultPercentage),
		RF:          defaulted([]string{ReportFormatAFRF}),
		RI:          defaulted(defaultInterval),
		RUA:         defaulted([]string(nil)),
		RUF:         defaulted([]string(nil)),
		UnknownTags: map[string]string{},
	}

	if raw, ok := tags["sp"]; ok {
		r.SP = explicit(raw, Policy(raw), Policy(raw).valid())
	}
	if raw, ok := tags["adkim"]; ok {
		r.ADKIM = explicit(raw, Alignment(raw), Alignment(raw).valid())
	}
	if raw, ok := tags["aspf"]; ok {
		r.ASPF = explicit(raw, Alignment(raw), Alignment(raw).valid())
	}
	if raw, ok := tags["fo"]; ok {
		r.FO = explicit(raw, splitList(raw, ":", false), allIn(raw, "0", "1", "d", "s"))
	}
	if raw, ok := tags["pct"]; ok {
		pct, ok := parseInteger(raw)
		if !ok || pct < 0 || pct > 100 {
			r.PCT = explicit(raw, 0, false)
		} else {
			r.PCT = explicit(raw, pct, true)
		}
	}
	if raw, ok := tags["rf"]; ok {
		r.RF = explicit(raw, splitList(raw, ":", false), allIn(raw, ReportFormatAFRF))
	}
	if raw, ok := tags["ri"]; ok {
		ri, ok := parseInteger(raw)
		r.RI = explicit(raw, ri, ok)
	}
	// report URIs are validated by ParseURI, not here
	if raw, ok := tags["rua"]; ok {
		r.RUA = explicit(raw, splitList(raw, ",", true), true)
	}
	if raw, ok := tags["ruf"]; ok {
		r.RUF = explicit(raw, splitList(raw, ",", true), true)
	}

	for k, v := range tags {
		if !knownTags[k] {
			r.UnknownTags[k] = v
		}
	}
	return r
}

// parseInteger accepts a decimal integer with an optional sign and single
// underscores between digits, of any magnitude. Values beyond the int
// range are clamped to math.MinInt or math.MaxInt.
func parseInteger(raw string) (int, bool) {
	digits := strings.TrimLeft(raw, "+-")
	if len(raw)-len(digits) > 1 || digits == "" {
		return 0, false
	}
	if digits[0] == '_' || digits[len(digits)-1] == '_' || strings.Contains(digits, "__") {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) && digits[i] != '_' {
			return 0, false
		}
	}

	n, ok := new(big.Int).SetString(raw[:len(raw)-len(digits)]+strings.ReplaceAll(digits, "_", ""), 10)
	if !ok {
		return 0, false
	}
	switch {
	case n.Cmp(maxInt) > 0:
		return math.MaxInt, true
	case n.Cmp(minInt) < 0:
		return math.MinInt, true
	}
	return int(n.Int64()), true
}

var (
	maxInt = big.NewInt(math.MaxInt)
	minInt = big.NewInt(math.MinInt)
)

func splitList(raw, sep string, trim bool) []string {
	parts := strings.Split(raw, sep)
	if trim {
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
	}
	return parts
}

func allIn(raw string, allowed ...string) bool {
	for _, part := range strings.Split(raw, ":") {
		found := false
		for _, a := range allowed {
			if part == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsValid reports whether every tag of the record holds a conforming
// value. It is computed on each call.
func (r *Record) IsValid() bool {
	return r.V.Valid &&
		r.P.Valid &&
		r.SP.Valid &&
		r.ADKIM.Valid &&
		r.ASPF.Valid &&
		r.FO.Valid &&
		r.PCT.Valid &&
		r.RF.Valid &&
		r.RI.Valid &&
		r.RUA.Valid &&
		r.RUF.Valid
}

// RemainderIgnored reports whether the tags after p= could not be parsed
// and the record fell back to defaults.
func (r *Record) RemainderIgnored() bool {
	return r.remainderIgnored
}

// Equal compares the policy tags of two records. The version and unknown
// tags are not part of the comparison.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.P.Equal(o.P) &&
		r.SP.Equal(o.SP) &&
		r.ADKIM.Equal(o.ADKIM) &&
		r.ASPF.Equal(o.ASPF) &&
		r.FO.Equal(o.FO) &&
		r.PCT.Equal(o.PCT) &&
		r.RF.Equal(o.RF) &&
		r.RI.Equal(o.RI) &&
		r.RUA.Equal(o.RUA) &&
		r.RUF.Equal(o.RUF)
}

// Normalize serializes the record back to tag=value form. Only v, p and
// explicit tags are written. The output is meant for humans, it is not
// guaranteed to match the input.
func (r *Record) Normalize() string {
	var b strings.Builder
	write := func(tag, value string) {
		b.WriteString(tag)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteString("; ")
	}
	write("v", r.V.Value)
	write("p", r.P.String())
	if r.ADKIM.Explicit {
		write("adkim", r.ADKIM.String())
	}
	if r.ASPF.Explicit {
		write("aspf", r.ASPF.String())
	}
	if r.FO.Explicit {
		write("fo", strings.Join(r.FO.Value, ":"))
	}
	if r.PCT.Explicit {
		write("pct", r.PCT.String())
	}
	if r.RF.Explicit {
		write("rf", strings.Join(r.RF.Value, ":"))
	}
	if r.RI.Explicit {
		write("ri", r.RI.String())
	}
	if r.RUA.Explicit {
		write("rua", strings.Join(r.RUA.Value, ","))
	}
	if r.RUF.Explicit {
		write("ruf", strings.Join(r.RUF.Value, ","))
	}
	if r.SP.Explicit {
		write("sp", r.SP.String())
	}
	return strings.TrimSpace(b.String())
}
