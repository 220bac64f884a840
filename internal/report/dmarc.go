package report

import (
	"strconv"
	"strings"

	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/dmarc"
	"github.com/firefart/dmarcsurvey/internal/massdns"
)

const (
	categoryMeta        = "meta"
	categoryErrors      = "errors"
	categoryPolicy      = "policy"
	categoryValidity    = "validity"
	categoryFallback    = "fallback"
	categoryDiagnostics = "diagnostics"
	categoryUnknownTags = "unknown tags"

	keyLines = "line counter"

	ErrorNoAnswer       = "no TXT answers"
	ErrorMultipleAnswer = "multiple TXT answers"
	ErrorSyntax         = "syntax of record invalid"
	ErrorPass           = "pass"
)

var DMARC = register(&Kind{
	Name:           "dmarc",
	Title:          "DMARC Report",
	ReferenceLabel: "Total domains",
	Reference:      lineCounter,
	Sections: []Section{
		{Category: categoryErrors, Title: "DMARC Errors", Description: "Outcome of looking up and parsing the DMARC record of each domain.", Header: "#"},
		{Category: categoryPolicy, Title: "DMARC Policy", Description: "Requested handling of mails failing DMARC.", Header: "p="},
		{Category: categoryValidity, Title: "DMARC Validity", Description: "Records whose tags all hold conforming values.", Header: "#"},
		{Category: categoryFallback, Title: "DMARC Fallback", Description: "Records whose tags after p= could not be parsed and were ignored.", Header: "#"},
		{Category: "sp", Title: "Subdomain Policy", Header: "sp="},
		{Category: "sp.explicit", Title: "Subdomain Policy explicit", Header: "explicit"},
		{Category: "adkim", Title: "DKIM Alignment", Header: "adkim="},
		{Category: "adkim.explicit", Title: "DKIM Alignment explicit", Header: "explicit"},
		{Category: "adkim.valid", Title: "DKIM Alignment valid", Header: "valid"},
		{Category: "aspf", Title: "SPF Alignment", Header: "aspf="},
		{Category: "aspf.explicit", Title: "SPF Alignment explicit", Header: "explicit"},
		{Category: "aspf.valid", Title: "SPF Alignment valid", Header: "valid"},
		{Category: "fo", Title: "Failure Reporting Options", Header: "fo="},
		{Category: "fo.explicit", Title: "Failure Reporting Options explicit", Header: "explicit"},
		{Category: "fo.valid", Title: "Failure Reporting Options valid", Header: "valid"},
		{Category: "pct", Title: "Percentage", Header: "pct=", Limit: 20},
		{Category: "pct.explicit", Title: "Percentage explicit", Header: "explicit"},
		{Category: "pct.valid", Title: "Percentage valid", Header: "valid"},
		{Category: "pct.values", Title: "Percentage distribution", Description: "Explicit and valid pct values only.", Distribution: true},
		{Category: "rf", Title: "Report Format", Header: "rf="},
		{Category: "rf.explicit", Title: "Report Format explicit", Header: "explicit"},
		{Category: "rf.valid", Title: "Report Format valid", Header: "valid"},
		{Category: "ri", Title: "Report Interval", Header: "ri=", Limit: 20},
		{Category: "ri.explicit", Title: "Report Interval explicit", Header: "explicit"},
		{Category: "ri.valid", Title: "Report Interval valid", Header: "valid"},
		{Category: "ri.values", Title: "Report Interval distribution", Description: "Explicit and valid ri values only.", Distribution: true},
		{Category: "rua.explicit", Title: "Aggregate Reports requested", Header: "explicit"},
		{Category: "ruf.explicit", Title: "Failure Reports requested", Header: "explicit"},
		{Category: categoryUnknownTags, Title: "Unknown Tags", Header: "tag", Limit: 20},
		{Category: categoryDiagnostics, Title: "DMARC Diagnostics", Description: "Advisory findings, they do not affect validity.", Header: "ID"},
	},
	line: dmarcLine,
})

// dmarcCandidates returns the TXT answers that may be DMARC records. The
// parser allows whitespace after v, so only the first character counts.
func dmarcCandidates(doc *massdns.Document) []string {
	var out []string
	for _, txt := range doc.TXT() {
		if strings.HasPrefix(txt, "v") {
			out = append(out, txt)
		}
	}
	return out
}

// lookupRecord classifies the DMARC answers of doc into t's errors
// category and returns the record when there is exactly one that parses.
func lookupRecord(t aggregate.Tally, doc *massdns.Document) (string, *dmarc.Record) {
	candidates := dmarcCandidates(doc)
	switch len(candidates) {
	case 0:
		t.Inc(categoryErrors, ErrorNoAnswer)
		return "", nil
	case 1:
	default:
		t.Inc(categoryErrors, ErrorMultipleAnswer)
		return "", nil
	}
	raw := candidates[0]
	rec, ok := dmarc.Parse(raw)
	if !ok {
		t.Inc(categoryErrors, ErrorSyntax)
		return raw, nil
	}
	t.Inc(categoryErrors, ErrorPass)
	return raw, rec
}

func dmarcLine(_ *Env, t aggregate.Tally, line string) error {
	doc, err := massdns.Parse(line)
	if err != nil {
		return err
	}
	t.Inc(categoryMeta, keyLines)

	raw, rec := lookupRecord(t, doc)
	if rec == nil {
		if raw != "" {
			t.Inc(categoryDiagnostics, dmarc.ClassifyNonRecord(raw).ID)
		}
		return nil
	}

	t.Inc(categoryPolicy, rec.P.String())
	if rec.IsValid() {
		t.Inc(categoryValidity, "valid")
	} else {
		t.Inc(categoryValidity, "invalid")
	}
	if rec.RemainderIgnored() {
		t.Inc(categoryFallback, "remainder ignored")
	} else {
		t.Inc(categoryFallback, "parsed")
	}

	if rec.SP.Explicit {
		countTag(t, "sp", rec.SP)
	} else {
		t.Inc("sp.explicit", "false")
	}
	countTag(t, "adkim", rec.ADKIM)
	countTag(t, "aspf", rec.ASPF)
	countTag(t, "fo", rec.FO)
	countTag(t, "pct", rec.PCT)
	countTag(t, "rf", rec.RF)
	countTag(t, "ri", rec.RI)
	t.Inc("rua.explicit", strconv.FormatBool(rec.RUA.Explicit))
	t.Inc("ruf.explicit", strconv.FormatBool(rec.RUF.Explicit))

	if rec.PCT.Explicit && rec.PCT.Valid {
		t.Inc("pct.values", strconv.Itoa(rec.PCT.Value))
	}
	if rec.RI.Explicit && rec.RI.Valid {
		t.Inc("ri.values", strconv.Itoa(rec.RI.Value))
	}

	for tag := range rec.UnknownTags {
		t.Inc(categoryUnknownTags, tag)
	}
	for _, w := range dmarc.Diagnose(raw, rec) {
		t.Inc(categoryDiagnostics, w.ID)
	}
	return nil
}

func countTag[T any](t aggregate.Tally, name string, tv dmarc.TagValue[T]) {
	t.Inc(name, tv.String())
	t.Inc(name+".explicit", strconv.FormatBool(tv.Explicit))
	t.Inc(name+".valid", strconv.FormatBool(tv.Valid))
}
