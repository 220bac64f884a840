package report

import (
	"errors"

	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/dmarc"
	"github.com/firefart/dmarcsurvey/internal/dns"
	"github.com/firefart/dmarcsurvey/internal/massdns"
	miekg "github.com/miekg/dns"
)

const (
	categoryInvalid        = "invalid"
	categoryInvalidReasons = "invalid.reasons"

	categoryRUADomains  = "rua.domains"
	categoryRUAErrors   = "rua.errors"
	categoryRUAExternal = "rua.external"
	categoryRUFDomains  = "ruf.domains"
	categoryRUFErrors   = "ruf.errors"
	categoryRUFExternal = "ruf.external"
)

var Invalid = register(&Kind{
	Name:           "invalid",
	Title:          "Invalid DMARC Records",
	ReferenceLabel: "Total queries",
	Reference:      lineCounter,
	Totals: []Total{
		{Label: "Distinct invalid records", Category: categoryInvalid},
	},
	Sections: []Section{
		{Category: categoryInvalidReasons, Title: "Reasons", Description: "TXT answers that look like DMARC but are not a DMARC record.", Header: "ID"},
		{Category: categoryInvalid, Title: "Most common invalid records", Header: "Record", Limit: 25},
	},
	line: invalidLine,
})

// invalidLine collects TXT answers the heuristic considers DMARC-like but
// the parser rejects.
func invalidLine(_ *Env, t aggregate.Tally, line string) error {
	doc, err := massdns.Parse(line)
	if err != nil {
		return err
	}
	t.Inc(categoryMeta, keyLines)

	if doc.QType() != miekg.TypeTXT {
		return nil
	}
	for _, txt := range doc.TXT() {
		if !dmarc.LooksLikeDMARC(txt) {
			continue
		}
		if _, ok := dmarc.Parse(txt); ok {
			continue
		}
		t.Inc(categoryInvalid, txt)
		t.Inc(categoryInvalidReasons, dmarc.ClassifyNonRecord(txt).ID)
	}
	return nil
}

// InvalidRecords returns the distinct records collected by the invalid
// report in sorted order.
func InvalidRecords(t aggregate.Tally) []string {
	return t.Keys(categoryInvalid)
}

var RUA = register(&Kind{
	Name:           "rua",
	Title:          "DMARC Report Destinations",
	ReferenceLabel: "Total domains",
	Reference:      lineCounter,
	Totals: []Total{
		{Label: "Distinct aggregate report domains", Category: categoryRUADomains},
		{Label: "Distinct failure report domains", Category: categoryRUFDomains},
	},
	Sections: []Section{
		{Category: categoryErrors, Title: "DMARC Errors", Header: "#"},
		{Category: categoryRUAExternal, Title: "Aggregate report destinations", Description: "Whether rua mailboxes are hosted by the domain itself.", Header: "Destination"},
		{Category: categoryRUAErrors, Title: "Aggregate report URI errors", Header: "Error"},
		{Category: categoryRUADomains, Title: "Aggregate report receivers", Header: "Organizational domain", Limit: 25},
		{Category: categoryRUFExternal, Title: "Failure report destinations", Description: "Whether ruf mailboxes are hosted by the domain itself.", Header: "Destination"},
		{Category: categoryRUFErrors, Title: "Failure report URI errors", Header: "Error"},
		{Category: categoryRUFDomains, Title: "Failure report receivers", Header: "Organizational domain", Limit: 25},
	},
	line: ruaLine,
})

var uriErrors = []error{
	dmarc.ErrInvalidScheme,
	dmarc.ErrEmptyEmail,
	dmarc.ErrInvalidPayload,
	dmarc.ErrInvalidPayloadSize,
	dmarc.ErrInvalidPayloadUnit,
	dmarc.ErrInvalidAddress,
}

func uriErrorKey(err error) string {
	for _, e := range uriErrors {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "other"
}

func ruaLine(env *Env, t aggregate.Tally, line string) error {
	doc, err := massdns.Parse(line)
	if err != nil {
		return err
	}
	t.Inc(categoryMeta, keyLines)

	_, rec := lookupRecord(t, doc)
	if rec == nil {
		return nil
	}
	owner := env.Orgs.OrgDomain(doc.Name)
	countDestinations(env, t, owner, rec.RUA, categoryRUADomains, categoryRUAErrors, categoryRUAExternal)
	countDestinations(env, t, owner, rec.RUF, categoryRUFDomains, categoryRUFErrors, categoryRUFExternal)
	return nil
}

func countDestinations(env *Env, t aggregate.Tally, owner string, tv dmarc.TagValue[[]string], domains, errs, external string) {
	if !tv.Explicit {
		return
	}
	for _, raw := range tv.Value {
		u, err := dmarc.ParseURI(raw)
		if err != nil {
			t.Inc(errs, uriErrorKey(err))
			continue
		}
		domain := u.Domain()
		if domain == "" {
			t.Inc(errs, "no domain")
			continue
		}
		org := env.Orgs.OrgDomain(dns.Normalize(domain))
		t.Inc(domains, org)
		if org == owner {
			t.Inc(external, "own domain")
		} else {
			t.Inc(external, "external")
		}
	}
}
