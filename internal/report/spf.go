package report

import (
	"strconv"
	"strings"

	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/dns"
	"github.com/firefart/dmarcsurvey/internal/massdns"
	miekg "github.com/miekg/dns"
)

const (
	categorySPFDomains  = "spf.domains"
	categorySPFAll      = "spf.all"
	categorySPFRecords  = "spf.records"
	categoryMXDomains   = "mx.domains"
	categoryMXTargets   = "mx.targets"
	categoryMXPerDomain = "mx.answers"
)

var spfAllMechanisms = map[string]bool{
	"-all": true,
	"~all": true,
	"?all": true,
	"+all": true,
}

var SPF = register(&Kind{
	Name:           "spf",
	Title:          "SPF Report",
	ReferenceLabel: "Applicable domains",
	Reference: func(t aggregate.Tally) int64 {
		return int64(len(t[categorySPFDomains]))
	},
	Sections: []Section{
		{Category: categorySPFRecords, Title: "SPF records per domain", Description: "Number of v=spf1 TXT answers of each answered organizational domain.", Header: "Records"},
		{Category: categorySPFAll, Title: "SPF all mechanism", Description: "Trailing all mechanism of SPF records. The sum percentage is relative to all successful domain queries.", Header: "Mechanism"},
	},
	line: spfLine,
})

func spfLine(env *Env, t aggregate.Tally, line string) error {
	doc, err := massdns.Parse(line)
	if err != nil {
		return err
	}
	t.Inc(categoryMeta, keyLines)

	name := dns.Normalize(doc.Name)
	if !doc.OK() || doc.QType() != miekg.TypeTXT || env.Orgs.OrgDomain(name) != name {
		return nil
	}
	if len(doc.Data.Answers) == 0 {
		return nil
	}
	t.Inc(categorySPFDomains, name)

	records := 0
	for _, txt := range doc.TXT() {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		records++
		fragments := strings.Split(txt, " ")
		if last := fragments[len(fragments)-1]; spfAllMechanisms[last] {
			t.Inc(categorySPFAll, last)
		} else {
			t.Inc(categorySPFAll, "other")
		}
	}
	t.Inc(categorySPFRecords, strconv.Itoa(records))
	return nil
}

var MX = register(&Kind{
	Name:           "mx",
	Title:          "MX Report",
	ReferenceLabel: "Total queries",
	Reference:      lineCounter,
	Totals: []Total{
		{Label: "Domains with MX records", Category: categoryMXDomains},
		{Label: "Distinct MX targets", Category: categoryMXTargets},
	},
	Sections: []Section{
		{Category: categoryMXPerDomain, Title: "MX answers per domain", Description: "Number of MX answers of each answered MX query.", Distribution: true},
		{Category: categoryMXTargets, Title: "Most used MX targets", Header: "Target", Limit: 25},
	},
	line: mxLine,
})

func mxLine(_ *Env, t aggregate.Tally, line string) error {
	doc, err := massdns.Parse(line)
	if err != nil {
		return err
	}
	t.Inc(categoryMeta, keyLines)

	if doc.QType() != miekg.TypeMX || !doc.OK() {
		return nil
	}
	targets := doc.AnswersOf(miekg.TypeMX)
	if len(targets) == 0 {
		return nil
	}
	t.Inc(categoryMXDomains, dns.Normalize(doc.Name))
	t.Inc(categoryMXPerDomain, strconv.Itoa(len(targets)))
	for _, target := range targets {
		t.Inc(categoryMXTargets, mxHost(target))
	}
	return nil
}

// mxHost returns the exchange of MX presentation data "10 mx.example.com.".
func mxHost(data string) string {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return ""
	}
	return dns.Normalize(fields[len(fields)-1])
}
