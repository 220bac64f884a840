package report

import (
	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/dns"
	"github.com/firefart/dmarcsurvey/internal/route53"
	miekg "github.com/miekg/dns"
)

const (
	categoryR53Days          = "route53.days"
	categoryR53Distributions = "route53.distributions"
	categoryR53Resolvers     = "route53.resolvers"
	keySkipped               = "skipped lines"
)

var Route53 = register(&Kind{
	Name:           "route53",
	Title:          "Route 53 DMARC Query Report",
	ReferenceLabel: "Total queries",
	Reference:      lineCounter,
	Totals: []Total{
		{Label: "Distributions queried", Category: categoryR53Distributions},
		{Label: "Resolvers", Category: categoryR53Resolvers},
	},
	Sections: []Section{
		{Category: categoryMeta, Title: "Input", Header: "#"},
		{Category: categoryR53Days, Title: "DMARC queries per day", Description: "Answered TXT queries for _dmarc names of organizational domains.", Header: "Day"},
		{Category: categoryR53Distributions, Title: "DMARC queries per distribution", Header: "Distribution", Limit: 25},
		{Category: categoryR53Resolvers, Title: "DMARC queries per resolver", Header: "Resolver IP", Limit: 25},
	},
	line: route53Line,
})

func route53Line(_ *Env, t aggregate.Tally, line string) error {
	r, err := route53.Parse(line)
	if err != nil {
		t.Inc(categoryMeta, keySkipped)
		return nil
	}
	t.Inc(categoryMeta, keyLines)

	if r.QType() != miekg.TypeTXT || !r.OK() || !dns.IsDMARCName(r.Name) {
		return nil
	}
	t.Inc(categoryR53Days, r.Day())
	t.Inc(categoryR53Distributions, r.DistributionID)
	t.Inc(categoryR53Resolvers, r.IP.String())
	return nil
}
