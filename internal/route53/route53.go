// Package route53 parses Amazon Route 53 DNS query log lines.
package route53

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	miekg "github.com/miekg/dns"
)

const fieldCount = 11

var ErrFieldCount = errors.New("wrong number of fields")

// Record is one logged query.
type Record struct {
	Date           time.Time
	Version        string
	HostedZone     string
	DistributionID string
	Name           string
	Type           string
	ResponseCode   string
	Protocol       string
	EdgeLocation   string
	IP             netip.Addr
	Net            string
}

// Parse splits a log line into its eleven space separated fields.
func Parse(line string) (*Record, error) {
	parts := strings.Split(strings.TrimSpace(line), " ")
	if len(parts) != fieldCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(parts), fieldCount)
	}

	date, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("could not parse query date: %w", err)
	}
	ip, err := netip.ParseAddr(parts[9])
	if err != nil {
		return nil, fmt.Errorf("could not parse resolver ip: %w", err)
	}

	return &Record{
		Date:           date,
		Version:        parts[1],
		HostedZone:     parts[2],
		DistributionID: parts[3],
		Name:           parts[4],
		Type:           parts[5],
		ResponseCode:   parts[6],
		Protocol:       parts[7],
		EdgeLocation:   parts[8],
		IP:             ip,
		Net:            parts[10],
	}, nil
}

// Day returns the UTC date of the query as YYYY-MM-DD.
func (r *Record) Day() string {
	return r.Date.UTC().Format(time.DateOnly)
}

func (r *Record) QType() uint16 {
	if t, ok := miekg.StringToType[r.Type]; ok {
		return t
	}
	return miekg.TypeNone
}

// OK reports whether the query was answered with NOERROR.
func (r *Record) OK() bool {
	rcode, ok := miekg.StringToRcode[r.ResponseCode]
	return ok && rcode == miekg.RcodeSuccess
}
