// Package massdns decodes the ndjson output of massdns resolver runs.
package massdns

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	miekg "github.com/miekg/dns"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Answer is a single resource record of a response section.
type Answer struct {
	TTL   uint32 `json:"ttl"`
	Type  string `json:"type"`
	Class string `json:"class"`
	Name  string `json:"name"`
	Data  string `json:"data"`
}

// RRType returns the numeric record type, or dns.TypeNone when unknown.
func (a Answer) RRType() uint16 {
	return rrType(a.Type)
}

type Data struct {
	Answers     []Answer `json:"answers"`
	Authorities []Answer `json:"authorities"`
	Additionals []Answer `json:"additionals"`
}

// Document is one line of massdns ndjson output. Timeouts and other
// resolver failures carry Error and no Status.
type Document struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Class    string   `json:"class"`
	Status   string   `json:"status"`
	Error    string   `json:"error"`
	Proto    string   `json:"proto"`
	Resolver string   `json:"resolver"`
	Flags    []string `json:"flags"`
	Data     Data     `json:"data"`
}

// Parse decodes a single ndjson line.
func Parse(line string) (*Document, error) {
	var doc Document
	if err := json.UnmarshalFromString(line, &doc); err != nil {
		return nil, fmt.Errorf("could not decode massdns document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("massdns document without name")
	}
	return &doc, nil
}

// OK reports whether the query was answered with NOERROR.
func (d *Document) OK() bool {
	return d.Error == "" && d.Rcode() == miekg.RcodeSuccess
}

// Rcode returns the numeric response code or -1 when the query failed
// before a response was received.
func (d *Document) Rcode() int {
	if d.Error != "" || d.Status == "" {
		return -1
	}
	rcode, ok := miekg.StringToRcode[strings.ToUpper(d.Status)]
	if !ok {
		return -1
	}
	return rcode
}

// QType returns the numeric query type, or dns.TypeNone when unknown.
func (d *Document) QType() uint16 {
	return rrType(d.Type)
}

// AnswersOf returns the data of all answers of the given type.
func (d *Document) AnswersOf(qtype uint16) []string {
	var out []string
	for _, a := range d.Data.Answers {
		if a.RRType() == qtype {
			out = append(out, a.Data)
		}
	}
	return out
}

// TXT returns the TXT answer strings with their character-strings joined.
func (d *Document) TXT() []string {
	out := d.AnswersOf(miekg.TypeTXT)
	for i := range out {
		out[i] = UnquoteTXT(out[i])
	}
	return out
}

// UnquoteTXT joins the quoted character-strings of TXT presentation data,
// e.g. `"v=DMARC1; " "p=none"`. Data that does not start with a quote is
// returned unchanged.
func UnquoteTXT(s string) string {
	if !strings.HasPrefix(s, `"`) {
		return s
	}
	var b strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
		case c == '\\' && i+1 < len(s):
			if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
				b.WriteByte((s[i+1]-'0')*100 + (s[i+2]-'0')*10 + (s[i+3] - '0'))
				i += 3
				continue
			}
			i++
			b.WriteByte(s[i])
		case quoted:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func rrType(s string) uint16 {
	if t, ok := miekg.StringToType[strings.ToUpper(s)]; ok {
		return t
	}
	return miekg.TypeNone
}
