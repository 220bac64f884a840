package dmarc

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Warning is an advisory finding about a TXT record. Warnings describe
// record hygiene and policy strength, they never change Record.IsValid.
type Warning struct {
	ID          string
	Description string
}

func (w Warning) String() string {
	return fmt.Sprintf("WARNING %s: %s", w.ID, w.Description)
}

var (
	WarnNotRecordEmpty     = Warning{"G007", "The DMARC record string is entirely empty."}
	WarnLeadingWSP         = Warning{"PARSE_002", "The DMARC TXT record value starts with leading whitespace, making it invalid."}
	WarnNotRecordSPF       = Warning{"G012", "An SPF record (starting with 'v=spf1') was found where a DMARC record was expected."}
	WarnNotRecordUnrelated = Warning{"G011", "An unrelated TXT record (not starting with 'v=DMARC1') was found."}
	WarnUnknownTag         = Warning{"G005", "An unknown or unrecognized tag was found in the DMARC record. Unknown tags must be ignored per RFC."}
	WarnTrailingWhitespace = Warning{"G009", "The DMARC record string ends with trailing whitespace, indicating poor record hygiene."}
	WarnRemainderIgnored   = Warning{"G010", "A syntax error occurred after the 'p=' tag, causing subsequent tags to be unparseable and ignored per RFC guidance."}
	WarnNonASCII           = Warning{"G018", "Non-ASCII characters detected in the DMARC record string, which are not part of a valid URI."}
	WarnADKIMStrict        = Warning{"T008", "The 'adkim' (DKIM alignment mode) is set to 'strict'. This can be highly restrictive and may cause legitimate mail to fail DMARC."}
	WarnASPFStrict         = Warning{"T011", "The 'aspf' (SPF alignment mode) is set to 'strict'. This can be highly restrictive and may cause legitimate mail to fail DMARC."}
	WarnPctNonNumeric      = Warning{"T012", "The 'pct' (percentage) tag has a non-numeric value. It should be an integer between 0 and 100."}
	WarnPctOutOfRange      = Warning{"T013", "The 'pct' (percentage) tag has a value outside the valid 0-100 range."}
	WarnRINonNumeric       = Warning{"T018", "The 'ri' (reporting interval) tag has a non-numeric value. It should be a positive integer representing seconds."}
	WarnRINotPositive      = Warning{"T019", "The 'ri' (reporting interval) tag has a zero or negative value. It should be a positive integer representing seconds."}
	WarnRIVeryLow          = Warning{"T020", "The 'ri' (reporting interval) is set to a very low value (less than 4 hours). This may lead to an excessive number of reports."}
	WarnNoRUA              = Warning{"T023", "No 'rua' (aggregate reporting URI) tag found. No aggregate reports will be sent, limiting DMARC visibility."}
	WarnRUAMoreThanTwo     = Warning{"T028", "More than two 'rua' (aggregate reporting URIs) were found. Receivers may ignore URIs beyond the first two."}
	WarnRUFMoreThanTwo     = Warning{"T035", "More than two 'ruf' (forensic reporting URIs) were found. Receivers may ignore URIs beyond the first two."}
	WarnPctWithEnforcement = Warning{"L001", "The 'pct' (percentage) tag is not 100 while the policy is 'reject' or 'quarantine'. Full enforcement is not active."}
	WarnRUFWithoutRUA      = Warning{"L002", "Forensic reporting ('ruf' tag) is enabled, but aggregate reporting ('rua' tag) is missing."}
	WarnPolicyNone         = Warning{"POLICY_001", "The DMARC policy is 'p=none', which offers no enforcement against spoofing."}
)

const (
	lowReportingInterval = 4 * 60 * 60
	// receivers may ignore report URIs beyond this count
	maxHonouredReportTargets = 2
)

// ClassifyNonRecord explains why Parse did not accept raw as a record.
func ClassifyNonRecord(raw string) Warning {
	trimmed := strings.TrimLeft(raw, " \t")
	switch {
	case trimmed == "":
		return WarnNotRecordEmpty
	case trimmed != raw && strings.HasPrefix(trimmed, "v"):
		return WarnLeadingWSP
	case strings.HasPrefix(strings.ToLower(trimmed), "v=spf1"):
		return WarnNotRecordSPF
	}
	return WarnNotRecordUnrelated
}

// Diagnose lists the warnings that apply to a parsed record. raw is the
// string the record was parsed from. The result is sorted by ID.
func Diagnose(raw string, rec *Record) []Warning {
	var w []Warning
	add := func(cond bool, warning Warning) {
		if cond {
			w = append(w, warning)
		}
	}

	add(len(rec.UnknownTags) > 0, WarnUnknownTag)
	add(strings.TrimRight(raw, " \t") != raw, WarnTrailingWhitespace)
	add(rec.RemainderIgnored(), WarnRemainderIgnored)
	add(!isASCII(raw), WarnNonASCII)

	add(rec.ADKIM.Valid && rec.ADKIM.Value == AlignmentStrict, WarnADKIMStrict)
	add(rec.ASPF.Valid && rec.ASPF.Value == AlignmentStrict, WarnASPFStrict)

	if rec.PCT.Explicit && !rec.PCT.Valid {
		if _, ok := parseInteger(rec.PCT.Raw); !ok {
			add(true, WarnPctNonNumeric)
		} else {
			add(true, WarnPctOutOfRange)
		}
	}
	if rec.RI.Explicit {
		add(!rec.RI.Valid, WarnRINonNumeric)
		add(rec.RI.Valid && rec.RI.Value <= 0, WarnRINotPositive)
		add(rec.RI.Valid && rec.RI.Value > 0 && rec.RI.Value < lowReportingInterval, WarnRIVeryLow)
	}

	add(!rec.RUA.Explicit, WarnNoRUA)
	add(len(rec.RUA.Value) > maxHonouredReportTargets, WarnRUAMoreThanTwo)
	add(len(rec.RUF.Value) > maxHonouredReportTargets, WarnRUFMoreThanTwo)
	add(rec.RUF.Explicit && !rec.RUA.Explicit, WarnRUFWithoutRUA)

	enforcing := rec.P.Value == PolicyQuarantine || rec.P.Value == PolicyReject
	add(enforcing && rec.PCT.Valid && rec.PCT.Value != 100, WarnPctWithEnforcement)
	add(rec.P.Value == PolicyNone, WarnPolicyNone)

	sort.Slice(w, func(i, j int) bool { return w[i].ID < w[j].ID })
	return w
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
