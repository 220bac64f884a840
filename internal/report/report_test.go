package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/partition"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(name, qtype, status string, answers ...[2]string) string {
	list := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		list = append(list, map[string]any{"ttl": 300, "type": a[0], "class": "IN", "name": name, "data": a[1]})
	}
	b, err := json.Marshal(map[string]any{
		"name":   name,
		"type":   qtype,
		"class":  "IN",
		"status": status,
		"data":   map[string]any{"answers": list},
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}

func txt(name string, records ...string) string {
	answers := make([][2]string, len(records))
	for i, r := range records {
		answers[i] = [2]string{"TXT", r}
	}
	return doc(name, "TXT", "NOERROR", answers...)
}

func dmarcLines() []string {
	return []string{
		txt("_dmarc.a.de.", "v=DMARC1;p=reject;rua=mailto:d@a.de"),
		txt("_dmarc.b.de.", "v=DMARC1;p=none;pct=150"),
		txt("_dmarc.c.de.", "v=DMARC1;p=quarantine;pct=50;ri=3600;foo=bar"),
		txt("_dmarc.d.de.", "v=DMARC1;p=none!!!garbage"),
		txt("_dmarc.e.de.", "v=DMARC1;p=none", "v=DMARC1;p=reject"),
		txt("_dmarc.f.de.", "hello"),
		txt("_dmarc.g.de.", "v=spf1 -all"),
		doc("_dmarc.h.de.", "TXT", "NXDOMAIN"),
		"",
	}
}

func TestDMARCReport(t *testing.T) {
	t.Parallel()

	got, err := Lines(DMARC, NewEnv(), dmarcLines())
	require.NoError(t, err)

	assert.Equal(t, int64(8), got.Get(categoryMeta, keyLines))
	assert.Equal(t, map[string]int64{
		ErrorPass:           4,
		ErrorMultipleAnswer: 1,
		ErrorNoAnswer:       2,
		ErrorSyntax:         1,
	}, got[categoryErrors])
	assert.Equal(t, map[string]int64{"reject": 1, "none": 2, "quarantine": 1}, got[categoryPolicy])
	assert.Equal(t, map[string]int64{"valid": 3, "invalid": 1}, got[categoryValidity])
	assert.Equal(t, map[string]int64{"parsed": 3, "remainder ignored": 1}, got[categoryFallback])
	assert.Equal(t, map[string]int64{
		"POLICY_001": 2,
		"T023":       3,
		"T013":       1,
		"G005":       1,
		"T020":       1,
		"L001":       1,
		"G010":       1,
		"G012":       1,
	}, got[categoryDiagnostics])

	assert.Equal(t, map[string]int64{"100": 2, "150": 1, "50": 1}, got["pct"])
	assert.Equal(t, map[string]int64{"true": 2, "false": 2}, got["pct.explicit"])
	assert.Equal(t, map[string]int64{"true": 3, "false": 1}, got["pct.valid"])
	assert.Equal(t, map[string]int64{"50": 1}, got["pct.values"])
	assert.Equal(t, map[string]int64{"3600": 1}, got["ri.values"])
	assert.Equal(t, map[string]int64{"r": 4}, got["adkim"])
	assert.Equal(t, map[string]int64{"false": 4}, got["sp.explicit"])
	assert.Equal(t, map[string]int64{"true": 1, "false": 3}, got["rua.explicit"])
	assert.Equal(t, map[string]int64{"foo": 1}, got[categoryUnknownTags])
}

func TestDMARCReportMalformedLine(t *testing.T) {
	t.Parallel()

	_, err := Lines(DMARC, NewEnv(), []string{txt("_dmarc.a.de.", "v=DMARC1;p=none"), `{"name":`})
	require.ErrorContains(t, err, "line 2")
}

func TestTaskMatchesSinglePass(t *testing.T) {
	t.Parallel()

	lines := dmarcLines()
	for range 5 {
		lines = append(lines, dmarcLines()...)
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dmarc.ndjson", []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	logger := log.NewWithOptions(io.Discard, log.Options{})

	parts, err := partition.New(fs, 4, "", logger).Partitions("dmarc.ndjson")
	require.NoError(t, err)
	require.Greater(t, len(parts), 1)

	env := NewEnv()
	got, err := aggregate.Run(context.Background(), aggregate.New(3, 0, logger), parts, Task(DMARC, env))
	require.NoError(t, err)

	want, err := Lines(DMARC, env, lines)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSPFReport(t *testing.T) {
	t.Parallel()

	got, err := Lines(SPF, NewEnv(), []string{
		txt("a.de.", "v=spf1 mx -all", "google-site-verification=x"),
		txt("b.de.", `"v=spf1 include:_spf.example.com " "~all"`),
		txt("www.c.de.", "v=spf1 -all"),
		txt("d.de.", "v=spf1 a"),
		doc("e.de.", "TXT", "NXDOMAIN"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), SPF.Reference(got))
	assert.Equal(t, map[string]int64{"-all": 1, "~all": 1, "other": 1}, got[categorySPFAll])
	assert.Equal(t, map[string]int64{"1": 3}, got[categorySPFRecords])
}

func TestMXReport(t *testing.T) {
	t.Parallel()

	got, err := Lines(MX, NewEnv(), []string{
		doc("a.de.", "MX", "NOERROR", [2]string{"MX", "10 mx1.a.de."}, [2]string{"MX", "20 mx2.a.de."}),
		doc("b.de.", "MX", "NOERROR", [2]string{"MX", "10 MX1.a.de."}),
		doc("c.de.", "MX", "SERVFAIL"),
		txt("d.de.", "v=spf1 -all"),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"a.de": 1, "b.de": 1}, got[categoryMXDomains])
	assert.Equal(t, map[string]int64{"mx1.a.de": 2, "mx2.a.de": 1}, got[categoryMXTargets])
	assert.Equal(t, map[string]int64{"1": 1, "2": 1}, got[categoryMXPerDomain])
	assert.Equal(t, int64(4), MX.Reference(got))
}

func TestRoute53Report(t *testing.T) {
	t.Parallel()

	got, err := Lines(Route53, NewEnv(), []string{
		"2024-03-01T12:30:45.123Z 1.0 Z1 E1 _dmarc.example.de TXT NOERROR UDP FRA56-C1 192.0.2.10 192.0.2.0/24",
		"2024-03-01T13:00:00.000Z 1.0 Z1 E2 _dmarc.example.com TXT NOERROR UDP FRA56-C1 192.0.2.11 192.0.2.0/24",
		"2024-03-02T13:00:00.000Z 1.0 Z1 E1 _dmarc.example.de TXT NXDOMAIN UDP FRA56-C1 192.0.2.10 192.0.2.0/24",
		"2024-03-02T13:00:00.000Z 1.0 Z1 E1 example.de TXT NOERROR UDP FRA56-C1 192.0.2.10 192.0.2.0/24",
		"2024-03-02T13:00:00.000Z 1.0 Z1 E1 _dmarc.example.de MX NOERROR UDP FRA56-C1 192.0.2.10 192.0.2.0/24",
		"garbage line",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{keyLines: 5, keySkipped: 1}, got[categoryMeta])
	assert.Equal(t, map[string]int64{"2024-03-01": 2}, got[categoryR53Days])
	assert.Equal(t, map[string]int64{"E1": 1, "E2": 1}, got[categoryR53Distributions])
	assert.Equal(t, map[string]int64{"192.0.2.10": 1, "192.0.2.11": 1}, got[categoryR53Resolvers])
}

func TestInvalidReport(t *testing.T) {
	t.Parallel()

	got, err := Lines(Invalid, NewEnv(), []string{
		txt("_dmarc.a.de.", "v=DMARC1;p=block"),
		txt("_dmarc.b.de.", " v=DMARC1;p=none"),
		txt("_dmarc.c.de.", "v=DMARC1;p=none", "hello world"),
		txt("_dmarc.d.de.", "v=DMARC1;p=block"),
		doc("e.de.", "MX", "NOERROR", [2]string{"MX", "10 v=DMARC1"}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{" v=DMARC1;p=none", "v=DMARC1;p=block"}, InvalidRecords(got))
	assert.Equal(t, int64(2), got.Get(categoryInvalid, "v=DMARC1;p=block"))
	assert.Equal(t, map[string]int64{"G011": 2, "PARSE_002": 1}, got[categoryInvalidReasons])
}

func TestRUAReport(t *testing.T) {
	t.Parallel()

	got, err := Lines(RUA, NewEnv(), []string{
		txt("_dmarc.a.de.", "v=DMARC1;p=reject;rua=mailto:r@a.de,mailto:x@vendor.com!10m;ruf=http://x"),
		txt("_dmarc.b.de.", "v=DMARC1;p=none;rua=mailto:dmarc@mail.vendor.com"),
		txt("_dmarc.c.de.", "v=DMARC1;p=none"),
		txt("_dmarc.d.de.", "nope"),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"a.de": 1, "vendor.com": 2}, got[categoryRUADomains])
	assert.Equal(t, map[string]int64{"own domain": 1, "external": 2}, got[categoryRUAExternal])
	assert.Equal(t, map[string]int64{"URI scheme is not 'mailto:'": 1}, got[categoryRUFErrors])
	assert.Empty(t, got[categoryRUFDomains])
	assert.Equal(t, map[string]int64{ErrorPass: 3, ErrorNoAnswer: 1}, got[categoryErrors])
}

func TestLookup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"dmarc", "invalid", "mx", "route53", "rua", "spf"}, Names())
	k, err := Lookup("dmarc")
	require.NoError(t, err)
	assert.Same(t, DMARC, k)
	_, err = Lookup("dkim")
	require.ErrorContains(t, err, "available: dmarc")
}

func TestRender(t *testing.T) {
	t.Parallel()

	tally, err := Lines(DMARC, NewEnv(), dmarcLines())
	require.NoError(t, err)

	var buf bytes.Buffer
	meta := Meta{RunID: ulid.Make(), Input: "dmarc.ndjson", Date: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, Render(&buf, DMARC, meta, tally))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# DMARC Report\n"))
	assert.Contains(t, out, "Run: "+meta.RunID.String())
	assert.Contains(t, out, "Input: dmarc.ndjson")
	assert.Contains(t, out, "Report time: 2024-03-01 12:00:00Z")
	assert.Contains(t, out, "Total domains: 8")
	assert.Contains(t, out, "## DMARC Policy")
	assert.Contains(t, out, "Relative percentage")
	assert.Contains(t, out, "quarantine")
	// 4 of 8 domains have a usable record
	assert.Contains(t, out, " 50.00%")
	assert.Contains(t, out, "## Percentage distribution")
	assert.Contains(t, out, "Count of data points")
	assert.NotContains(t, out, "PCT=")
}

func TestRenderMalformedDistribution(t *testing.T) {
	t.Parallel()

	tally := aggregate.Tally{"pct.values": {"fifty": 1}}
	err := Render(io.Discard, DMARC, Meta{}, tally)
	require.ErrorIs(t, err, aggregate.ErrMalformedTally)
}

func TestRows(t *testing.T) {
	t.Parallel()

	counters := map[string]int64{"a": 1, "b": 5, "c": 3}
	assert.Equal(t, []row{{"a", 1}, {"b", 5}, {"c", 3}}, rows(counters, 0))
	assert.Equal(t, []row{{"a", 1}, {"b", 5}, {"c", 3}}, rows(counters, 3))
	assert.Equal(t, []row{{"b", 5}, {"c", 3}, {"other", 1}}, rows(counters, 2))
}

func TestDistribution(t *testing.T) {
	t.Parallel()

	st := distribution(map[int64]int64{1: 1, 2: 1, 3: 1, 4: 1})
	assert.Equal(t, int64(4), st.Count)
	assert.InDelta(t, 2.5, st.Mean, 1e-9)
	assert.InDelta(t, 2.5, st.Median, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), st.Stdev, 1e-9)
	assert.Equal(t, int64(1), st.Mode)
	assert.Equal(t, int64(1), st.P10)
	assert.Equal(t, int64(4), st.P90)
	assert.Equal(t, int64(1), st.Min)
	assert.Equal(t, int64(4), st.Max)

	st = distribution(map[int64]int64{100: 3, 50: 1})
	assert.InDelta(t, 87.5, st.Mean, 1e-9)
	assert.InDelta(t, 100, st.Median, 1e-9)
	assert.Equal(t, int64(100), st.Mode)
	assert.Equal(t, int64(50), st.Min)

	assert.Equal(t, stats{}, distribution(nil))
}
