package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/oklog/ulid/v2"
	"github.com/olekukonko/tablewriter"
)

// Meta describes the run a report was produced by.
type Meta struct {
	RunID ulid.ULID
	Input string
	Date  time.Time
}

// Render writes the markdown report of kind for tally t.
func Render(w io.Writer, kind *Kind, meta Meta, t aggregate.Tally) error {
	reference := kind.Reference(t)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", kind.Title)
	fmt.Fprintf(&b, "Run: %s\n\n", meta.RunID)
	fmt.Fprintf(&b, "Input: %s\n\n", meta.Input)
	fmt.Fprintf(&b, "Report time: %s\n\n", meta.Date.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Fprintf(&b, "%s: %s\n\n", kind.ReferenceLabel, humanize.Comma(reference))
	for _, total := range kind.Totals {
		fmt.Fprintf(&b, "%s: %s\n\n", total.Label, humanize.Comma(int64(len(t[total.Category]))))
	}

	for _, section := range kind.Sections {
		b.WriteString("\n")
		if section.Distribution {
			if err := renderDistribution(&b, section, t[section.Category]); err != nil {
				return err
			}
			continue
		}
		renderCounter(&b, section, t[section.Category], reference)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	return nil
}

func sectionHeader(b *strings.Builder, s Section) {
	fmt.Fprintf(b, "## %s\n\n", s.Title)
	if s.Description != "" {
		fmt.Fprintf(b, "%s\n\n", s.Description)
	}
	b.WriteString("-------\n\n")
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoWrapText(false)
	return table
}

type row struct {
	key   string
	count int64
}

// rows returns the counters sorted by key. With a positive limit only the
// limit largest counters are kept and the rest is folded into "other".
func rows(counters map[string]int64, limit int) []row {
	out := make([]row, 0, len(counters))
	for k, v := range counters {
		out = append(out, row{key: k, count: v})
	}
	if limit <= 0 || len(out) <= limit {
		slices.SortFunc(out, func(a, b row) int { return cmp.Compare(a.key, b.key) })
		return out
	}

	slices.SortFunc(out, func(a, b row) int {
		return cmp.Or(cmp.Compare(b.count, a.count), cmp.Compare(a.key, b.key))
	})
	other := row{key: "other"}
	for _, r := range out[limit:] {
		other.count += r.count
	}
	return append(out[:limit], other)
}

func percentage(part, whole int64) string {
	if whole == 0 {
		return "-"
	}
	return fmt.Sprintf("%6.2f%%", float64(part)/float64(whole)*100)
}

func renderCounter(b *strings.Builder, s Section, counters map[string]int64, reference int64) {
	sectionHeader(b, s)

	var sum int64
	for _, v := range counters {
		sum += v
	}

	table := newTable(b, []string{s.Header, "Total count", "Relative percentage"})
	for _, r := range rows(counters, s.Limit) {
		table.Append([]string{r.key, humanize.Comma(r.count), percentage(r.count, sum)})
	}
	table.Append([]string{"SUM", humanize.Comma(sum), percentage(sum, reference)})
	table.Render()
}

func renderDistribution(b *strings.Builder, s Section, counters map[string]int64) error {
	values := make(map[int64]int64, len(counters))
	for k, v := range counters {
		n, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s has non numeric value %q", aggregate.ErrMalformedTally, s.Category, k)
		}
		values[n] += v
	}
	st := distribution(values)

	sectionHeader(b, s)
	table := newTable(b, []string{"Statistic", "Value"})
	table.AppendBulk([][]string{
		{"Count of data points", humanize.Comma(st.Count)},
		{"Mean", fmt.Sprintf("%.2f", st.Mean)},
		{"Median", fmt.Sprintf("%.2f", st.Median)},
		{"Standard deviation", fmt.Sprintf("%.2f", st.Stdev)},
		{"Mode", strconv.FormatInt(st.Mode, 10)},
		{"1% Percentile", strconv.FormatInt(st.P1, 10)},
		{"10% Percentile", strconv.FormatInt(st.P10, 10)},
		{"90% Percentile", strconv.FormatInt(st.P90, 10)},
		{"99% Percentile", strconv.FormatInt(st.P99, 10)},
		{"Min Value", strconv.FormatInt(st.Min, 10)},
		{"Max Value", strconv.FormatInt(st.Max, 10)},
	})
	table.Render()
	return nil
}
