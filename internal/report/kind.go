// Package report turns massdns and Route 53 query logs into tallies and
// renders them as markdown.
package report

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/firefart/dmarcsurvey/internal/aggregate"
	"github.com/firefart/dmarcsurvey/internal/dns"
	"github.com/firefart/dmarcsurvey/internal/partition"
)

// ctxCheckInterval is the number of lines between context checks.
const ctxCheckInterval = 1024

// Section is one rendered counter or distribution of a report.
type Section struct {
	Category    string
	Title       string
	Description string
	Header      string
	// Distribution renders summary statistics over numeric keys instead
	// of a counter table.
	Distribution bool
	// Limit keeps only the largest counters, 0 keeps all.
	Limit int
}

// Total is a header line showing the number of distinct keys of a category.
type Total struct {
	Label    string
	Category string
}

// LineFunc adds the contribution of one input line to t.
type LineFunc func(env *Env, t aggregate.Tally, line string) error

// Kind is a report type: how lines are counted and how the result is
// rendered.
type Kind struct {
	Name           string
	Title          string
	ReferenceLabel string
	Reference      func(t aggregate.Tally) int64
	Totals         []Total
	Sections       []Section
	line           LineFunc
}

// Env is state shared by all tasks of a run.
type Env struct {
	Orgs *dns.OrgDomainCache
}

func NewEnv() *Env {
	return &Env{Orgs: dns.NewOrgDomainCache(1 << 16)}
}

var kinds = map[string]*Kind{}

func register(k *Kind) *Kind {
	kinds[k.Name] = k
	return k
}

// Lookup returns the report kind with the given name.
func Lookup(name string) (*Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown report %q, available: %s", name, strings.Join(Names(), ", "))
	}
	return k, nil
}

// Names lists all report kinds.
func Names() []string {
	return slices.Sorted(maps.Keys(kinds))
}

func lineCounter(t aggregate.Tally) int64 {
	return t.Get(categoryMeta, keyLines)
}

// Task returns the harness task computing kind over a partition.
func Task(kind *Kind, env *Env) aggregate.Task[partition.Partition] {
	return func(ctx context.Context, p partition.Partition) (aggregate.Tally, error) {
		t := aggregate.NewTally()
		for _, s := range kind.Sections {
			t.Touch(s.Category)
		}
		n := 0
		err := p.EachLine(func(line string) error {
			n++
			if n%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if strings.TrimSpace(line) == "" {
				return nil
			}
			if err := kind.line(env, t, line); err != nil {
				return fmt.Errorf("line %d: %w", n, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Lines runs kind over lines in a single pass. It is the sequential
// counterpart of running Task over all partitions.
func Lines(kind *Kind, env *Env, lines []string) (aggregate.Tally, error) {
	t := aggregate.NewTally()
	for _, s := range kind.Sections {
		t.Touch(s.Category)
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := kind.line(env, t, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return t, nil
}
