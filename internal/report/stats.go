package report

import (
	"maps"
	"math"
	"slices"
)

// stats summarizes a distribution of integer values.
type stats struct {
	Count  int64
	Mean   float64
	Median float64
	Stdev  float64
	Mode   int64
	P1     int64
	P10    int64
	P90    int64
	P99    int64
	Min    int64
	Max    int64
}

// distribution computes stats from value -> number of occurrences without
// expanding the values. Percentiles pick the element at the rounded
// index pct*(n-1) of the sorted values. Stdev is the sample deviation.
func distribution(values map[int64]int64) stats {
	var st stats
	keys := slices.Sorted(maps.Keys(values))
	var sum float64
	var modeCount int64
	for _, k := range keys {
		n := values[k]
		if n <= 0 {
			continue
		}
		st.Count += n
		sum += float64(k) * float64(n)
		if n > modeCount {
			st.Mode, modeCount = k, n
		}
	}
	if st.Count == 0 {
		return st
	}

	st.Mean = sum / float64(st.Count)

	// nth returns the value at index i of the sorted expansion
	nth := func(i int64) int64 {
		var seen int64
		for _, k := range keys {
			if values[k] <= 0 {
				continue
			}
			seen += values[k]
			if i < seen {
				return k
			}
		}
		return keys[len(keys)-1]
	}
	percentile := func(pct float64) int64 {
		return nth(int64(math.Round(pct * float64(st.Count-1))))
	}

	if st.Count%2 == 1 {
		st.Median = float64(nth(st.Count / 2))
	} else {
		st.Median = float64(nth(st.Count/2-1)+nth(st.Count/2)) / 2
	}
	st.P1 = percentile(0.01)
	st.P10 = percentile(0.10)
	st.P90 = percentile(0.90)
	st.P99 = percentile(0.99)
	st.Min = nth(0)
	st.Max = nth(st.Count - 1)

	if st.Count > 1 {
		var sq float64
		for _, k := range keys {
			if values[k] <= 0 {
				continue
			}
			d := float64(k) - st.Mean
			sq += d * d * float64(values[k])
		}
		st.Stdev = math.Sqrt(sq / float64(st.Count-1))
	}
	return st
}
