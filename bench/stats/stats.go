// Package stats summarises benchmark latencies.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
)

// Summary of latencies in milliseconds after trimming extremes.
type Summary struct {
	Count int
	Mean  float64
	P50   float64
	P90   float64
	P99   float64
}

func (s Summary) String() string {
	return fmt.Sprintf("count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f", s.Count, s.Mean, s.P50, s.P90, s.P99)
}

// Summarize drops trimPercent of the samples from each end before computing
// the mean and percentiles. data is sorted in place.
func Summarize(data []float64, trimPercent float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	sort.Float64s(data)
	kept := trim(data, trimPercent)

	var sum float64
	for _, v := range kept {
		sum += v
	}
	return Summary{
		Count: len(data),
		Mean:  sum / float64(len(kept)),
		P50:   Percentile(kept, 50),
		P90:   Percentile(kept, 90),
		P99:   Percentile(kept, 99),
	}
}

func trim(sorted []float64, trimPercent float64) []float64 {
	n := int(float64(len(sorted)) * trimPercent / 100.0)
	if n*2 >= len(sorted) {
		n = (len(sorted) - 1) / 2
	}
	return sorted[n : len(sorted)-n]
}

// Percentile uses linear interpolation over sorted data.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(sorted)-1)
	f := int(k)
	c := f + 1
	if c >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[f]*(float64(c)-k) + sorted[c]*(k-float64(f))
}

// WriteCSV stores one latency per row under the latency_ms header.
func WriteCSV(path string, latencies []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"latency_ms"}); err != nil {
		return err
	}
	for _, v := range latencies {
		if err := w.Write([]string{fmt.Sprintf("%.3f", v)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
