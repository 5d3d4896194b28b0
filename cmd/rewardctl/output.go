package main

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

// passThreshold matches the audit log pass@k cut.
const passThreshold = 0.75

// datasourceSummary aggregates the rewards of one datasource.
type datasourceSummary struct {
	name   string
	count  int
	sum    float64
	passed int
}

func (s datasourceSummary) mean() float64 {
	if s.count == 0 {
		return math.NaN()
	}
	return s.sum / float64(s.count)
}

func summarize(outputs []scoreOutput) []datasourceSummary {
	var order []string
	byName := make(map[string]*datasourceSummary)
	for _, out := range outputs {
		s, ok := byName[out.Datasource]
		if !ok {
			s = &datasourceSummary{name: out.Datasource}
			byName[out.Datasource] = s
			order = append(order, out.Datasource)
		}
		s.count++
		s.sum += out.Reward
		if out.Reward > passThreshold {
			s.passed++
		}
	}
	sums := make([]datasourceSummary, len(order))
	for i, name := range order {
		sums[i] = *byName[name]
	}
	return sums
}

// printSummary writes a per-datasource table of counts, mean reward and
// pass rate.
func printSummary(w io.Writer, outputs []scoreOutput) {
	if len(outputs) == 0 {
		fmt.Fprintln(w, gray("no rows scored"))
		return
	}
	fmt.Fprintf(w, "%s\n", bold(fmt.Sprintf("%-24s %8s %10s %8s", "DATASOURCE", "ROWS", "MEAN", "PASS")))
	for _, s := range summarize(outputs) {
		mean := fmt.Sprintf("%10.4f", s.mean())
		if s.mean() > 0 {
			mean = green(mean)
		} else {
			mean = red(mean)
		}
		fmt.Fprintf(w, "%-24s %8d %s %8s\n", s.name, s.count, mean,
			fmt.Sprintf("%d/%d", s.passed, s.count))
	}
}
