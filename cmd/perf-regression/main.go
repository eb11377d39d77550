// Command perf-regression gates benchmark results on the budgets in
// internal/benchgate/budgets.yaml, or a file given with -budgets.
//
//	go test -run '^$' -bench . -benchmem -count 5 ./... > new.txt
//	go run ./cmd/perf-regression -candidate new.txt
//	go run ./cmd/perf-regression -baseline old.txt -candidate new.txt
//
// Without -baseline only the absolute ceilings are checked.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MrEthical07/goSession/internal/benchgate"
)

func main() {
	var (
		budgetsPath   string
		baselinePath  string
		candidatePath string
	)
	flag.StringVar(&budgetsPath, "budgets", "", "YAML budget file (default: built-in budgets)")
	flag.StringVar(&baselinePath, "baseline", "", "baseline benchmark output; enables regression limits")
	flag.StringVar(&candidatePath, "candidate", "", "candidate benchmark output")
	flag.Parse()

	if candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-candidate is required")
		os.Exit(2)
	}

	budgets, err := benchgate.LoadBudgets(budgetsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var baseline benchgate.Samples
	if baselinePath != "" {
		if baseline, err = benchgate.ParseFile(baselinePath); err != nil {
			fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
			os.Exit(1)
		}
	}
	candidate, err := benchgate.ParseFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows := benchgate.Check(budgets, baseline, candidate)
	printRows(rows)
	if benchgate.Failed(rows) {
		fmt.Fprintln(os.Stderr, "benchmark budget exceeded")
		os.Exit(1)
	}
}

func printRows(rows []benchgate.Row) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "benchmark\tunit\tbaseline\tcandidate\tresult")
	for _, r := range rows {
		base := "-"
		if r.HasBaseline {
			base = fmt.Sprintf("%.3f", r.Baseline)
		}
		result := "ok"
		if r.Violation != "" {
			result = "FAIL: " + r.Violation
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%s\n", r.Benchmark, r.Unit, base, r.Candidate, result)
	}
	w.Flush()
}
