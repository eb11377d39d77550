// Package benchgate checks `go test -bench` output against per-benchmark
// budgets: relative limits against a baseline run and absolute ceilings
// that hold even without one.
package benchgate

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBudgets covers the hot paths of a signed-in session.
//
//go:embed budgets.yaml
var DefaultBudgets []byte

// Budget limits one benchmark. Keys are benchmark units such as "ns/op",
// "allocs/op" or a custom unit reported with b.ReportMetric.
type Budget struct {
	// Regression is the largest allowed growth of the candidate median over
	// the baseline median, as a ratio (0.30 = +30%).
	Regression map[string]float64 `yaml:"regression"`
	// Ceiling is the largest allowed candidate median.
	Ceiling map[string]float64 `yaml:"ceiling"`
}

// Budgets maps benchmark names, without the -GOMAXPROCS suffix, to limits.
type Budgets struct {
	Benchmarks map[string]Budget `yaml:"benchmarks"`
}

// ParseBudgets decodes a YAML budget file.
func ParseBudgets(data []byte) (Budgets, error) {
	var b Budgets
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Budgets{}, fmt.Errorf("benchgate: budgets: %w", err)
	}
	if len(b.Benchmarks) == 0 {
		return Budgets{}, errors.New("benchgate: budgets: no benchmarks listed")
	}
	for name, budget := range b.Benchmarks {
		if len(budget.Regression) == 0 && len(budget.Ceiling) == 0 {
			return Budgets{}, fmt.Errorf("benchgate: budgets: %s has no limits", name)
		}
		for unit, ratio := range budget.Regression {
			if ratio < 0 {
				return Budgets{}, fmt.Errorf("benchgate: budgets: %s %s regression must be >= 0", name, unit)
			}
		}
	}
	return b, nil
}

// LoadBudgets reads a budget file, or DefaultBudgets when path is empty.
func LoadBudgets(path string) (Budgets, error) {
	if path == "" {
		return ParseBudgets(DefaultBudgets)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Budgets{}, err
	}
	return ParseBudgets(data)
}

// Names returns the budgeted benchmarks in sorted order.
func (b Budgets) Names() []string {
	names := make([]string, 0, len(b.Benchmarks))
	for name := range b.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Samples holds every value seen per benchmark and unit.
type Samples map[string]map[string][]float64

// Median returns the median of the samples for name and unit.
func (s Samples) Median(name, unit string) (float64, bool) {
	values := s[name][unit]
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// Parse reads benchmark result lines. Lines that are not results are
// skipped, so the full output of `go test -bench ./...` can be fed in.
func Parse(r io.Reader) (Samples, error) {
	samples := Samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		if _, err := strconv.Atoi(fields[1]); err != nil {
			continue
		}

		name := trimProcs(fields[0])
		units := samples[name]
		if units == nil {
			units = map[string][]float64{}
			samples[name] = units
		}
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			units[fields[i+1]] = append(units[fields[i+1]], value)
		}
	}
	return samples, scanner.Err()
}

// ParseFile is Parse over the named file.
func ParseFile(path string) (Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

// Row is one checked benchmark unit.
type Row struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	// HasBaseline is false when no baseline run was given.
	HasBaseline bool
	Violation   string
}

// Check evaluates candidate against budgets. baseline may be nil, in which
// case only ceilings are enforced. A budgeted unit missing from a run is a
// violation.
func Check(budgets Budgets, baseline, candidate Samples) []Row {
	var rows []Row
	for _, name := range budgets.Names() {
		budget := budgets.Benchmarks[name]
		for _, unit := range units(budget) {
			row := Row{Benchmark: name, Unit: unit}
			cand, ok := candidate.Median(name, unit)
			if !ok {
				row.Violation = "missing from candidate"
				rows = append(rows, row)
				continue
			}
			row.Candidate = cand

			if limit, ok := budget.Ceiling[unit]; ok && cand > limit {
				row.Violation = fmt.Sprintf("%.3f exceeds ceiling %.3f", cand, limit)
			}

			ratio, gated := budget.Regression[unit]
			if gated && baseline != nil {
				base, ok := baseline.Median(name, unit)
				switch {
				case !ok:
					row.Violation = join(row.Violation, "missing from baseline")
				default:
					row.Baseline, row.HasBaseline = base, true
					if msg := regression(base, cand, ratio); msg != "" {
						row.Violation = join(row.Violation, msg)
					}
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func regression(base, cand, ratio float64) string {
	if base <= 0 {
		if cand > 0 {
			return fmt.Sprintf("grew from %.3f to %.3f", base, cand)
		}
		return ""
	}
	delta := (cand - base) / base
	if delta > ratio {
		return fmt.Sprintf("regressed by %+0.2f%% (limit %+0.2f%%)", delta*100, ratio*100)
	}
	return ""
}

func units(b Budget) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range []map[string]float64{b.Regression, b.Ceiling} {
		for unit := range m {
			if !seen[unit] {
				seen[unit] = true
				out = append(out, unit)
			}
		}
	}
	sort.Strings(out)
	return out
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// Failed reports whether any row carries a violation.
func Failed(rows []Row) bool {
	for _, r := range rows {
		if r.Violation != "" {
			return true
		}
	}
	return false
}
