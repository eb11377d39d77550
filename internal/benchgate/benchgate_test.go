package benchgate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baselineOut = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/goSession/refresh
BenchmarkEnsureValidTokenSettled-8   	  500000	      2000 ns/op	     320 B/op	       5 allocs/op
BenchmarkEnsureValidTokenSettled-8   	  500000	      2200 ns/op	     320 B/op	       5 allocs/op
BenchmarkEnsureValidTokenSettled-8   	  500000	      2100 ns/op	     320 B/op	       5 allocs/op
BenchmarkEnsureValidTokenBurst-8     	    3000	    400000 ns/op	         1.000 refreshes/burst
PASS
ok  	github.com/MrEthical07/goSession/refresh	4.2s
`

func TestParseKeepsEveryUnit(t *testing.T) {
	s, err := Parse(strings.NewReader(baselineOut))
	require.NoError(t, err)

	med, ok := s.Median("BenchmarkEnsureValidTokenSettled", "ns/op")
	require.True(t, ok)
	assert.Equal(t, 2100.0, med)
	allocs, _ := s.Median("BenchmarkEnsureValidTokenSettled", "allocs/op")
	assert.Equal(t, 5.0, allocs)
	burst, ok := s.Median("BenchmarkEnsureValidTokenBurst", "refreshes/burst")
	require.True(t, ok)
	assert.Equal(t, 1.0, burst)

	_, ok = s.Median("ok", "ns/op")
	assert.False(t, ok)
}

func TestMedianOfEvenSamples(t *testing.T) {
	s := Samples{"BenchmarkX": {"ns/op": {4, 1, 3, 2}}}
	med, ok := s.Median("BenchmarkX", "ns/op")
	require.True(t, ok)
	assert.Equal(t, 2.5, med)
}

func TestCheckCeilingWithoutBaseline(t *testing.T) {
	budgets, err := ParseBudgets([]byte(`
benchmarks:
  BenchmarkEnsureValidTokenBurst:
    ceiling: {refreshes/burst: 1}
  BenchmarkEnsureValidTokenSettled:
    regression: {ns/op: 0.3}
`))
	require.NoError(t, err)

	candidate, err := Parse(strings.NewReader(
		"BenchmarkEnsureValidTokenBurst-4 3000 400000 ns/op 2.5 refreshes/burst\n" +
			"BenchmarkEnsureValidTokenSettled-4 500000 9000 ns/op\n"))
	require.NoError(t, err)

	rows := Check(budgets, nil, candidate)
	require.Len(t, rows, 2)
	assert.Equal(t, "BenchmarkEnsureValidTokenBurst", rows[0].Benchmark)
	assert.Contains(t, rows[0].Violation, "exceeds ceiling")
	assert.Empty(t, rows[1].Violation, "regression limits need a baseline")
	assert.False(t, rows[1].HasBaseline)
	assert.True(t, Failed(rows))
}

func TestCheckRegressionAgainstBaseline(t *testing.T) {
	budgets, err := ParseBudgets([]byte(`
benchmarks:
  BenchmarkEnsureValidTokenSettled:
    regression: {ns/op: 0.3, allocs/op: 0}
`))
	require.NoError(t, err)
	baseline, err := Parse(strings.NewReader(baselineOut))
	require.NoError(t, err)

	within, err := Parse(strings.NewReader("BenchmarkEnsureValidTokenSettled-8 500000 2500 ns/op 5 allocs/op\n"))
	require.NoError(t, err)
	rows := Check(budgets, baseline, within)
	assert.False(t, Failed(rows))

	worse, err := Parse(strings.NewReader("BenchmarkEnsureValidTokenSettled-8 500000 2300 ns/op 6 allocs/op\n"))
	require.NoError(t, err)
	rows = Check(budgets, baseline, worse)
	require.Len(t, rows, 2)
	assert.Equal(t, "allocs/op", rows[0].Unit)
	assert.Contains(t, rows[0].Violation, "regressed")
	assert.Empty(t, rows[1].Violation)
}

func TestCheckGrowthFromZero(t *testing.T) {
	budgets, err := ParseBudgets([]byte("benchmarks:\n  BenchmarkEvaluate:\n    regression: {allocs/op: 0}\n"))
	require.NoError(t, err)
	baseline := Samples{"BenchmarkEvaluate": {"allocs/op": {0}}}

	rows := Check(budgets, baseline, Samples{"BenchmarkEvaluate": {"allocs/op": {0}}})
	assert.False(t, Failed(rows))
	rows = Check(budgets, baseline, Samples{"BenchmarkEvaluate": {"allocs/op": {1}}})
	assert.Contains(t, rows[0].Violation, "grew from")
}

func TestCheckMissingSamples(t *testing.T) {
	budgets, err := ParseBudgets([]byte("benchmarks:\n  BenchmarkRender:\n    regression: {ns/op: 0.3}\n"))
	require.NoError(t, err)

	rows := Check(budgets, Samples{}, Samples{})
	assert.Equal(t, "missing from candidate", rows[0].Violation)

	rows = Check(budgets, Samples{}, Samples{"BenchmarkRender": {"ns/op": {10}}})
	assert.Equal(t, "missing from baseline", rows[0].Violation)
}

func TestParseBudgetsRejectsBadFiles(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":          "benchmarks: {}\n",
		"no limits":      "benchmarks:\n  BenchmarkRender: {}\n",
		"negative ratio": "benchmarks:\n  BenchmarkRender:\n    regression: {ns/op: -1}\n",
		"not yaml":       "benchmarks: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBudgets([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestDefaultBudgetsGateSingleFlight(t *testing.T) {
	budgets, err := LoadBudgets("")
	require.NoError(t, err)

	burst, ok := budgets.Benchmarks["BenchmarkEnsureValidTokenBurst"]
	require.True(t, ok)
	assert.Equal(t, 1.0, burst.Ceiling["refreshes/burst"])
	assert.Contains(t, budgets.Names(), "BenchmarkEvaluate")
}
