// Package threshold evaluates pass/fail assertions against the final run
// statistics, e.g. "latency:p99 < 250" or "errors:rate < 0.01".
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/pipebench/internal/metrics"
)

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Value     float64 `json:"value" yaml:"value"`
	Raw       string  `json:"raw" yaml:"raw"`
}

// Result is the outcome of evaluating one Threshold.
type Result struct {
	Threshold Threshold `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

type extractor func(metrics.Stats) float64

// Latencies are in milliseconds, rates are fractions or per-second values.
var aggregates = map[string]map[string]extractor{
	"latency": {
		"min": func(s metrics.Stats) float64 { return s.MinLatencyMs },
		"max": func(s metrics.Stats) float64 { return s.MaxLatencyMs },
		"avg": func(s metrics.Stats) float64 { return s.AvgLatencyMs },
		"p50": func(s metrics.Stats) float64 { return s.P50LatencyMs },
		"p90": func(s metrics.Stats) float64 { return s.P90LatencyMs },
		"p95": func(s metrics.Stats) float64 { return s.P95LatencyMs },
		"p99": func(s metrics.Stats) float64 { return s.P99LatencyMs },
	},
	"errors": {
		"count": func(s metrics.Stats) float64 { return float64(s.Errors) },
		"rate": func(s metrics.Stats) float64 {
			if s.Requests == 0 {
				return 0
			}
			return float64(s.Errors) / float64(s.Requests)
		},
	},
	"requests": {
		"count": func(s metrics.Stats) float64 { return float64(s.Requests) },
		"rate":  func(s metrics.Stats) float64 { return s.RequestsPerSec },
	},
}

var (
	pattern   = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
	operators = []string{"<", "<=", ">", ">=", "=="}
)

// Parse reads "metric:aggregate operator value".
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold")
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q (want metric:aggregate operator value, e.g. 'latency:p99 < 250')", s)
	}
	metric, aggregate, op := m[1], m[2], m[3]

	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", m[4], err)
	}
	aggs, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric %q (supported: %s)", metric, strings.Join(keys(aggregates), ", "))
	}
	if _, ok := aggs[aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(keys(aggs), ", "))
	}
	if !validOperator(op) {
		return Threshold{}, fmt.Errorf("unsupported operator %q (supported: %s)", op, strings.Join(operators, ", "))
	}

	return Threshold{Metric: metric, Aggregate: aggregate, Operator: op, Value: value, Raw: s}, nil
}

// ParseAll parses every entry and reports all failures together.
func ParseAll(raw []string) ([]Threshold, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(raw))
	var problems []string
	for i, s := range raw {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Evaluate checks every threshold against stats, in order.
func Evaluate(thresholds []Threshold, stats metrics.Stats) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluate(t, stats))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func evaluate(t Threshold, stats metrics.Stats) Result {
	extract, ok := aggregates[t.Metric][t.Aggregate]
	if !ok {
		return Result{Threshold: t, Message: fmt.Sprintf("✗ %s: unsupported threshold", t.Raw)}
	}
	actual := extract(stats)
	pass := compare(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value),
	}
}

func compare(actual float64, op string, expected float64) bool {
	const epsilon = 1e-9
	switch op {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

func validOperator(op string) bool {
	for _, v := range operators {
		if op == v {
			return true
		}
	}
	return false
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
