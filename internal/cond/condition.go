// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cond

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/scottgl9/marktoflow-sub001/internal/tmpl"
)

// comparisonOpRe finds the first comparison operator in a condition string.
// Alternation order matters: Go's regexp alternation is leftmost-first, so
// listing the two-character operators before their one-character prefixes
// ensures ">=" wins over ">" when both start at the same position.
var comparisonOpRe = regexp.MustCompile(`==|!=|>=|<=|>|<`)

// Result carries the evaluated boolean plus an optional parse warning the
// caller may forward to an EventSink, per spec §7.2: a malformed condition
// must never abort the run, only (optionally) warn.
type Result struct {
	Value   bool
	Warning string
}

// Evaluate implements C3 for a single predicate string.
func Evaluate(condition string, resolver tmpl.Resolver) Result {
	loc := comparisonOpRe.FindStringIndex(condition)
	if loc == nil {
		return evaluateTruthiness(condition, resolver)
	}

	op := condition[loc[0]:loc[1]]
	left := strings.TrimSpace(condition[:loc[0]])
	right := strings.TrimSpace(condition[loc[1]:])

	leftVal := resolveLeft(left, resolver)
	rightVal := resolveRight(right)

	switch op {
	case "==":
		return Result{Value: valuesEqual(leftVal, rightVal)}
	case "!=":
		return Result{Value: !valuesEqual(leftVal, rightVal)}
	case ">":
		cmp, ok := numericCompare(leftVal, rightVal)
		return Result{Value: ok && cmp > 0}
	case ">=":
		cmp, ok := numericCompare(leftVal, rightVal)
		return Result{Value: ok && cmp >= 0}
	case "<":
		cmp, ok := numericCompare(leftVal, rightVal)
		return Result{Value: ok && cmp < 0}
	case "<=":
		cmp, ok := numericCompare(leftVal, rightVal)
		return Result{Value: ok && cmp <= 0}
	}

	return evaluateTruthiness(condition, resolver)
}

// EvaluateAll evaluates a step's `conditions` list as a short-circuit
// conjunction, per spec §4.3: a false result anywhere stops the scan.
func EvaluateAll(conditions []string, resolver tmpl.Resolver) Result {
	var warnings []string
	for _, c := range conditions {
		r := Evaluate(c, resolver)
		if r.Warning != "" {
			warnings = append(warnings, r.Warning)
		}
		if !r.Value {
			return Result{Value: false, Warning: strings.Join(warnings, "; ")}
		}
	}
	return Result{Value: true, Warning: strings.Join(warnings, "; ")}
}

// wellFormedPathRe matches a bare variable path such as `a.b[0].c`.
var wellFormedPathRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+|\[\d+\])*$`)

// evaluateTruthiness handles both the "no comparison operator" path and the
// deliberately tolerant fallback for malformed conditions (spec §9 open
// question): a well-formed path that does not resolve is undefined and
// therefore false; text that is not a path at all is evaluated against the
// raw condition text itself, which for any non-empty string is true -- the
// step is admitted rather than skipped.
func evaluateTruthiness(condition string, resolver tmpl.Resolver) Result {
	value, ok := resolveLeftOK(condition, resolver)
	if ok {
		return Result{Value: isTruthy(value)}
	}
	if wellFormedPathRe.MatchString(strings.TrimSpace(condition)) {
		return Result{Value: false}
	}
	return Result{
		Value:   isTruthy(condition),
		Warning: fmt.Sprintf("condition %q could not be resolved to a value; falling back to truthiness of the raw text", condition),
	}
}

func resolveLeft(expr string, resolver tmpl.Resolver) interface{} {
	v, _ := resolveLeftOK(expr, resolver)
	return v
}

func resolveLeftOK(expr string, resolver tmpl.Resolver) (interface{}, bool) {
	if strings.ContainsAny(expr, "|") || strings.Contains(expr, "=~") || strings.Contains(expr, "!~") {
		return tmpl.Evaluate(expr, resolver)
	}
	if lit, ok := tmpl.ParseLiteral(expr); ok {
		return lit, true
	}
	return resolver.Get(expr)
}

// resolveRight always parses as a literal (spec §4.3 rule 4); when the text
// is not a recognizable literal form it is used verbatim as a string,
// matching the common unquoted-identifier convention in comparisons like
// `step.status == completed`.
func resolveRight(expr string) interface{} {
	if lit, ok := tmpl.ParseLiteral(expr); ok {
		return lit
	}
	return expr
}

func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// numericCompare coerces both sides via Number(...) semantics (spec §9 open
// question): unparseable operands become NaN. ok is false whenever either
// side is NaN, since every ordered comparison against NaN is false -- the
// caller must not fall back to treating a zero cmp as equality in that case.
func numericCompare(a, b interface{}) (cmp int, ok bool) {
	af := toFloatOrNaN(a)
	bf := toFloatOrNaN(b)
	if math.IsNaN(af) || math.IsNaN(bf) {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toFloatOrNaN(v interface{}) float64 {
	f, ok := toFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}
