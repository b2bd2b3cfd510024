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

package tmpl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Resolver is anything the renderer can resolve a dot/index path against.
// env.Environment satisfies this.
type Resolver interface {
	Get(path string) (interface{}, bool)
}

var (
	singleExprRe = regexp.MustCompile(`^\{\{\s*(.+?)\s*\}\}$`)
	exprRe       = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)
)

// Render implements C2's contract. If template is not a string it recurses
// structurally: sequences are mapped, mappings rebuilt, scalars pass
// through. A string matching exactly "{{ expr }}" returns the resolved
// value with its native type preserved (undefined -> ""). Any other string
// has every "{{ ... }}" occurrence replaced by the string coercion of its
// resolved value and concatenated with the surrounding literal text.
func Render(template interface{}, resolver Resolver) interface{} {
	switch t := template.(type) {
	case string:
		return renderString(t, resolver)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = Render(v, resolver)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = Render(v, resolver)
		}
		return out
	default:
		return template
	}
}

func renderString(s string, resolver Resolver) interface{} {
	if m := singleExprRe.FindStringSubmatch(s); m != nil {
		v, ok := Evaluate(m[1], resolver)
		if !ok {
			return ""
		}
		return v
	}

	if !strings.Contains(s, "{{") {
		return s
	}

	return exprRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := exprRe.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		v, ok := Evaluate(sub[1], resolver)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// Evaluate resolves one "{{ ... }}" expression body: a bare path, a
// literal, a filter chain ("path | upper | default(\"x\")"), or a regex
// comparison ("path =~ \"pattern\"" / "path !~ \"pattern\""). This is the
// single point where the richer filter/regex syntax lives; the external
// TemplateRenderer collaborator described in spec §4.2 rule 4 is free to
// replace this function with something richer as long as it honors the
// same (expr, Resolver) -> (value, found) contract.
func Evaluate(expr string, resolver Resolver) (interface{}, bool) {
	expr = strings.TrimSpace(expr)

	if left, right, op, ok := splitRegexOp(expr); ok {
		return evalRegexOp(left, right, op, resolver)
	}

	if strings.Contains(expr, "|") {
		parts := strings.Split(expr, "|")
		value, ok := resolvePart(strings.TrimSpace(parts[0]), resolver)
		for _, f := range parts[1:] {
			value, ok = applyFilter(value, ok, strings.TrimSpace(f))
		}
		return value, ok
	}

	return resolvePart(expr, resolver)
}

func resolvePart(part string, resolver Resolver) (interface{}, bool) {
	if lit, isLit := ParseLiteral(part); isLit {
		return lit, true
	}
	return resolver.Get(part)
}

func splitRegexOp(expr string) (left, right, op string, ok bool) {
	if idx := strings.Index(expr, "=~"); idx >= 0 {
		return strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+2:]), "=~", true
	}
	if idx := strings.Index(expr, "!~"); idx >= 0 {
		return strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+2:]), "!~", true
	}
	return "", "", "", false
}

func evalRegexOp(left, right, op string, resolver Resolver) (interface{}, bool) {
	leftVal, _ := resolvePart(left, resolver)
	pattern, _ := ParseLiteral(right)
	patternStr, _ := pattern.(string)
	if patternStr == "" {
		patternStr = strings.Trim(right, `"'`)
	}

	re, err := regexp.Compile(patternStr)
	if err != nil {
		return false, true
	}

	matched := re.MatchString(Stringify(leftVal))
	if op == "!~" {
		return !matched, true
	}
	return matched, true
}

// applyFilter applies one "|"-separated filter stage. Unknown filters pass
// the value through unchanged rather than erroring, consistent with the
// engine's general tolerance of template-resolution problems (spec §7.1).
func applyFilter(value interface{}, found bool, filterExpr string) (interface{}, bool) {
	name, args := parseFilterCall(filterExpr)

	switch name {
	case "upper":
		return strings.ToUpper(Stringify(value)), true
	case "lower":
		return strings.ToLower(Stringify(value)), true
	case "trim":
		return strings.TrimSpace(Stringify(value)), true
	case "length":
		return filterLength(value), true
	case "default":
		if found && !isEmptyValue(value) {
			return value, true
		}
		if len(args) > 0 {
			return args[0], true
		}
		return value, found
	default:
		return value, found
	}
}

func filterLength(value interface{}) int {
	switch v := value.(type) {
	case string:
		return len(v)
	case []interface{}:
		return len(v)
	case map[string]interface{}:
		return len(v)
	default:
		return 0
	}
}

func isEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}

func parseFilterCall(expr string) (name string, args []interface{}) {
	open := strings.Index(expr, "(")
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return expr, nil
	}
	name = strings.TrimSpace(expr[:open])
	argStr := expr[open+1 : len(expr)-1]
	if strings.TrimSpace(argStr) == "" {
		return name, nil
	}
	for _, a := range strings.Split(argStr, ",") {
		if lit, ok := ParseLiteral(strings.TrimSpace(a)); ok {
			args = append(args, lit)
		} else {
			args = append(args, strings.TrimSpace(a))
		}
	}
	return name, args
}

// Stringify coerces a resolved value to its string form for interpolation.
// Maps and sequences are rendered as compact JSON rather than Go's %v form,
// so a nested object interpolated into text stays valid JSON/readable.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
