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

import "strconv"

// ParseLiteral parses s as a quoted string, number, true/false, or null.
// It returns (value, true) when s is one of those literal forms, and
// (nil, false) when s should instead be treated as a variable path or
// left as plain text — the condition evaluator (C3) relies on this to
// decide whether its left-hand side is a literal or a path.
func ParseLiteral(s string) (interface{}, bool) {
	switch s {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}

	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, true
	}

	return nil, false
}
