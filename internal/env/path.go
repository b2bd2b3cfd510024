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

package env

import (
	"strconv"
	"strings"
)

// pathSegment is one step of a resolved path: either a map key or a
// sequence index. Grammar: segment ( '.' segment | '[' index ']' )*
type pathSegment struct {
	key     string
	isIndex bool
	index   int
}

// splitPath parses "a.b[0].c" into [{a} {b} {0,isIndex} {c}].
func splitPath(path string) []pathSegment {
	var segments []pathSegment
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, pathSegment{key: cur.String()})
			cur.Reset()
		}
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '.':
			flush()
			i++
		case '[':
			flush()
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				// malformed: treat remainder as a literal key
				cur.WriteString(path[i:])
				i = len(path)
				break
			}
			idxStr := path[i+1 : i+j]
			if n, err := strconv.Atoi(idxStr); err == nil {
				segments = append(segments, pathSegment{isIndex: true, index: n})
			} else {
				segments = append(segments, pathSegment{key: idxStr})
			}
			i += j + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()

	return segments
}

// resolvePath walks segments over root, returning (value, found). A numeric
// segment is used as a sequence index only when the carrier at that point is
// a sequence; against a mapping it is treated as a string key instead.
func resolvePath(root interface{}, segments []pathSegment) (interface{}, bool) {
	cur := root
	for _, seg := range segments {
		switch carrier := cur.(type) {
		case map[string]interface{}:
			key := seg.key
			if seg.isIndex {
				key = strconv.Itoa(seg.index)
			}
			v, ok := carrier[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx := seg.index
			if !seg.isIndex {
				n, err := strconv.Atoi(seg.key)
				if err != nil {
					return nil, false
				}
				idx = n
			}
			if idx < 0 || idx >= len(carrier) {
				return nil, false
			}
			cur = carrier[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
