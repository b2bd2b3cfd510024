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

// Package tmpl implements the workflow engine's template renderer (C2): a
// pure function from (template, environment) to a value. A single
// "{{ expr }}" template returns its resolved value with native type
// preserved; any richer template is resolved by string interpolation of
// each "{{ ... }}" occurrence.
package tmpl
