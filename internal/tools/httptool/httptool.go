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

// Package httptool implements a generic REST Tool adapter over net/http,
// standing in for the teacher's hand-rolled REST connectors (HubSpot, Jira,
// Salesforce, ServiceNow, Snowflake, Amadeus -- SPEC_FULL.md §2): those
// connectors have no distinguishing third-party dependency beyond
// net/http, so one generic adapter exercises that concern instead of
// duplicating it per vendor.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool is a generic JSON-over-REST adapter bound to one base URL.
type Tool struct {
	name    string
	baseURL string
	headers map[string]string
	client  *http.Client
}

// New returns a Tool named name, issuing requests against baseURL with
// headers attached to every call (e.g. Authorization).
func New(name, baseURL string, headers map[string]string) *Tool {
	return &Tool{
		name:    name,
		baseURL: baseURL,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Tool) Name() string { return t.name }

// Query issues a GET against q.Statement (a path relative to baseURL),
// with q.Parameters encoded as the query string, and decodes the JSON
// response body into a single-row result.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	u, err := t.resolve(q.Statement, q.Parameters)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", t.name, err)
	}
	t.applyHeaders(req)

	body, err := t.do(req)
	if err != nil {
		return nil, err
	}
	return &tools.QueryResult{Rows: []map[string]interface{}{body}, RowCount: 1}, nil
}

// Execute issues cmd.Action (an HTTP method, e.g. "POST") against
// parameters["path"], with parameters["body"] JSON-encoded as the request
// body.
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	path, _ := cmd.Parameters["path"].(string)
	var reqBody io.Reader
	if b, ok := cmd.Parameters["body"]; ok {
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request body: %w", t.name, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, cmd.Action, t.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.applyHeaders(req)

	out, err := t.do(req)
	if err != nil {
		return nil, err
	}
	return &tools.CommandResult{Success: true, Output: out}, nil
}

func (t *Tool) applyHeaders(req *http.Request) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
}

func (t *Tool) resolve(path string, params map[string]interface{}) (string, error) {
	u, err := url.Parse(t.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("%s: parsing URL: %w", t.name, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Tool) do(req *http.Request) (map[string]interface{}, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", t.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: unexpected status %d", t.name, resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%s: decoding response: %w", t.name, err)
	}
	return out, nil
}
