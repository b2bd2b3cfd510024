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

// Package redis implements the redis Tool adapter on top of
// github.com/redis/go-redis/v9, grounded on connectors/redis's
// connect-then-command shape. v9 is used in place of the teacher's older
// pin since it's the actively maintained client line (SPEC_FULL.md §2).
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

func secondsToDuration(s int64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

// Tool wraps a connected *goredis.Client.
type Tool struct {
	client *goredis.Client
}

// New connects to addr (host:port) and pings to fail fast on a bad target.
func New(ctx context.Context, addr, password string, db int) (*Tool, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Tool{client: client}, nil
}

func (t *Tool) Name() string { return "redis" }

// Query treats q.Statement as a key name and returns its string value as a
// single "row", since redis has no relational result shape to mirror.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	val, err := t.client.Get(ctx, q.Statement).Result()
	if err == goredis.Nil {
		return &tools.QueryResult{Rows: nil, RowCount: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q: %w", q.Statement, err)
	}
	return &tools.QueryResult{
		Rows:     []map[string]interface{}{{"key": q.Statement, "value": val}},
		RowCount: 1,
	}, nil
}

// Execute dispatches on cmd.Action: "set" (parameters.key/value[/ttlSeconds])
// or "del" (parameters.key).
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	key, _ := cmd.Parameters["key"].(string)
	switch cmd.Action {
	case "set":
		value := cmd.Parameters["value"]
		var ttl int64
		switch v := cmd.Parameters["ttlSeconds"].(type) {
		case float64:
			ttl = int64(v)
		case int:
			ttl = int64(v)
		}
		if err := t.client.Set(ctx, key, value, secondsToDuration(ttl)).Err(); err != nil {
			return nil, fmt.Errorf("redis: set %q: %w", key, err)
		}
		return &tools.CommandResult{Success: true}, nil
	case "del":
		n, err := t.client.Del(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: del %q: %w", key, err)
		}
		return &tools.CommandResult{Success: true, Output: map[string]interface{}{"deleted": n}}, nil
	default:
		return nil, fmt.Errorf("redis: unsupported action %q", cmd.Action)
	}
}
