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

// Package postgres implements the postgres Tool adapter, grounded on
// connectors/postgres/connector.go's database/sql + lib/pq connection and
// query-scan pattern.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool wraps a connected *sql.DB using the "postgres" driver.
type Tool struct {
	db      *sql.DB
	timeout time.Duration
}

// New opens a connection pool against dsn, configuring the same pool
// defaults connectors/postgres/connector.go uses (25 max open, 5 idle,
// 5-minute max lifetime), and pings to fail fast on a bad DSN.
func New(ctx context.Context, dsn string) (*Tool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Tool{db: db, timeout: 5 * time.Second}, nil
}

func (t *Tool) Name() string { return "postgres" }

// Query runs q.Statement with positional args taken from
// q.Parameters["args"], mirroring the teacher's buildArgs convention.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	rows, err := t.db.QueryContext(queryCtx, q.Statement, tools.PositionalArgs(q.Parameters)...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	results, err := tools.ScanRows(rows, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}
	return &tools.QueryResult{Rows: results, RowCount: len(results)}, nil
}

// Execute runs a statement expected to mutate state (INSERT/UPDATE/DELETE),
// reported via ExecContext rather than QueryContext.
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	stmt, _ := cmd.Parameters["statement"].(string)
	if stmt == "" {
		return nil, fmt.Errorf("postgres: execute requires parameters.statement")
	}
	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.db.ExecContext(execCtx, stmt, tools.PositionalArgs(cmd.Parameters)...)
	if err != nil {
		return nil, fmt.Errorf("postgres: exec: %w", err)
	}
	affected, _ := res.RowsAffected()
	return &tools.CommandResult{Success: true, Output: map[string]interface{}{"rowsAffected": affected}}, nil
}
