// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import "database/sql"

// ScanRows materializes a *sql.Rows cursor into the engine's generic
// row-map shape, the same column-name-keyed map postgres/connector.go's
// Query builds, converting []byte to string for text/varchar columns.
func ScanRows(rows *sql.Rows, limit int) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		if limit > 0 && len(results) >= limit {
			break
		}
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// PositionalArgs extracts the "args" key's slice value as the positional
// parameters for a "$1, $2, ..." (postgres) or "?, ?, ..." (mysql)
// placeholder statement -- the same convention postgres/connector.go's
// buildArgs implements for named-parameter-to-positional conversion,
// simplified to a single ordered slice since the workflow author controls
// both the statement and its args template expression.
func PositionalArgs(params map[string]interface{}) []interface{} {
	if params == nil {
		return nil
	}
	raw, ok := params["args"]
	if !ok {
		return nil
	}
	if args, ok := raw.([]interface{}); ok {
		return args
	}
	return nil
}
