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

// Package s3 implements the s3 Tool adapter on top of
// aws-sdk-go-v2/service/s3, grounded on connectors/s3's one-bucket-per-tool
// shape and its blob-store-as-the-sole-binding decision recorded in
// SPEC_FULL.md §2 (azure blob / GCS dropped in favor of this one adapter).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool wraps an s3.Client scoped to one bucket.
type Tool struct {
	client *s3.Client
	bucket string
}

// New loads the default AWS config (environment/shared-config chain) and
// returns a Tool bound to bucket.
func New(ctx context.Context, bucket string) (*Tool, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}
	return &Tool{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (t *Tool) Name() string { return "s3" }

// Query treats q.Statement as an object key and returns its bytes as a
// single "row", the closest blob-store analogue to a relational row.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(t.bucket), Key: aws.String(q.Statement)})
	if err != nil {
		return nil, fmt.Errorf("s3: getObject %q: %w", q.Statement, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: reading object %q: %w", q.Statement, err)
	}
	return &tools.QueryResult{
		Rows:     []map[string]interface{}{{"key": q.Statement, "body": data}},
		RowCount: 1,
	}, nil
}

// Execute dispatches on cmd.Action: "putObject" (parameters.key/body) or
// "deleteObject" (parameters.key).
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	key, _ := cmd.Parameters["key"].(string)
	switch cmd.Action {
	case "putObject":
		body, _ := cmd.Parameters["body"].(string)
		_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte(body)),
		})
		if err != nil {
			return nil, fmt.Errorf("s3: putObject %q: %w", key, err)
		}
		return &tools.CommandResult{Success: true}, nil
	case "deleteObject":
		_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(t.bucket), Key: aws.String(key)})
		if err != nil {
			return nil, fmt.Errorf("s3: deleteObject %q: %w", key, err)
		}
		return &tools.CommandResult{Success: true}, nil
	default:
		return nil, fmt.Errorf("s3: unsupported action %q", cmd.Action)
	}
}
