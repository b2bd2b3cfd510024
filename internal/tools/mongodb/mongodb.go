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

// Package mongodb implements the mongodb Tool adapter on top of
// go.mongodb.org/mongo-driver, grounded on connectors/mongodb's
// connect-once/reuse-client shape.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scottgl9/marktoflow-sub001/internal/tools"
)

// Tool wraps a connected *mongo.Client scoped to one database.
type Tool struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri and selects database dbName.
func New(ctx context.Context, uri, dbName string) (*Tool, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return &Tool{client: client, db: client.Database(dbName)}, nil
}

func (t *Tool) Name() string { return "mongodb" }

// Query treats q.Statement as a collection name and q.Parameters as the
// filter document.
func (t *Tool) Query(ctx context.Context, q *tools.Query) (*tools.QueryResult, error) {
	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := t.db.Collection(q.Statement).Find(ctx, bson.M(q.Parameters), opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []map[string]interface{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode: %w", err)
	}
	return &tools.QueryResult{Rows: docs, RowCount: len(docs)}, nil
}

// Execute dispatches on cmd.Action: "insertOne" (parameters.collection,
// parameters.document) or "deleteMany" (parameters.collection,
// parameters.filter).
func (t *Tool) Execute(ctx context.Context, cmd *tools.Command) (*tools.CommandResult, error) {
	collection, _ := cmd.Parameters["collection"].(string)
	if collection == "" {
		return nil, fmt.Errorf("mongodb: execute requires parameters.collection")
	}
	coll := t.db.Collection(collection)

	switch cmd.Action {
	case "insertOne":
		doc, _ := cmd.Parameters["document"].(map[string]interface{})
		res, err := coll.InsertOne(ctx, bson.M(doc))
		if err != nil {
			return nil, fmt.Errorf("mongodb: insertOne: %w", err)
		}
		return &tools.CommandResult{Success: true, Output: map[string]interface{}{"insertedId": res.InsertedID}}, nil
	case "deleteMany":
		filter, _ := cmd.Parameters["filter"].(map[string]interface{})
		res, err := coll.DeleteMany(ctx, bson.M(filter))
		if err != nil {
			return nil, fmt.Errorf("mongodb: deleteMany: %w", err)
		}
		return &tools.CommandResult{Success: true, Output: map[string]interface{}{"deletedCount": res.DeletedCount}}, nil
	default:
		return nil, fmt.Errorf("mongodb: unsupported action %q", cmd.Action)
	}
}
