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

package main

import (
	"context"
	"fmt"

	"github.com/scottgl9/marktoflow-sub001/internal/model"
	"github.com/scottgl9/marktoflow-sub001/internal/registry"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/ai"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/httptool"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/mongodb"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/mysql"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/postgres"
	goredis "github.com/scottgl9/marktoflow-sub001/internal/tools/redis"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/s3"
	"github.com/scottgl9/marktoflow-sub001/internal/tools/slack"
)

// buildRegistry registers every alias the workflow's "tools" front-matter
// section declares, lazily instantiated on first Load via a factory keyed
// on each alias's "type" field.
func buildRegistry(workflow *model.Workflow, agentAPIKey string) *registry.Registry {
	reg := registry.New()
	reg.SetFactory(func(alias string, config map[string]interface{}) (interface{}, error) {
		return newTool(alias, config, agentAPIKey)
	})
	for alias, cfg := range workflow.Tools {
		reg.RegisterConfig(alias, cfg)
	}
	return reg
}

func newTool(alias string, config map[string]interface{}, agentAPIKey string) (interface{}, error) {
	kind, _ := config["type"].(string)
	if kind == "" {
		kind = alias
	}
	ctx := context.Background()

	switch kind {
	case "postgres":
		return postgres.New(ctx, stringOr(config, "dsn", ""))
	case "mysql":
		return mysql.New(ctx, stringOr(config, "dsn", ""))
	case "redis":
		return goredis.New(ctx, stringOr(config, "addr", "localhost:6379"), stringOr(config, "password", ""), intOr(config, "db", 0))
	case "mongodb":
		return mongodb.New(ctx, stringOr(config, "uri", ""), stringOr(config, "database", ""))
	case "s3":
		return s3.New(ctx, stringOr(config, "bucket", ""))
	case "slack":
		return slack.New(stringOr(config, "botToken", "")), nil
	case "ai":
		return ai.New(stringOr(config, "apiKey", agentAPIKey), stringOr(config, "model", "")), nil
	case "http":
		headers := map[string]string{}
		if raw, ok := config["headers"].(map[string]interface{}); ok {
			for k, v := range raw {
				headers[k], _ = v.(string)
			}
		}
		return httptool.New(alias, stringOr(config, "baseURL", ""), headers), nil
	default:
		return nil, fmt.Errorf("registry: unknown tool type %q for alias %q", kind, alias)
	}
}

func stringOr(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return fallback
}

func intOr(config map[string]interface{}, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	default:
		return fallback
	}
}
