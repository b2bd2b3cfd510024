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

// Package registry implements the ToolRegistry collaborator (spec §6),
// grounded on connectors/registry/registry.go: the same thread-safe
// map-backed store with lazy factory-based instantiation, generalized from
// MCP connectors to the engine's opaque tool handles.
package registry

import (
	"fmt"
	"sync"
)

// Factory lazily constructs a tool handle for a registered alias the first
// time it's loaded, mirroring the teacher's ConnectorFactory.
type Factory func(alias string, config map[string]interface{}) (interface{}, error)

// Registry is the concrete, in-memory ToolRegistry implementation.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]interface{}
	configs map[string]map[string]interface{}
	factory Factory
}

// New returns an empty Registry with no lazy factory.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]interface{}),
		configs: make(map[string]map[string]interface{}),
	}
}

// SetFactory installs the factory used to lazily build a tool handle for an
// alias registered via RegisterConfig but not yet Loaded.
func (r *Registry) SetFactory(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = f
}

// Register installs an already-constructed tool handle under alias.
func (r *Registry) Register(alias string, handle interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[alias] = handle
}

// RegisterConfig installs config for alias without constructing a handle
// yet; the handle is built lazily on first Load via the configured Factory.
func (r *Registry) RegisterConfig(alias string, config map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[alias] = config
}

// Load resolves alias to its tool handle, lazily constructing it through
// the factory on first access if only a config was registered.
func (r *Registry) Load(alias string) (interface{}, error) {
	r.mu.RLock()
	handle, ok := r.tools[alias]
	config, hasConfig := r.configs[alias]
	factory := r.factory
	r.mu.RUnlock()

	if ok {
		return handle, nil
	}
	if hasConfig && factory != nil {
		built, err := factory(alias, config)
		if err != nil {
			return nil, fmt.Errorf("registry: building tool %q: %w", alias, err)
		}
		r.mu.Lock()
		r.tools[alias] = built
		r.mu.Unlock()
		return built, nil
	}
	return nil, fmt.Errorf("registry: tool %q not registered", alias)
}

// Has reports whether alias is known (registered or configured), without
// forcing lazy construction.
func (r *Registry) Has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.tools[alias]; ok {
		return true
	}
	_, ok := r.configs[alias]
	return ok
}
