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

// Package sandbox implements the ScriptSandbox collaborator (spec §6) for
// Script steps using dop251/goja. goja is a direct go.mod dependency of the
// gridctl-gridctl example, but the retrieval pack filtered out its call
// site, so this embedding is authored fresh against goja's documented API
// rather than adapted from an example file.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// JSSandbox runs user script code in an embedded, single-goroutine-per-call
// goja VM. Per spec §1 Non-goals, the engine does not enforce syscall-level
// isolation -- goja itself never exposes host I/O unless explicitly bound,
// which is the isolation boundary this sandbox relies on.
type JSSandbox struct{}

// New returns a JSSandbox.
func New() *JSSandbox {
	return &JSSandbox{}
}

// Execute evaluates code with variables/inputs/steps bound into the global
// scope, racing it against timeout. goja doesn't support context
// cancellation mid-eval directly, so a deadline is enforced by interrupting
// the VM from a timer goroutine.
func (s *JSSandbox) Execute(ctx context.Context, code string, scope map[string]interface{}, timeout time.Duration) (interface{}, error) {
	vm := goja.New()
	for k, v := range scope {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("sandbox: binding %q: %w", k, err)
		}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("script execution cancelled")
		case <-stop:
		}
	}()

	val, err := vm.RunString(code)
	if err != nil {
		if ie, ok := err.(*goja.InterruptedError); ok {
			return nil, fmt.Errorf("script execution timed out: %v", ie)
		}
		return nil, fmt.Errorf("script execution failed: %w", err)
	}
	if val == nil {
		return nil, nil
	}
	return val.Export(), nil
}
