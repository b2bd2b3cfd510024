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

// Package main implements the marktoflow CLI: parse and run a workflow
// markdown file, wiring the engine to the registry, tool adapters, and
// observability ambient stack. Grounded on axonctl/main.go's root cobra
// command plus subcommand layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "marktoflow",
		Short:   "marktoflow workflow execution engine",
		Long:    `marktoflow parses and runs workflow markdown files against a configurable tool registry.`,
		Version: version,
	}

	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
