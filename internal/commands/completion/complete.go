// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package completion

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
)

// lookupTimeout bounds daemon calls made while the user waits on <TAB>.
const lookupTimeout = 2 * time.Second

// SafeCompletionWrapper runs fn and turns panics and nil results into an
// empty completion list.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteTransportTypes provides completion for --type flag values.
func CompleteTransportTypes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"sse\tRemote server reached over HTTP",
			"stdio\tLocal command run in a sandbox",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteStatuses provides completion for --status flag values.
func CompleteStatuses(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"disconnected\tNot connected",
			"connecting\tConnection in progress",
			"connected\tReady for use",
			"error\tLast connection attempt failed",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteServers completes the single server argument with names known
// to the daemon. Names are offered with the id as description.
func CompleteServers(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		c, err := shared.NewClient()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return serverNames(cmd.Context(), c, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

func serverNames(ctx context.Context, c *client.Client, prefix string) []string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	list, err := c.ListServers(ctx, client.ListOptions{})
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(list.Servers))
	for _, s := range list.Servers {
		if strings.HasPrefix(s.Name, prefix) {
			names = append(names, s.Name+"\t"+s.ID)
		}
	}
	return names
}
