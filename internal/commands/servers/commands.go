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

// Package servers implements the mcpctl commands that manage MCP servers.
package servers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/completion"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// NewCommands returns every server management command.
func NewCommands() []*cobra.Command {
	cmds := []*cobra.Command{
		newListCommand(),
		newGetCommand(),
		newAddCommand(),
		newEditCommand(),
		newRemoveCommand(),
		newDuplicateCommand(),
		newEnabledCommand(true),
		newEnabledCommand(false),
		newTestCommand(),
		newStopCommand(),
		newActiveCommand(),
		newReloadCommand(),
	}
	for _, cmd := range cmds {
		if strings.Contains(cmd.Use, "<id|name>") {
			cmd.ValidArgsFunction = completion.CompleteServers
		}
		if cmd.Flags().Lookup("type") != nil {
			_ = cmd.RegisterFlagCompletionFunc("type", completion.CompleteTransportTypes)
		}
		if cmd.Flags().Lookup("status") != nil {
			_ = cmd.RegisterFlagCompletionFunc("status", completion.CompleteStatuses)
		}
	}
	return cmds
}

func withClient(run func(cmd *cobra.Command, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := shared.NewClient()
		if err != nil {
			return err
		}
		return run(cmd, c, args)
	}
}

// emitServer prints s as JSON or as a detail block.
func emitServer(cmd *cobra.Command, s *store.Server) error {
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), s)
	}
	printServer(cmd.OutOrStdout(), s)
	return nil
}

func newListCommand() *cobra.Command {
	var opts struct {
		search string
		typ    string
		status string
	}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured MCP servers",
		Example: `  # List every server
  mcpctl list

  # Only servers that failed to connect
  mcpctl list --status error

  # Extract ids for scripting
  mcpctl list --json | jq -r '.servers[].id'`,
		Args: cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, _ []string) error {
			list, err := c.ListServers(cmd.Context(), client.ListOptions{
				Search: opts.search,
				Type:   store.TransportType(opts.typ),
				Status: store.Status(opts.status),
			})
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), list)
			}
			printServerTable(cmd.OutOrStdout(), list)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Filter by name or description")
	cmd.Flags().StringVar(&opts.typ, "type", "", "Filter by transport (sse, stdio)")
	cmd.Flags().StringVar(&opts.status, "status", "", "Filter by status (disconnected, connecting, connected, error)")

	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|name>",
		Short: "Show one MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			return emitServer(cmd, s)
		}),
	}
}

func newAddCommand() *cobra.Command {
	var (
		flags       transportFlags
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new MCP server",
		Long: `Register a new MCP server. New servers start disabled and disconnected.

SSE servers are reached directly at --url. Stdio servers run --command in
a sandbox and are reached through it once started.`,
		Example: `  # Remote server with an auth header
  mcpctl add docs --url https://docs.example.com/sse --header "Authorization=Bearer abc"

  # Local command run in a sandbox
  mcpctl add files --command npx --arg -y --arg @modelcontextprotocol/server-filesystem --arg /data

  # Prompt for every field
  mcpctl add -i`,
		Args: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			var in mcp.ServerInput
			if interactive {
				if !shared.IsInteractive() {
					return shared.NewUsageError("-i needs an interactive terminal", nil)
				}
				if len(args) == 1 {
					in.Name = args[0]
				}
				if err := promptServerInput(&in); err != nil {
					return err
				}
			} else {
				t, err := flags.transport()
				if err != nil {
					return shared.NewUsageError(err.Error(), nil)
				}
				in = mcp.ServerInput{Name: args[0], Description: flags.description, Transport: t}
			}

			s, err := c.CreateServer(cmd.Context(), in)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), s)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Added %s (%s)", s.Name, s.ID)))
			fmt.Fprintf(cmd.OutOrStdout(), "\nEnable it with: mcpctl enable %s\n", shortID(s.ID))
			return nil
		}),
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for server details")

	return cmd
}

func newEditCommand() *cobra.Command {
	var (
		flags transportFlags
		name  string
	)

	cmd := &cobra.Command{
		Use:   "edit <id|name>",
		Short: "Change an MCP server's configuration",
		Long: `Change an MCP server's configuration. Only the flags given are changed.

Editing does not reconnect a running server; run 'mcpctl test' afterwards.`,
		Example: `  mcpctl edit docs --url https://docs.example.com/v2/sse
  mcpctl edit files --arg /srv --arg /data`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}

			in := mcp.ServerInput{Name: s.Name, Description: s.Description}
			if cmd.Flags().Changed("name") {
				in.Name = name
			}
			if cmd.Flags().Changed("description") {
				in.Description = flags.description
			}
			in.Transport, err = flags.apply(cmd.Flags(), s.Transport)
			if err != nil {
				return shared.NewUsageError(err.Error(), nil)
			}

			updated, err := c.UpdateServer(cmd.Context(), s.ID, in)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), updated)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Updated "+updated.Name))
			return nil
		}),
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&name, "name", "", "New name")

	return cmd
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete an MCP server and stop its sandbox",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteServer(cmd.Context(), s.ID); err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]string{"deleted": s.ID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Removed "+s.Name))
			return nil
		}),
	}
}

func newDuplicateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "duplicate <id|name>",
		Short: "Copy an MCP server's configuration",
		Long:  `Copy an MCP server's configuration. The copy is named "<name> (Copy)" unless --name is given, and starts disabled.`,
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			dup, err := c.DuplicateServer(cmd.Context(), s.ID, name)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), dup)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Created %s (%s)", dup.Name, dup.ID)))
			return nil
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the copy")

	return cmd
}

func newEnabledCommand(enabled bool) *cobra.Command {
	use, short := "enable", "Include an MCP server in the active set"
	if !enabled {
		use, short = "disable", "Exclude an MCP server from the active set"
	}

	return &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			updated, err := c.SetEnabled(cmd.Context(), s.ID, enabled)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), updated)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s %sd", updated.Name, use)))
			return nil
		}),
	}
}

func newTestCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:     "test <id|name>",
		Aliases: []string{"start", "connect"},
		Short:   "Connect an MCP server and report the result",
		Long: `Connect an MCP server. SSE servers are polled until they answer;
stdio servers are started in a sandbox first.

With --wait (the default) the command blocks until the server is connected
or has failed, and exits non-zero on failure.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			result, err := c.Start(cmd.Context(), s.ID, wait)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				if err := shared.EmitJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printTestResult(cmd, result)
			}
			if result.Status == store.StatusError {
				return &shared.ExitError{Code: shared.ExitFailure, Message: result.ErrorMessage}
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Wait until the server is connected or has failed")

	return cmd
}

func printTestResult(cmd *cobra.Command, s *store.Server) {
	out := cmd.OutOrStdout()
	switch s.Status {
	case store.StatusConnected:
		fmt.Fprintln(out, shared.RenderOK(s.Name+" is connected"))
	case store.StatusError:
		fmt.Fprintln(out, shared.RenderError(s.Name+": "+s.ErrorMessage))
	default:
		fmt.Fprintf(out, "%s is %s\n", s.Name, shared.RenderServerStatus(s.Status, 0))
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop <id|name>",
		Aliases: []string{"disconnect"},
		Short:   "Disconnect an MCP server",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, args []string) error {
			s, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			stopped, err := c.Stop(cmd.Context(), s.ID)
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), stopped)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(stopped.Name+" stopped"))
			return nil
		}),
	}
}

func newActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the connection descriptors of enabled, connected servers",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, _ []string) error {
			active, err := c.ActiveServers(cmd.Context())
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				if active == nil {
					active = []mcp.ActiveServer{}
				}
				return shared.EmitJSON(cmd.OutOrStdout(), active)
			}
			printActive(cmd.OutOrStdout(), active)
			return nil
		}),
	}
}

func newReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read servers from the daemon's store",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c *client.Client, _ []string) error {
			list, err := c.Reload(cmd.Context())
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), list)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Reloaded %d servers", len(list.Servers))))
			return nil
		}),
	}
}
