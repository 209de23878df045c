package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/mcpserver"
	"github.com/flynn-ai/tripwise/internal/pdf"
	"github.com/flynn-ai/tripwise/internal/server"
	"github.com/flynn-ai/tripwise/internal/tui"
)

// ============================================================
// serve
// ============================================================

func newServeCommand(opts *options) *cobra.Command {
	var addr, static string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			if static != "" {
				cfg.StaticDir = static
			}
			srv := server.New(rt.Agent, cfg, server.Options{Logger: rt.Logger, DBPath: rt.DBPath()})
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&static, "static", "", "directory with a web UI to serve at /")
	return cmd
}

// ============================================================
// chat
// ============================================================

func newChatCommand(opts *options) *cobra.Command {
	var remote, sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			outDir, err := os.Getwd()
			if err != nil {
				return err
			}

			if remote != "" {
				return tui.Run(cmd.Context(), tui.NewRemote(remote), sessionID, outDir)
			}

			rt, err := opts.runtime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return tui.Run(cmd.Context(), &tui.Local{Agent: rt.Agent}, sessionID, outDir)
		},
	}
	cmd.Flags().StringVar(&remote, "server", "", "talk to a running server (e.g. http://localhost:8000)")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	return cmd
}

// ============================================================
// ask
// ============================================================

func newAskCommand(opts *options) *cobra.Command {
	var sessionID, pdfPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			reply, err := rt.Agent.Ask(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reply); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, reply.Answer)
				fmt.Fprintf(cmd.ErrOrStderr(), "\nsession %s · %d rounds · %d tool calls · %d tokens\n",
					reply.SessionID, reply.Rounds, len(reply.ToolCalls), reply.TokensUsed)
			}

			if pdfPath != "" {
				return writePDF(pdfPath, reply.Answer)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "also write the answer as a PDF to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full reply as JSON")
	return cmd
}

func writePDF(path, answer string) error {
	var buf bytes.Buffer
	if err := pdf.Render(&buf, answer, time.Now()); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, errors.CodeFileWriteFailed, "cannot write "+path, errors.CategorySystem)
	}
	return nil
}

// ============================================================
// mcp
// ============================================================

func newMCPCommand(opts *options) *cobra.Command {
	var withAgent bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the travel tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol; logs go to stderr
			rt, err := opts.runtime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			mopts := mcpserver.Options{Logger: rt.Logger}
			if withAgent {
				mopts.Agent = rt.Agent
			}
			return mcpserver.ServeStdio(cmd.Context(), mcpserver.New(rt.Tools, mopts))
		},
	}
	cmd.Flags().BoolVar(&withAgent, "agent", true, "also expose the full agent as plan_trip")
	return cmd
}

// ============================================================
// tools
// ============================================================

func newToolsCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			defs := server.Definitions(rt.Tools.Specs())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, d := range defs {
				params := make([]string, 0, len(d.Parameters))
				for name, p := range d.Parameters {
					if !p.Required {
						name += "?"
					}
					params = append(params, name)
				}
				sort.Strings(params)
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, strings.Join(params, ", "), d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON descriptors")
	return cmd
}

// ============================================================
// config
// ============================================================

func newConfigCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return errors.NewBuilder(errors.CodeConfigInvalid, opts.configPath+" already exists").
					User().
					WithSuggestion("Pass --force to overwrite it").
					Build()
			}
			if err := config.Default().Save(opts.configPath); err != nil {
				return errors.Wrap(err, errors.CodeFileWriteFailed, "cannot write "+opts.configPath, errors.CategorySystem)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote "+opts.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (keys redacted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			r, err := cfg.LLM.Resolve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider:        %s\n", r.Provider)
			fmt.Fprintf(out, "model:           %s\n", r.Model)
			fmt.Fprintf(out, "base_url:        %s\n", r.BaseURL)
			fmt.Fprintf(out, "api_key:         %s\n", redact(r.APIKey))
			fmt.Fprintf(out, "session_backend: %s\n", cfg.Session.Backend)
			fmt.Fprintf(out, "server_addr:     %s\n", cfg.Server.Addr)
			fmt.Fprintf(out, "max_tool_rounds: %d\n", cfg.Agent.MaxToolRounds)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func redact(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-2:]
}
