package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/juggajay/siteproof-v2-sub005/internal/agent"
	"github.com/juggajay/siteproof-v2-sub005/internal/config"
	"github.com/juggajay/siteproof-v2-sub005/internal/model"
	"github.com/juggajay/siteproof-v2-sub005/internal/offline"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the agent profile and wires the engine. The caller must defer app.Close().
func newApp(cmd *cobra.Command) (*agent.App, error) {
	configPath, _, err := config.AgentPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadAgentFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading profile (run `siteproof init` first): %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := agent.New(cfg, agent.NewLogger(os.Stderr, verbose))
	if err != nil {
		return nil, fmt.Errorf("initializing agent: %w", err)
	}
	return a, nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	f, _ := cmd.Flags().GetString("format")
	return agent.ParseFormat(f)
}

// online probes the server and reports whether the command can go ahead.
func online(ctx context.Context, a *agent.App) bool {
	if a.Probe(ctx) {
		return true
	}
	fmt.Fprintln(os.Stderr, "Server unreachable; working offline.")
	return false
}

func renderResult(cmd *cobra.Command, res *offline.SyncResult) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	view := agent.NewResultView(res)
	if err := agent.Render(os.Stdout, format, view, view.Text); err != nil {
		return err
	}
	if !res.Success {
		return res.Err
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "siteproof",
	Short:         "Offline-first ITP inspection agent",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default agent profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		apiKey, _ := cmd.Flags().GetString("api-key")
		projects, _ := cmd.Flags().GetStringSlice("project")

		configPath, baseDir, err := config.AgentPaths()
		if err != nil {
			return err
		}

		cfg := config.NewAgentConfig(server, user, baseDir)
		cfg.APIKey = apiKey
		cfg.ProjectIDs = projects
		if role != "" {
			cfg.OrgRole = role
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.InitAgentFile(configPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize profile: %w", err)
		}

		fmt.Printf("Profile written to %s\n", configPath)
		fmt.Printf("Server:   %s\n", cfg.ServerURL)
		fmt.Printf("User:     %s (%s)\n", cfg.UserID, cfg.OrgRole)
		fmt.Printf("Data Dir: %s\n", cfg.Store.DataDir)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, last sync and pending counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.Probe(ctx)
		status, err := a.Engine().GetSyncStatus(ctx)
		if err != nil {
			return err
		}

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		view := agent.NewStatusView(status)
		return agent.Render(os.Stdout, format, view, view.Text)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending inspections and pull server changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		online(ctx, a)
		return renderResult(cmd, a.Engine().PerformSync(ctx))
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch a snapshot of assigned projects for offline work",
	RunE: func(cmd *cobra.Command, args []string) error {
		incremental, _ := cmd.Flags().GetBool("incremental")
		responses, _ := cmd.Flags().GetBool("responses")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		online(ctx, a)
		return renderResult(cmd, a.Engine().BulkDownload(ctx, a.DownloadScope(incremental, responses)))
	},
}

var saveCmd = &cobra.Command{
	Use:   "save FILE",
	Short: "Save an inspection from a JSON file (- for stdin) to the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening inspection file: %w", err)
			}
			defer f.Close()
			r = f
		}

		var rec model.Inspection
		if err := json.NewDecoder(r).Decode(&rec); err != nil {
			return fmt.Errorf("decoding inspection: %w", err)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().SaveLocally(cmd.Context(), &rec); err != nil {
			return err
		}
		fmt.Printf("Saved %s (pending sync)\n", rec.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Print a local inspection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, ok, err := a.Engine().GetLocally(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("inspection %s not found locally", args[0])
		}

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		if format == agent.FormatText {
			format = agent.FormatJSON
		}
		return agent.Render(os.Stdout, format, rec, nil)
	},
}

func listCmd(use, short string, list func(*offline.Engine, context.Context) ([]*model.Inspection, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := list(a.Engine(), cmd.Context())
			if err != nil {
				return err
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			rows := agent.NewInspectionRows(recs)
			return agent.Render(os.Stdout, format, rows, agent.InspectionTable(rows))
		},
	}
}

var pendingCmd = listCmd("pending", "List inspections waiting to sync", (*offline.Engine).ListPending)

var conflictsCmd = listCmd("conflicts", "List inspections in conflict with the server", (*offline.Engine).ListConflicts)

var resolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Settle a conflicted inspection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")
		fieldsJSON, _ := cmd.Flags().GetString("fields")

		var merged map[string]interface{}
		if fieldsJSON != "" {
			if err := json.Unmarshal([]byte(fieldsJSON), &merged); err != nil {
				return fmt.Errorf("parsing --fields: %w", err)
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		online(ctx, a)
		rec, err := a.Resolver().Resolve(ctx, args[0], model.ResolutionStrategy(strategy), merged)
		if err != nil {
			return err
		}
		fmt.Printf("Resolved %s with %s; local copy is now synced\n", rec.ID, strategy)
		return nil
	},
}

var templateCmd = &cobra.Command{
	Use:   "template ID",
	Short: "Print a cached ITP template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		tpl, ok, err := a.Engine().GetTemplate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("template %s is not cached; run `siteproof download`", args[0])
		}
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		if format == agent.FormatText {
			format = agent.FormatJSON
		}
		return agent.Render(os.Stdout, format, tpl, nil)
	},
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "List downloaded ITP assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Engine().ListAssignments(cmd.Context())
		if err != nil {
			return err
		}
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		return agent.Render(os.Stdout, format, list, func(w io.Writer) error {
			if len(list) == 0 {
				_, err := fmt.Fprintln(w, "No assignments.")
				return err
			}
			for _, as := range list {
				due := "-"
				if as.DueDate != nil {
					due = as.DueDate.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%-36s  %-12s  %-12s  due %s  %s\n", as.ID, as.ProjectID, as.TemplateID, due, as.Status)
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all local data, including unsynced inspections",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear local data without --yes")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().ClearAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Local data cleared")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync periodically and whenever the server becomes reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		probe, _ := cmd.Flags().GetDuration("probe-interval")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(os.Stderr, "Watching for changes; press Ctrl-C to stop.")
		a.Watch(ctx, probe, func(res *offline.SyncResult) {
			view := agent.NewResultView(res)
			if err := agent.Render(os.Stdout, format, view, view.Text); err != nil {
				fmt.Fprintf(os.Stderr, "render: %v\n", err)
			}
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("format", "o", agent.FormatText, "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug details to stderr")

	initCmd.Flags().String("server", "http://localhost:8080", "API server base URL")
	initCmd.Flags().String("user", "", "User id asserted to the server")
	initCmd.Flags().String("role", "", "Organization role: owner, admin, member or viewer")
	initCmd.Flags().String("api-key", "", "API key for the server")
	initCmd.Flags().StringSlice("project", nil, "Project id to download (repeatable)")

	downloadCmd.Flags().Bool("incremental", false, "Only fetch rows changed since the last sync")
	downloadCmd.Flags().Bool("responses", false, "Include inspection responses in the snapshot")

	resolveCmd.Flags().String("strategy", string(model.ResolveUseServer), "use_client, use_server or merge")
	resolveCmd.Flags().String("fields", "", "JSON object of merged fields for the merge strategy")

	clearCmd.Flags().Bool("yes", false, "Confirm deletion of local data")

	watchCmd.Flags().Duration("probe-interval", agent.DefaultProbeInterval, "How often to check server reachability")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(assignmentsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(watchCmd)
}
