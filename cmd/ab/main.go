package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionboard/internal/config"
	"actionboard/internal/domain"
	"actionboard/internal/engine"
	"actionboard/internal/export"
	"actionboard/internal/registry"
	"actionboard/internal/server"
	"actionboard/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ab",
	Short: "Actionboard CLI",
	Long: `Actionboard tracks organizational activities shared by several responsible
people. Each person keeps their own status; the activity's overall status is
derived from all of them. Marking yourself "pending" requires a justification
that the director approves or rejects, and every change lands in an
append-only history.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ACTIONBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "actionboard.yml", "config file")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user name")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(responsibleCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(statusesCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(backupCmd())
}

func loadConfig() (config.Config, error) {
	return config.LoadOptional(viper.GetString("config"))
}

func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return store.NewFileStore(cfg.DataDir, nil), func() {}, nil
	}
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine, *registry.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	reg := registry.New(st)
	return fn(ctx, engine.New(st, reg, nil), reg)
}

func actor() (string, error) {
	user := strings.TrimSpace(viper.GetString("user"))
	if user == "" {
		return "", errors.New("--user is required (or set ACTIONBOARD_USER)")
	}
	return user, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Listen
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			reg := registry.New(st)
			handler, err := server.New(server.Config{
				Engine:   engine.New(st, reg, nil),
				Registry: reg,
				BasePath: basePath,
				Session: server.SessionConfig{
					Secret: cfg.Session.Secret,
					Cookie: cfg.Session.Cookie,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Actionboard API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage activities"}
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activitySetStatusCmd())
	act.AddCommand(activityReviewCmd())
	act.AddCommand(activityEditCmd())
	act.AddCommand(activityDeleteCmd())
	return act
}

func activityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				activities, err := e.ListFor(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(activities)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Deadline", "Overall", "Responsible"})
				for _, a := range activities {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Deadline, a.Overall().Label(), strings.Join(a.Responsible, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one activity with statuses and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				a, err := e.Get(ctx, id, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("#%d %s (deadline %s, overall %s)\n", a.ID, a.Title, a.Deadline, a.Overall().Label())
				fmt.Printf("%s\n\n", a.Description)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Person", "Status", "Comment", "Justification", "Approved"})
				for _, p := range a.Responsible {
					ps := a.ResponsibleStatus[p]
					tw.AppendRow(table.Row{p, ps.Status.Label(), ps.Comment, ps.Justification, ps.JustificationApproved})
				}
				tw.Render()
				fmt.Println()
				hw := table.NewWriter()
				hw.SetOutputMirror(os.Stdout)
				hw.AppendHeader(table.Row{"When", "Action", "User", "Comment"})
				for _, h := range a.History {
					hw.AppendRow(table.Row{h.Timestamp, h.Action, h.User, h.Comment})
				}
				hw.Render()
				return nil
			})
		},
	}
}

func activityCreateCmd() *cobra.Command {
	var title, description, deadline string
	var responsible []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				a, err := e.Create(ctx, engine.CreateOptions{
					Title:       title,
					Description: description,
					Deadline:    deadline,
					Responsible: responsible,
					Actor:       user,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("created activity #%d\n", a.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "activity title")
	cmd.Flags().StringVar(&description, "description", "", "activity description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&responsible, "responsible", nil, "responsible people (repeatable)")
	return cmd
}

func activitySetStatusCmd() *cobra.Command {
	var person, status, comment, justification string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change a person's status on an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := domain.ParseStatus(status)
			if err != nil {
				return err
			}
			if person == "" {
				person = user
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				a, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
					ID:            id,
					Person:        person,
					Status:        st,
					Comment:       comment,
					Justification: justification,
					Actor:         user,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("activity #%d: %s is now %s (overall %s)\n", a.ID, person, st.Label(), a.Overall().Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&person, "person", "", "person to update (defaults to the acting user)")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&comment, "comment", "", "short comment (5 words max)")
	cmd.Flags().StringVar(&justification, "justification", "", "justification (required for pending)")
	return cmd
}

func activityReviewCmd() *cobra.Command {
	var decision, comment string
	cmd := &cobra.Command{
		Use:   "review <id> <person>",
		Short: "Approve or reject a pending justification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				a, err := e.Review(ctx, engine.ReviewOptions{
					ID:       id,
					Person:   args[1],
					Decision: engine.Decision(decision),
					Comment:  comment,
					Actor:    user,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("justification of %s on activity #%d: %sd\n", args[1], a.ID, decision)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approve or reject")
	cmd.Flags().StringVar(&comment, "comment", "", "short comment (5 words max)")
	return cmd
}

func activityEditCmd() *cobra.Command {
	var title, description, deadline string
	var responsible []string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an activity (director only)",
		Long:  "Unset flags keep their current value. The responsible list, when given, replaces the old one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				current, err := e.Get(ctx, id, user)
				if err != nil {
					return err
				}
				opts := engine.EditOptions{
					ID:          id,
					Title:       current.Title,
					Description: current.Description,
					Deadline:    current.Deadline,
					Responsible: current.Responsible,
					Actor:       user,
				}
				if cmd.Flags().Changed("title") {
					opts.Title = title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = description
				}
				if cmd.Flags().Changed("deadline") {
					opts.Deadline = deadline
				}
				if cmd.Flags().Changed("responsible") {
					opts.Responsible = responsible
				}
				a, err := e.Edit(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("activity #%d updated\n", a.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&responsible, "responsible", nil, "new responsible list")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an activity and its history (director only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				if err := e.Delete(ctx, id, user); err != nil {
					return err
				}
				fmt.Printf("activity #%d deleted\n", id)
				return nil
			})
		},
	}
}

func responsibleCmd() *cobra.Command {
	resp := &cobra.Command{Use: "responsible", Short: "Manage the responsible registry"}
	resp.AddCommand(responsibleInitCmd())
	resp.AddCommand(responsibleListCmd())
	resp.AddCommand(responsibleAddCmd())
	resp.AddCommand(responsibleRemoveCmd())
	return resp
}

func responsibleInitCmd() *cobra.Command {
	var director string
	var managers []string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the registry with a director",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, _ *engine.Engine, reg *registry.Service) error {
				if err := reg.Init(ctx, director, managers); err != nil {
					return err
				}
				fmt.Printf("registry initialized, director: %s\n", director)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&director, "director", "", "director name")
	cmd.Flags().StringSliceVar(&managers, "manager", nil, "initial managers (repeatable)")
	return cmd
}

func responsibleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List managers with their activity counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, _ *engine.Engine, reg *registry.Service) error {
				snapshot, err := reg.Snapshot(ctx)
				if err != nil {
					return err
				}
				counts, err := reg.Counts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"managers": snapshot.Managers, "director": snapshot.Director, "activity_counts": counts})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Director", "Activities"})
				for _, m := range snapshot.Managers {
					tw.AppendRow(table.Row{m, snapshot.IsDirector(m), counts[m]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func responsibleAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Register a manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, _ *engine.Engine, reg *registry.Service) error {
				if err := reg.Add(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("manager %s registered\n", args[0])
				return nil
			})
		},
	}
}

func responsibleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Deregister a manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, _ *engine.Engine, reg *registry.Service) error {
				if err := reg.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("manager %s removed\n", args[0])
				return nil
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "List justifications awaiting review (director only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine, _ *registry.Service) error {
				pending, err := e.PendingJustifications(ctx, user)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pending)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Activity", "Title", "Person", "Justification"})
				for _, p := range pending {
					tw.AppendRow(table.Row{p.ActivityID, p.Title, p.Person, p.Justification})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func statusesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List the status catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				out := make([]map[string]string, 0, len(domain.AllStatuses))
				for _, s := range domain.AllStatuses {
					out = append(out, map[string]string{"value": string(s), "label": s.Label()})
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Value", "Label"})
			for _, s := range domain.AllStatuses {
				tw.AppendRow(table.Row{string(s), s.Label()})
			}
			tw.Render()
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all activities as CSV, one row per responsible person",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			c, err := st.LoadActivities(cmd.Context())
			if err != nil {
				return err
			}
			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.WriteCSV(w, c.Activities)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to stdout)")
	return cmd
}

func backupCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Zip the data directory into a timestamped archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, err := export.Backup(cfg.DataDir, out, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("backup written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "backups", "output directory")
	return cmd
}

func parseID(s string) (int, error) {
	var id int
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id < 1 {
		return 0, fmt.Errorf("invalid activity id %q", s)
	}
	return id, nil
}
