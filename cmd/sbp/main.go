package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChristianSBP/sbp-services/internal/app"
	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/db"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/events"
	"github.com/ChristianSBP/sbp-services/internal/generate"
	"github.com/ChristianSBP/sbp-services/internal/repo"
	"github.com/ChristianSBP/sbp-services/internal/schedule"
	"github.com/ChristianSBP/sbp-services/internal/server"
	"github.com/google/uuid"
)

var rootCmd = &cobra.Command{
	Use:   "sbp",
	Short: "SBP duty plan CLI",
	Long: `sbp manages orchestra duty schedules: seasons, duties and the roster live
in a local workspace database, every change can be checked against the
collective agreement before it is saved, and finished plans are generated as
collective and per-member documents.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("SBP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(seasonCmd())
	rootCmd.AddCommand(dutyCmd())
	rootCmd.AddCommand(musicianCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the tariff configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default tariff config to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective tariff config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func seasonCmd() *cobra.Command {
	season := &cobra.Command{Use: "season", Short: "Manage seasons"}
	season.AddCommand(seasonCreateCmd())
	season.AddCommand(seasonListCmd())
	season.AddCommand(seasonActivateCmd())
	season.AddCommand(seasonDeleteCmd())
	return season
}

func seasonCreateCmd() *cobra.Command {
	var name, start, end string
	var activate bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a season",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s := domain.Season{
					ID:        uuid.NewString(),
					Name:      name,
					StartDate: start,
					EndDate:   end,
					CreatedAt: a.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertSeason(ctx, s); err != nil {
					return err
				}
				if activate {
					if err := a.Repo.SetActiveSeason(ctx, s.ID); err != nil {
						return err
					}
					s.IsActive = true
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "season name")
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&activate, "activate", false, "mark the season active")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func seasonListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List seasons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListSeasons(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "START", "END", "ACTIVE", "DUTIES")
				for _, s := range items {
					t.AppendRow(table.Row{s.ID, s.Name, s.StartDate, s.EndDate, s.IsActive, s.DutyCount})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
}

func seasonActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <season-id>",
		Short: "Mark a season active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.SetActiveSeason(ctx, args[0]); err != nil {
					return err
				}
				s, err := a.Repo.GetSeason(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func seasonDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <season-id>",
		Short: "Delete a season",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteSeason(ctx, args[0])
			})
		},
	}
}

func dutyFlags(cmd *cobra.Command, d *dutyInput) {
	cmd.Flags().StringVar(&d.SeasonID, "season", "", "season id (defaults to the active season)")
	cmd.Flags().StringVar(&d.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.Start, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&d.End, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&d.Type, "type", "rehearsal", "duty type")
	cmd.Flags().StringVar(&d.Formation, "formation", "tutti", "formation")
	cmd.Flags().StringVar(&d.Status, "status", "planned", "status (fixed, planned, possible)")
	cmd.Flags().StringVar(&d.Program, "program", "", "program")
	cmd.Flags().StringVar(&d.Venue, "venue", "", "venue")
	cmd.Flags().StringVar(&d.Conductor, "conductor", "", "conductor")
	cmd.Flags().StringVar(&d.Notes, "notes", "", "notes")
}

type dutyInput struct {
	SeasonID, Date, Start, End, Type, Formation, Status string
	Program, Venue, Conductor, Notes                    string
}

func (in dutyInput) toDuty() domain.Duty {
	return domain.Duty{
		SeasonID:  in.SeasonID,
		Date:      in.Date,
		StartTime: optionalString(in.Start),
		EndTime:   optionalString(in.End),
		Type:      domain.DutyType(in.Type),
		Formation: domain.Formation(in.Formation),
		Status:    domain.DutyStatus(in.Status),
		Program:   in.Program,
		Venue:     in.Venue,
		Conductor: in.Conductor,
		Notes:     in.Notes,
	}
}

func dutyCmd() *cobra.Command {
	duty := &cobra.Command{Use: "duty", Short: "Manage duties"}
	duty.AddCommand(dutyAddCmd())
	duty.AddCommand(dutyListCmd())
	duty.AddCommand(dutyDeleteCmd())
	return duty
}

func dutyAddCmd() *cobra.Command {
	var in dutyInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a duty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d := in.toDuty()
				if d.SeasonID == "" {
					season, err := a.Repo.ActiveSeason(ctx)
					if err != nil {
						return fmt.Errorf("no active season; pass --season: %w", err)
					}
					d.SeasonID = season.ID
				}
				d.ID = uuid.NewString()
				now := a.Now().UTC().Format(time.RFC3339)
				d.CreatedAt, d.UpdatedAt = now, now
				tx, err := a.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := a.Repo.InsertDuty(ctx, tx, d); err != nil {
					return err
				}
				actor := viper.GetString("actor-id")
				if err := a.Events.Append(ctx, tx, events.DutyCreated, d.SeasonID, "duty", d.ID, actor, events.EventPayload{"date": d.Date, "type": d.Type}); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	dutyFlags(cmd, &in)
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func dutyListCmd() *cobra.Command {
	var seasonID, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List duties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListDuties(ctx, repo.DutyFilters{SeasonID: seasonID, DateFrom: from, DateTo: to})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "DATE", "TIME", "TYPE", "FORMATION", "STATUS", "PROGRAM")
				for _, d := range items {
					timeCol := ""
					if d.StartTime != nil {
						timeCol = *d.StartTime
						if d.EndTime != nil {
							timeCol += "-" + *d.EndTime
						}
					}
					t.AppendRow(table.Row{d.ID, d.Date, timeCol, d.Type, d.Formation, d.Status, d.Program})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&seasonID, "season", "", "season id")
	cmd.Flags().StringVar(&from, "from", "", "first day")
	cmd.Flags().StringVar(&to, "to", "", "last day")
	return cmd
}

func dutyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <duty-id>",
		Short: "Delete a duty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tx, err := a.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				d, err := a.Repo.GetDuty(ctx, args[0])
				if err != nil {
					return err
				}
				if err := a.Repo.DeleteDuty(ctx, tx, d.ID); err != nil {
					return err
				}
				actor := viper.GetString("actor-id")
				if err := a.Events.Append(ctx, tx, events.DutyDeleted, d.SeasonID, "duty", d.ID, actor, nil); err != nil {
					return err
				}
				return tx.Commit()
			})
		},
	}
}

func musicianCmd() *cobra.Command {
	musician := &cobra.Command{Use: "musician", Short: "Manage the roster"}
	musician.AddCommand(musicianAddCmd())
	musician.AddCommand(musicianListCmd())
	musician.AddCommand(musicianDeleteCmd())
	return musician
}

func musicianAddCmd() *cobra.Command {
	var name, position, register, group, extra string
	var ensembles []string
	var share, sortOrder int
	var vacant bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a roster slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if name == "" && !vacant {
					return fmt.Errorf("--name required unless --vacant")
				}
				m := domain.Musician{
					ID:        uuid.NewString(),
					Name:      name,
					Position:  position,
					Register:  register,
					Group:     group,
					Share:     share,
					Extra:     extra,
					IsVacant:  vacant,
					SortOrder: sortOrder,
					Ensembles: ensembles,
					CreatedAt: a.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertMusician(ctx, m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&position, "position", "", "position, e.g. principal flute")
	cmd.Flags().StringVar(&register, "register", "", "register, e.g. flute")
	cmd.Flags().StringVar(&group, "group", "", "register group (wood, brass)")
	cmd.Flags().StringVar(&extra, "extra", "", "free-text remark")
	cmd.Flags().IntVar(&share, "share", 100, "part-time share in percent")
	cmd.Flags().IntVar(&sortOrder, "sort-order", 0, "seating order")
	cmd.Flags().BoolVar(&vacant, "vacant", false, "the slot is vacant")
	cmd.Flags().StringSliceVar(&ensembles, "ensemble", nil, "chamber ensemble membership (repeatable)")
	return cmd
}

func musicianListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListMusicians(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "POSITION", "REGISTER", "GROUP", "SHARE", "ENSEMBLES")
				for _, m := range items {
					t.AppendRow(table.Row{m.ID, m.DisplayName(), m.Position, m.Register, m.Group, m.Share, strings.Join(m.Ensembles, ",")})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
}

func musicianDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <musician-id>",
		Short: "Delete a roster slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteMusician(ctx, args[0])
			})
		},
	}
}

func validateCmd() *cobra.Command {
	var in dutyInput
	var dutyID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a duty against the tariff rules without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				candidate := in.toDuty()
				candidate.ID = dutyID
				day, err := schedule.ParseDate(candidate.Date)
				if err != nil {
					return err
				}
				weekStart := schedule.WeekStart(day)
				existing, err := a.Repo.ListDuties(ctx, repo.DutyFilters{
					SeasonID: candidate.SeasonID,
					DateFrom: schedule.FormatDate(weekStart.AddDate(0, 0, -7)),
					DateTo:   schedule.FormatDate(weekStart.AddDate(0, 0, 13)),
				})
				if err != nil {
					return err
				}
				result, err := a.Rules.Validate(candidate, existing)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				fmt.Printf("%s  week %s..%s  %.1f/%.0f duties\n", strings.ToUpper(result.Status), result.WeekStart, result.WeekEnd, result.TotalWeighted, result.Limit)
				printViolations(result.Violations)
				return nil
			})
		},
	}
	dutyFlags(cmd, &in)
	cmd.Flags().StringVar(&dutyID, "id", "", "existing duty id when validating an edit")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func auditCmd() *cobra.Command {
	var seasonID, from, to string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Validate a whole date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if from == "" || to == "" {
					season, err := resolveSeason(ctx, a, seasonID)
					if err != nil {
						return err
					}
					seasonID = season.ID
					if from == "" {
						from = season.StartDate
					}
					if to == "" {
						to = season.EndDate
					}
				}
				duties, err := a.Repo.ListDuties(ctx, repo.DutyFilters{SeasonID: seasonID, DateFrom: from, DateTo: to})
				if err != nil {
					return err
				}
				violations, err := a.Rules.ValidateRange(duties, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(violations)
				}
				fmt.Printf("%d findings for %s..%s\n", len(violations), from, to)
				printViolations(violations)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&seasonID, "season", "", "season id")
	cmd.Flags().StringVar(&from, "from", "", "first day")
	cmd.Flags().StringVar(&to, "to", "", "last day")
	return cmd
}

func generateCmd() *cobra.Command {
	var seasonID, from, to string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the duty plan documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				gp, err := a.Pipeline.Generate(ctx, generate.Request{
					SeasonID: seasonID,
					From:     from,
					To:       to,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil && gp.Status != domain.PlanError {
					return err
				}
				return printJSONOrTable(gp)
			})
		},
	}
	cmd.Flags().StringVar(&seasonID, "season", "", "season id (defaults to the active season)")
	cmd.Flags().StringVar(&from, "from", "", "first day (defaults to the season start)")
	cmd.Flags().StringVar(&to, "to", "", "last day (defaults to the season end)")
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Inspect and export generated plans"}
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	plan.AddCommand(planExportCmd())
	return plan
}

func planListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListPlans(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "RANGE", "STATUS", "MEMBERS", "CREATED")
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.PlanStart + ".." + p.PlanEnd, p.Status, p.IndividualCount, p.CreatedAt})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "n", 20, "number of plans")
	return cmd
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show one generated plan with its member artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				gp, err := a.Repo.GetPlan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(gp)
			})
		},
	}
}

func planExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <plan-id>",
		Short: "Write a plan's artifacts to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				gp, err := a.Repo.GetPlan(ctx, args[0])
				if err != nil {
					return err
				}
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
				write := func(name string, fetch func() ([]byte, error)) error {
					data, err := fetch()
					if errors.Is(err, repo.ErrNotFound) {
						return nil
					}
					if err != nil {
						return err
					}
					return os.WriteFile(filepath.Join(outDir, name), data, 0o644)
				}
				for _, kind := range []string{"doc", "pdf"} {
					ext := map[string]string{"doc": "txt", "pdf": "pdf"}[kind]
					k := kind
					if err := write("collective."+ext, func() ([]byte, error) {
						return a.Repo.CollectiveArtifact(ctx, gp.ID, k)
					}); err != nil {
						return err
					}
					for _, ind := range gp.Individuals {
						ind := ind
						if err := write(ind.SortKey()+"."+ext, func() ([]byte, error) {
							return a.Repo.IndividualArtifact(ctx, ind.ID, k)
						}); err != nil {
							return err
						}
					}
				}
				fmt.Println("exported to", outDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "plans", "output directory")
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Audit log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.LatestEvents(ctx, n, "", evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	logRoot.AddCommand(tail)
	return logRoot
}

func tokenCmd() *cobra.Command {
	var actor, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("SBP_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("SBP_JWT_SECRET is required")
			}
			now := time.Now()
			claims := jwt.MapClaims{
				"sub":   actor,
				"roles": []string{role},
				"iat":   now.Unix(),
				"exp":   now.Add(ttl).Unix(),
			}
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "local-user", "subject claim")
	cmd.Flags().StringVar(&role, "role", "admin", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noAuth bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SBP_JWT_SECRET"), Disabled: noAuth}
			if authCfg.JWTSecret == "" && !noAuth {
				return fmt.Errorf("SBP_JWT_SECRET is required for bearer auth (or pass --no-auth for local use)")
			}
			handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving SBP duty plan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "disable authentication (local workspaces only)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func resolveSeason(ctx context.Context, a *app.App, seasonID string) (domain.Season, error) {
	if seasonID != "" {
		return a.Repo.GetSeason(ctx, seasonID)
	}
	season, err := a.Repo.ActiveSeason(ctx)
	if err != nil {
		return season, fmt.Errorf("no active season; pass --season or --from/--to: %w", err)
	}
	return season, nil
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(headers))
	return t
}

func printViolations(violations []domain.Violation) {
	if len(violations) == 0 {
		fmt.Println("no findings")
		return
	}
	t := newTable("SEVERITY", "RULE", "MESSAGE", "DATES")
	for _, v := range violations {
		t.AppendRow(table.Row{v.Severity, v.RuleID, v.Message, strings.Join(v.AffectedDates, ",")})
	}
	fmt.Println(t.Render())
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
