package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"leadflow/internal/app"
	"leadflow/internal/config"
	"leadflow/internal/intake"
	"leadflow/internal/pipeline"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

type serviceFactory func(ctx context.Context) (*app.Service, func(), error)

type cli struct {
	out     io.Writer
	tables  pricing.Tables
	cfg     config.Config
	connect serviceFactory
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "leadctl",
		Short:        "Staff tools for leads, clients and the sales pipeline",
		SilenceUsage: true,
	}
	root.SetOut(c.out)
	root.AddCommand(
		c.estimateCmd(),
		c.normalizeCmd(),
		c.migrateCmd(),
		c.convertCmd(),
		c.stageCmd(),
	)
	return root
}

func (c *cli) printJSON(value any) error {
	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (c *cli) estimateCmd() *cobra.Command {
	var (
		table    string
		pages    int
		content  string
		features []string
		rush     bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a project with the checklist or slider table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if table != pricing.TableChecklist && table != pricing.TableSlider {
				return fmt.Errorf("unknown table %q: use checklist or slider", table)
			}
			inputs := pricing.Inputs{
				PageCount:        pages,
				ContentReadiness: pricing.ContentReadiness(content),
				Timeline:         pricing.TimelineNormal,
			}
			if rush {
				inputs.Timeline = pricing.TimelineRush
			}
			for _, name := range features {
				switch strings.ToLower(strings.TrimSpace(name)) {
				case "gallery":
					inputs.Features.Gallery = true
				case "blog":
					inputs.Features.Blog = true
				case "scheduling", "booking":
					inputs.Features.Scheduling = true
				case "newsletter":
					inputs.Features.Newsletter = true
				case "portfolio":
					inputs.Features.Portfolio = true
				default:
					return fmt.Errorf("unknown feature %q", name)
				}
			}
			return c.printJSON(c.tables.Compute(table, inputs))
		},
	}
	cmd.Flags().StringVar(&table, "table", pricing.TableChecklist, "pricing table: checklist or slider")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages")
	cmd.Flags().StringVar(&content, "content", string(pricing.ContentReady), "content readiness: ready, light_editing, heavy_shaping, full_copy")
	cmd.Flags().StringSliceVar(&features, "features", nil, "add-ons: gallery, blog, scheduling, newsletter, portfolio")
	cmd.Flags().BoolVar(&rush, "rush", false, "rush timeline")
	return cmd
}

func (c *cli) normalizeCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Show the canonical records for a raw submission",
		Long: "Reads a raw submission payload and prints the lead, intake and estimate it\n" +
			"normalizes to. With --source ai_intake the file may also be a final\n" +
			"assistant message with its JSON summary.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			parsed, err := intake.ParseSource(source)
			if err != nil {
				return err
			}
			normalizer := intake.NewNormalizer(c.tables)

			var result intake.Result
			if parsed == intake.SourceAIIntake {
				result, err = normalizer.NormalizeTranscript(string(data), nil)
			} else {
				var raw map[string]any
				if err := json.Unmarshal(data, &raw); err != nil {
					return fmt.Errorf("parse payload: %w", err)
				}
				result, err = normalizer.Normalize(parsed, raw)
			}
			if err != nil {
				return err
			}
			return c.printJSON(result)
		},
	}
	cmd.Flags().StringVar(&source, "source", string(intake.SourceQuote), "channel: quote, checkup, contact, ai_intake")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (c *cli) migrateCmd() *cobra.Command {
	var (
		dir  string
		down int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations, or revert the newest with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := store.Open(ctx, c.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			verb := "applied"
			var versions []string
			if down > 0 {
				verb = "reverted"
				versions, err = store.RollbackMigrations(ctx, db, dir, down)
			} else {
				versions, err = store.ApplyMigrations(ctx, db, dir)
			}
			for _, version := range versions {
				fmt.Fprintf(c.out, "%s %s\n", verb, version)
			}
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(c.out, "schema is up to date")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", c.cfg.MigrationsDir, "migrations directory")
	cmd.Flags().IntVar(&down, "down", 0, "revert this many of the newest applied migrations")
	return cmd
}

func (c *cli) convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "convert <lead|intake> <id>",
		Short:     "Promote a lead or intake to a client",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"lead", "intake"},
		RunE: func(cmd *cobra.Command, args []string) error {
			service, closeFn, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var conversion app.Conversion
			switch args[0] {
			case "lead":
				conversion, err = service.ConvertLead(cmd.Context(), args[1])
			case "intake":
				conversion, err = service.ConvertIntake(cmd.Context(), args[1])
			default:
				return fmt.Errorf("unknown kind %q: use lead or intake", args[0])
			}
			if err != nil {
				return err
			}
			verb := "reused"
			if conversion.Created {
				verb = "created"
			}
			fmt.Fprintf(c.out, "%s client %s <%s>\n", verb, conversion.Client.ID, conversion.Client.Email)
			return nil
		},
	}
}

func (c *cli) stageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage <client|intake> <id> <stage>",
		Short: "Move a client or intake to another stage",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind, id, target := args[0], args[1], args[2]
			service, closeFn, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var (
				current string
				commit  pipeline.CommitFunc
			)
			switch kind {
			case "client":
				client, err := service.GetClient(ctx, id)
				if err != nil {
					return err
				}
				current, commit = client.PipelineStage, service.MoveClientStage
			case "intake":
				projectIntake, err := service.GetIntake(ctx, id)
				if err != nil {
					return err
				}
				current, commit = projectIntake.KanbanStage, service.MoveIntakeStage
			default:
				return fmt.Errorf("unknown kind %q: use client or intake", kind)
			}

			board := pipeline.NewBoard(commit, map[string]string{id: current})
			results := board.Move(ctx, id, target)
			view, _ := board.Stage(id)
			fmt.Fprintf(c.out, "%s %s: %s -> %s (pending)\n", kind, id, current, view)

			result := <-results
			switch {
			case result.Err != nil && result.RolledBack:
				fmt.Fprintf(c.out, "rolled back to %s: %v\n", result.View, result.Err)
				return result.Err
			case result.Err != nil:
				return result.Err
			case !result.Transition.Changed():
				fmt.Fprintf(c.out, "already in %s\n", result.View)
			default:
				fmt.Fprintf(c.out, "confirmed %s\n", result.View)
			}
			return nil
		},
	}
}
