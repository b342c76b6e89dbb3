package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"alchemist/internal/app"
	"alchemist/internal/config"
	"alchemist/internal/domain"
	"alchemist/internal/export"
	"alchemist/internal/findings"
	"alchemist/internal/ingest"
	"alchemist/internal/server"
	"alchemist/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "alch",
	Short: "Data Alchemist CLI",
	Long: `Data Alchemist checks client, worker and task spreadsheets before they feed a resource allocator.
- Data: clients.csv, workers.csv and tasks.csv (or .json) in the workspace, or explicit --clients/--workers/--tasks files.
- Basic checks: per-field rules such as required ids, priority ranges and list shapes.
- Consistency checks: cross-entity rules such as dependency cycles, unknown references, phase capacity and skill coverage.
- Business rules: co-location, slot restriction, load limit, phase window and custom rules from alchemist.yml or --rules.
- Export: cleaned CSVs plus rules.json and prioritization.json, refused while errors remain unless --force.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ALCHEMIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/alchemist.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("clients", "", "clients file (.csv, .xlsx or .json)")
	flags.String("workers", "", "workers file (.csv, .xlsx or .json)")
	flags.String("tasks", "", "tasks file (.csv, .xlsx or .json)")
	flags.String("activity-log", "", "append session events as JSON lines to this file")
	flags.Bool("verbose", false, "log validation passes to stderr")
	for _, name := range []string{"workspace", "config", "json", "clients", "workers", "tasks", "activity-log", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(weightsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func validateCmd() *cobra.Command {
	var basic, strict, summary bool
	var flt struct{ entityType, entityID, field, severity string }
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate clients, workers and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := findings.Filter{EntityID: flt.entityID, Field: flt.field, Severity: domain.Severity(flt.severity)}
			if flt.entityType != "" {
				et, ok := domain.ParseEntityType(flt.entityType)
				if !ok {
					return fmt.Errorf("invalid --entity-type %q", flt.entityType)
				}
				f.EntityType = et
			}
			return withSession("", func(s *session.Session) error {
				var list []domain.Finding
				if basic {
					list = f.Apply(s.Engine.ValidateBasic(s.Snapshot()))
				} else {
					list = s.Findings(f)
				}
				if err := printReport(os.Stdout, list, summary); err != nil {
					return err
				}
				if strict && findings.HasBlocking(list) {
					return fmt.Errorf("validation failed with %d errors", findings.Count(list).Errors)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&basic, "basic", false, "run only the basic field checks")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when error findings exist")
	cmd.Flags().BoolVar(&summary, "summary", false, "print counts per entity instead of findings")
	cmd.Flags().StringVar(&flt.entityType, "entity-type", "", "filter by entity type (client, worker, task)")
	cmd.Flags().StringVar(&flt.entityID, "entity-id", "", "filter by entity id")
	cmd.Flags().StringVar(&flt.field, "field", "", "filter by field")
	cmd.Flags().StringVar(&flt.severity, "severity", "", "filter by severity (error, warning, info)")
	return cmd
}

func rulesCmd() *cobra.Command {
	rules := &cobra.Command{Use: "rules", Short: "Business rules"}
	var rulesFile string
	var strict bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Check business rules against the data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rulesFile, func(s *session.Session) error {
				list := s.CheckRules()
				if viper.GetBool("json") {
					docs := make([]domain.RuleDoc, 0, len(s.Rules()))
					for _, r := range s.Rules() {
						docs = append(docs, r.Doc())
					}
					return printJSON(os.Stdout, map[string]any{"rules": docs, "findings": list, "summary": findings.Count(list)})
				}
				fmt.Printf("%d rules checked\n", len(s.Rules()))
				if err := printFindings(os.Stdout, list); err != nil {
					return err
				}
				if strict && findings.HasBlocking(list) {
					return fmt.Errorf("rule check failed with %d errors", findings.Count(list).Errors)
				}
				return nil
			})
		},
	}
	check.Flags().StringVar(&rulesFile, "rules", "", "rules file (.yml or .json), added to the config rules")
	check.Flags().BoolVar(&strict, "strict", false, "exit non-zero when error findings exist")
	rules.AddCommand(check)
	return rules
}

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print task ids in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession("", func(s *session.Session) error {
				order, err := s.Engine.TaskOrder(s.Snapshot())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(os.Stdout, order)
				}
				for i, id := range order {
					fmt.Printf("%d. %s\n", i+1, id)
				}
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var out, rulesFile, format string
	var force bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cleaned data, rules.json and prioritization.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out required")
			}
			if format != "csv" && format != "xlsx" {
				return fmt.Errorf("--format must be csv or xlsx")
			}
			return withSession(rulesFile, func(s *session.Session) error {
				paths, err := s.Export(export.Exporter{Excel: format == "xlsx"}, out, force)
				if errors.Is(err, export.ErrBlockingFindings) {
					return fmt.Errorf("%w; fix them or rerun with --force", err)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(os.Stdout, paths)
				}
				for _, p := range paths {
					fmt.Println("wrote", p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rules file to include in rules.json")
	cmd.Flags().StringVar(&format, "format", "csv", "collection format: csv|xlsx")
	cmd.Flags().BoolVar(&force, "force", false, "export even when error findings exist")
	return cmd
}

func weightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Derive prioritization weights for alchemist.yml",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "rank <criterion>...",
		Short:   "Weights from all five criteria, most important first",
		Example: "  alch weights rank skillMatch fairness priorityLevel efficiency fulfillment",
		Args:    cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := domain.WeightsFromRanking(args)
			if err != nil {
				return err
			}
			return printWeights(os.Stdout, w)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "pairwise <first>:<second>:<preference>...",
		Short:   "Weights from pairwise comparisons (-3..3, negative favors first)",
		Example: "  alch weights pairwise priorityLevel:fairness:-2 fairness:efficiency:0",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list := make([]domain.Comparison, 0, len(args))
			for _, arg := range args {
				c, err := parseComparison(arg)
				if err != nil {
					return err
				}
				list = append(list, c)
			}
			w, err := domain.WeightsFromPairwise(list)
			if err != nil {
				return err
			}
			return printWeights(os.Stdout, w)
		},
	})
	return cmd
}

func parseComparison(arg string) (domain.Comparison, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return domain.Comparison{}, fmt.Errorf("comparison %q: want first:second:preference", arg)
	}
	pref, err := strconv.Atoi(parts[2])
	if err != nil {
		return domain.Comparison{}, fmt.Errorf("comparison %q: preference must be an integer", arg)
	}
	return domain.Comparison{First: parts[0], Second: parts[1], Preference: pref}, nil
}

func printWeights(w io.Writer, weights domain.PrioritizationWeights) error {
	if viper.GetBool("json") {
		return printJSON(w, weights)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string]domain.PrioritizationWeights{"weights": weights})
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect alchemist.yml",
		Long:  "alchemist.yml holds check thresholds, default prioritization weights, ingest options and business rules. Missing keys take their default values.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default alchemist.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(os.Stdout, cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate alchemist.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err == nil {
				_, err = cfg.BusinessRules()
			}
			if viper.GetBool("json") {
				return printJSON(os.Stdout, map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath, rulesFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rulesFile, func(s *session.Session) error {
				handler, err := server.New(server.Config{Session: s, BasePath: basePath, Logger: s.Engine.Log()})
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
				fmt.Printf("Serving Data Alchemist API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rules file loaded into the session")
	return cmd
}

// --- helpers ---

func withSession(rulesFile string, fn func(*session.Session) error) error {
	logger := log.New(io.Discard, "", 0)
	if viper.GetBool("verbose") {
		logger = log.New(os.Stderr, "alch: ", log.LstdFlags)
	}
	opts := app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Files: ingest.Files{
			Clients: viper.GetString("clients"),
			Workers: viper.GetString("workers"),
			Tasks:   viper.GetString("tasks"),
		},
		RulesFile: rulesFile,
		Logger:    logger,
	}
	if path := viper.GetString("activity-log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open activity log: %w", err)
		}
		defer f.Close()
		opts.ActivityLog = f
	}
	s, _, err := app.OpenSession(opts)
	if err != nil {
		return err
	}
	return fn(s)
}
