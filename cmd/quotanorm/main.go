// quotanorm loads the quota catalog into the normalized quotas table and
// renders the cross-tab quota report.
//
// Usage:
//
//	quotanorm migrate
//	quotanorm load
//	quotanorm report --output reports/quota_report.xlsx
//	quotanorm import-codes --domain cat2 --file quota_distinct_values.xlsx --sheet 类别2 --name-column 类别2
//	quotanorm import-codes --domain worker --source-table payroll_details --source-column 职员全名
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/blob"
	"github.com/rpattn/quotanorm/internal/config"
	"github.com/rpattn/quotanorm/internal/db"
	"github.com/rpattn/quotanorm/internal/domain"
	"github.com/rpattn/quotanorm/internal/export"
	"github.com/rpattn/quotanorm/internal/ingestion"
	"github.com/rpattn/quotanorm/internal/logging"
	"github.com/rpattn/quotanorm/internal/metrics"
	"github.com/rpattn/quotanorm/internal/repository"
	"github.com/rpattn/quotanorm/internal/retry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "quotanorm",
		Usage:   "Normalize the quota catalog and build the quota report",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Directory holding config.yaml",
				EnvVars: []string{"QUOTANORM_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides log.level",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (json, console); overrides log.format",
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			loadCommand(),
			reportCommand(),
			importCodesCommand(),
			runLogsCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the batch
// metrics flushed to the textfile on exit.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.BatchMetrics
	retry   *retry.Policy
	conn    *db.Connection
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format := c.String("log-format"); format != "" {
		cfg.Log.Format = format
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.File != "" {
		logger.Debug("config loaded", zap.String("file", cfg.File))
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(metrics.Config{ServiceName: cfg.Log.ServiceName}),
		retry:   retry.New(cfg.Retry, logger),
	}, nil
}

func (e *env) connect(ctx context.Context) error {
	conn, err := db.NewConnection(ctx, e.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	e.conn = conn
	return nil
}

func (e *env) close() {
	if e.conn != nil {
		e.conn.Close()
	}
	if path := strings.TrimSpace(e.cfg.Metrics.Textfile); path != "" {
		if err := e.metrics.WriteTextfile(path); err != nil {
			e.logger.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the reference, quotas and run log tables",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()
			return db.RunMigrations(e.cfg.Target, e.logger)
		},
	}
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Close validity intervals of the source catalog and load them into quotas",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Path of the sqlite catalog; overrides source.path"},
		},
		Action: runLoad,
	}
}

func runLoad(c *cli.Context) error {
	ctx := c.Context
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	sourcePath := e.cfg.Source.Path
	if c.IsSet("source") {
		sourcePath = c.String("source")
	}
	catalog, err := repository.OpenSQLiteCatalog(ctx, sourcePath, e.cfg.Source.Table)
	if err != nil {
		return fmt.Errorf("failed to open catalog %s: %w", sourcePath, err)
	}
	defer func() { _ = catalog.Close() }()

	if err := e.connect(ctx); err != nil {
		return err
	}
	pool := e.conn.Pool

	pipeline := ingestion.NewPipeline(
		catalog,
		repository.NewDictionaryRepository(pool),
		repository.NewQuotaRepository(pool),
		e.conn,
		ingestion.WithRunLog(repository.NewRunLogRepository(pool)),
		ingestion.WithRetry(e.retry),
		ingestion.WithMetrics(e.metrics),
		ingestion.WithLogger(e.logger),
	)
	summary, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Render the stored quotas as a cross-tab workbook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Workbook name in the report store; overrides report.output",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	ctx := c.Context
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := blob.Open(ctx, e.cfg.Report.Blob)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	if err := e.connect(ctx); err != nil {
		return err
	}
	pool := e.conn.Pool

	service := export.NewService(
		repository.NewQuotaRepository(pool),
		repository.NewDictionaryRepository(pool),
		repository.NewColumnSequenceRepository(pool),
		store,
		export.WithRunLog(repository.NewRunLogRepository(pool)),
		export.WithRetry(e.retry),
		export.WithMetrics(e.metrics),
		export.WithLogger(e.logger),
		export.WithCornerLabel(e.cfg.Report.CornerLabel),
	)

	output := e.cfg.Report.Output
	if c.IsSet("output") {
		output = c.String("output")
	}
	result, err := service.Run(ctx, export.Request{Output: output})
	if err != nil {
		return err
	}
	return printJSON(result)
}

var dictionaryDomains = map[string]domain.DictionaryDomain{
	string(domain.DomainCategory1): domain.DomainCategory1,
	string(domain.DomainCategory2): domain.DomainCategory2,
	string(domain.DomainModel):     domain.DomainModel,
	string(domain.DomainProcess):   domain.DomainProcess,
	string(domain.DomainWorker):    domain.DomainWorker,
}

func importCodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-codes",
		Usage: "Add names to a reference dictionary, generating missing codes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "domain",
				Aliases:  []string{"d"},
				Usage:    "Dictionary to extend (cat1, cat2, model, process, worker)",
				Required: true,
			},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "CSV or XLSX file of names"},
			&cli.StringFlag{Name: "sheet", Usage: "Worksheet of an XLSX file (default: first sheet)"},
			&cli.StringFlag{Name: "name-column", Value: "name", Usage: "Header of the name column"},
			&cli.StringFlag{Name: "code-column", Value: "code", Usage: "Header of the optional code column"},
			&cli.StringFlag{Name: "source-table", Usage: "Read distinct names from this table of the sqlite catalog instead of a file"},
			&cli.StringFlag{Name: "source-column", Usage: "Column holding the names in --source-table"},
		},
		Action: runImportCodes,
	}
}

func runImportCodes(c *cli.Context) error {
	ctx := c.Context
	d, ok := dictionaryDomains[strings.ToLower(strings.TrimSpace(c.String("domain")))]
	if !ok {
		return fmt.Errorf("unknown dictionary domain %q", c.String("domain"))
	}
	file := strings.TrimSpace(c.String("file"))
	table := strings.TrimSpace(c.String("source-table"))
	if (file == "") == (table == "") {
		return fmt.Errorf("exactly one of --file or --source-table is required")
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.connect(ctx); err != nil {
		return err
	}
	pool := e.conn.Pool

	importer := ingestion.NewDictionaryImporter(
		repository.NewDictionaryRepository(pool),
		ingestion.WithRunLog(repository.NewRunLogRepository(pool)),
		ingestion.WithRetry(e.retry),
		ingestion.WithMetrics(e.metrics),
		ingestion.WithLogger(e.logger),
	)

	var summary ingestion.ImportSummary
	if table != "" {
		column := strings.TrimSpace(c.String("source-column"))
		if column == "" {
			return fmt.Errorf("--source-column is required with --source-table")
		}
		catalog, err := repository.OpenSQLiteCatalog(ctx, e.cfg.Source.Path, e.cfg.Source.Table)
		if err != nil {
			return fmt.Errorf("failed to open catalog %s: %w", e.cfg.Source.Path, err)
		}
		defer func() { _ = catalog.Close() }()
		summary, err = importer.ImportDistinct(ctx, d, catalog, table, column)
		if err != nil {
			return err
		}
	} else {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer func() { _ = f.Close() }()
		summary, err = importer.ImportFile(ctx, ingestion.ImportRequest{
			Domain:     d,
			FileName:   file,
			Sheet:      c.String("sheet"),
			NameColumn: c.String("name-column"),
			CodeColumn: c.String("code-column"),
			Data:       f,
		})
		if err != nil {
			return err
		}
	}
	return printJSON(summary)
}

func runLogsCommand() *cli.Command {
	return &cli.Command{
		Name:      "run-logs",
		Usage:     "Show the problems recorded for a run",
		ArgsUsage: "RUN_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 200, Usage: "Maximum entries to show"},
			&cli.IntFlag{Name: "offset", Usage: "Entries to skip"},
		},
		Action: func(c *cli.Context) error {
			runID, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", c.Args().First(), err)
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.connect(c.Context); err != nil {
				return err
			}
			entries, err := repository.NewRunLogRepository(e.conn.Pool).List(c.Context, runID, c.Int("limit"), c.Int("offset"))
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
}
