package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"surveyboard/internal"
	"surveyboard/internal/aggregate"
	"surveyboard/internal/columns"
	"surveyboard/internal/config"
	"surveyboard/internal/connectors"
	"surveyboard/internal/listener"
	"surveyboard/internal/pipeline"
	"surveyboard/internal/server"
	"surveyboard/internal/storage"
	"surveyboard/internal/survey"
)

func main() {
	cfg, err := config.Load()
	must(err)
	internal.DefaultLogger.SetLevel(internal.ParseLogLevel(cfg.LogLevel))

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "columns:slugify":
		for _, header := range os.Args[2:] {
			fmt.Printf("%s\t%s\n", header, columns.Slugify(header))
		}
	case "mapping:check":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("mapping", cfg.MappingPath, "mapping table (csv)")
		_ = fs.Parse(os.Args[2:])
		m, err := columns.LoadMappingFile(*path)
		must(err)
		for _, e := range m.Entries() {
			fmt.Printf("%s\t%s\t%s\t%s\n", e.OriginalHeader, e.TechnicalName, e.PublicLabel, e.Category)
		}
		fmt.Printf("mapping ok entries=%d\n", m.Len())
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "workbook path (xlsx, csv, html)")
		output := fs.String("output", "", "output directory")
		mapping := fs.String("mapping", cfg.MappingPath, "mapping table (csv)")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input and --output are required"))
		}
		res, err := oneShot(cfg, *input, *mapping)
		must(err)
		must(os.MkdirAll(*output, 0o755))
		base := strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
		must(pipeline.ExportTableCSV(res.Table, filepath.Join(*output, base+".csv")))
		must(pipeline.ExportReportXLSX(res.Report, filepath.Join(*output, base+"_relatorio.xlsx")))
		must(os.WriteFile(filepath.Join(*output, base+"_relatorio.md"), []byte(pipeline.RenderReportMarkdown(res.Report)), 0o644))
		fmt.Printf("run done sheet=%s rows=%d renamed=%d collisions=%d mapping=%s output=%s\n",
			res.Workbook.Sheet, res.Table.Len(), res.Apply.Renamed, len(res.Apply.Collisions), res.MappingSource, *output)
	case "stats:counts":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "workbook path")
		column := fs.String("column", "", "technical column name")
		basis := fs.String("basis", string(internal.BasisRespondents), "rows|respondents")
		split := fs.String("split", "", "separator for multi-reason cells")
		top := fs.Int("top", 0, "keep the N most frequent reasons")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *column == "" {
			must(fmt.Errorf("--input and --column are required"))
		}
		countBasis, err := aggregate.ParseBasis(*basis)
		must(err)
		res, err := oneShot(cfg, *input, cfg.MappingPath)
		must(err)
		respondent := cfg.RespondentColumn
		var out internal.AggregationResult
		if *split != "" {
			out, err = aggregate.CountSplit(res.Table, *column, *split, respondent, *top)
		} else {
			out, err = aggregate.Count(res.Table, *column, respondent, countBasis)
		}
		must(err)
		printJSON(out)
	case "stats:ages":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "workbook path")
		column := fs.String("column", cfg.AgeColumn, "age column")
		_ = fs.Parse(os.Args[2:])
		if *input == "" {
			must(fmt.Errorf("--input is required"))
		}
		res, err := oneShot(cfg, *input, cfg.MappingPath)
		must(err)
		out, err := aggregate.AgeBuckets(res.Table, *column, cfg.RespondentColumn)
		must(err)
		printJSON(out)
	case "stats:likert":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "workbook path")
		section := fs.String("section", "", "report section id")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *section == "" {
			must(fmt.Errorf("--input and --section are required"))
		}
		res, err := oneShot(cfg, *input, cfg.MappingPath)
		must(err)
		sec, ok := res.Report.Section(*section)
		if !ok {
			must(fmt.Errorf("unknown section: %s", *section))
		}
		printJSON(sec)
	case "sources:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.ListenerProvider, "gmail|imap|sheets|http")
		label := fs.String("label", cfg.ListenerLabel, "mailbox, label or sheet tab")
		max := fs.Int("max", cfg.ListenerFetchMax, "max workbooks")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		ctx := context.Background()
		conn, err := listener.MakeConnector(ctx, cfg, *provider)
		must(err)
		result, err := connectors.NewFetchService(db, cfg.RawDir, conn).FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "sources:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "only sources of this provider")
		externalID := fs.String("source", "", "process one source by its external id")
		batch := fs.Int("batch", cfg.ListenerProcessBatch, "batch size")
		_ = fs.Parse(os.Args[2:])
		db := openDB(cfg)
		defer db.Close()
		processor := newProcessor(cfg, db)
		if strings.TrimSpace(*externalID) != "" {
			p := *provider
			if p == "" {
				p = cfg.ListenerProvider
			}
			src, err := db.MustSource(p, *externalID)
			must(err)
			res, err := processor.ProcessSource(src)
			must(err)
			fmt.Printf("source=%d status=%s dataset=%s\n", res.SourceID, res.Status, res.DatasetID)
			return
		}
		results, err := processor.ProcessPending(*batch, *provider)
		must(err)
		for _, r := range results {
			fmt.Printf("source=%d status=%s dataset=%s\n", r.SourceID, r.Status, r.DatasetID)
		}
		fmt.Printf("processed sources=%d\n", len(results))
	case "export:csv":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		datasetID := fs.String("dataset", "", "dataset id")
		out := fs.String("out", cfg.OutputDir, "output directory")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*datasetID) == "" {
			must(fmt.Errorf("--dataset is required"))
		}
		db := openDB(cfg)
		defer db.Close()
		must(os.MkdirAll(*out, 0o755))
		paths, err := newProcessor(cfg, db).ExportDataset(*datasetID, *out)
		must(err)
		fmt.Printf("exported csv=%s report=%s\n", paths.CSV, paths.Report)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		datasetID := fs.String("dataset", "", "dataset id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*datasetID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--dataset and --out are required"))
		}
		db := openDB(cfg)
		defer db.Close()
		_, entry, err := newProcessor(cfg, db).Dataset(*datasetID)
		must(err)
		must(pipeline.ExportTableXLSX(entry.Table, *out))
		fmt.Printf("exported %d rows to %s\n", entry.Table.Len(), *out)
	case "serve":
		db := openDB(cfg)
		defer db.Close()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(server.New(db, cfg, newProcessor(cfg, db)).ListenAndServe(ctx))
	case "listen":
		db := openDB(cfg)
		defer db.Close()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(listener.NewService(db, cfg, newProcessor(cfg, db)).Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func oneShot(cfg config.Config, input, mapping string) (pipeline.OneShotResult, error) {
	surveyCfg, err := survey.Load(cfg.SurveyConfigPath)
	if err != nil {
		return pipeline.OneShotResult{}, err
	}
	return pipeline.RunOneShot(input, pipeline.OneShotOptions{
		MappingPath:      mapping,
		RespondentColumn: cfg.RespondentColumn,
		AgeColumn:        cfg.AgeColumn,
		Survey:           surveyCfg,
	})
}

func openDB(cfg config.Config) *storage.DB {
	db, err := storage.Open(cfg.DBPath)
	must(err)
	return db
}

func newProcessor(cfg config.Config, db *storage.DB) *pipeline.ProcessingService {
	surveyCfg, err := survey.Load(cfg.SurveyConfigPath)
	must(err)
	return pipeline.NewProcessingService(db, cfg, nil, surveyCfg)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: surveyboard <command>")
	fmt.Println("commands:")
	fmt.Println("  columns:slugify <header>...")
	fmt.Println("  mapping:check [--mapping=columns_classification.csv]")
	fmt.Println("  run --input=responses.xlsx --output=./out [--mapping=...]")
	fmt.Println("  stats:counts --input=... --column=voce_e [--basis=rows|respondents] [--split=, --top=10]")
	fmt.Println("  stats:ages --input=... [--column=idade]")
	fmt.Println("  stats:likert --input=... --section=professores")
	fmt.Println("  sources:fetch --provider=gmail|imap|sheets|http [--label=INBOX] [--max=50]")
	fmt.Println("  sources:process [--provider=...] [--source=<externalId>] [--batch=20]")
	fmt.Println("  export:csv --dataset=<id> [--out=./out]")
	fmt.Println("  export:xlsx --dataset=<id> --out=./out/table.xlsx")
	fmt.Println("  serve")
	fmt.Println("  listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
