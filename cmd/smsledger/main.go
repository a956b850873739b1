package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jask/smsledger/internal/bank"
	"github.com/jask/smsledger/internal/card"
	"github.com/jask/smsledger/internal/config"
	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/normalize"
	"github.com/jask/smsledger/internal/parser"
	"github.com/jask/smsledger/internal/service"
	"github.com/jask/smsledger/internal/validate"
)

const chunkSize = 200

func main() {
	dryRun := flag.Bool("dry-run", false, "print records as JSON lines instead of storing them")
	reset := flag.Bool("reset", false, "delete stored transactions before ingesting")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	go reloadOnHangup(ctx, logger, pipeline)

	in, closeIn, err := openInput(flag.Args())
	if err != nil {
		log.Fatalf("input: %v", err)
	}
	defer closeIn()

	if *dryRun {
		if err := printRecords(in, pipeline); err != nil {
			log.Fatalf("process: %v", err)
		}
		return
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.Migrations); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := database.SeedDefaults(ctx, db); err != nil {
		log.Fatalf("seed defaults: %v", err)
	}
	if *reset {
		if err := (&service.MaintenanceService{DB: db}).Reset(ctx); err != nil {
			log.Fatalf("reset: %v", err)
		}
	}

	policy, err := repository.ParsePolicy(cfg.Pipeline.DuplicatePolicy)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pipeline.Transactions = repository.NewTransactionRepo(db)
	pipeline.Accounts = repository.NewAccountRepo(db)
	pipeline.Policy = policy
	pipeline.Categorizer = &service.CategorizerService{
		Rules:      repository.NewMerchantRuleRepo(db),
		Categories: repository.NewCategoryRepo(db),
	}

	var total service.IngestResult
	err = eachChunk(in, func(msgs []service.Message) error {
		res, err := pipeline.Ingest(ctx, msgs)
		if err != nil {
			return err
		}
		total.Imported += res.Imported
		total.Updated += res.Updated
		total.Skipped += res.Skipped
		for _, e := range res.Errors {
			logger.Warn("ingest problem", "err", e)
		}
		return ctx.Err()
	})
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	logger.Info("done", "imported", total.Imported, "updated", total.Updated, "skipped", total.Skipped)
}

func buildPipeline(cfg config.Config, logger *slog.Logger) (*service.IngestService, error) {
	id, err := bank.New(cfg.Rules.BankPatterns,
		bank.WithFuzzy(cfg.Matching.Fuzzy),
		bank.WithThreshold(cfg.Matching.FuzzyThreshold),
		bank.WithWorkers(cfg.Pipeline.Workers),
		bank.WithLogger(logger.With("component", "bank")))
	if err != nil {
		return nil, err
	}
	engine, err := parser.New(cfg.Rules.Templates,
		parser.WithFallbackBank(cfg.Matching.FallbackBank),
		parser.WithCardFallback(cfg.Matching.CardFallback),
		parser.WithWorkers(cfg.Pipeline.Workers),
		parser.WithLogger(logger.With("component", "parser")))
	if err != nil {
		return nil, err
	}
	classifier, err := card.New(cfg.Rules.Accounts, card.WithLogger(logger.With("component", "card")))
	if err != nil {
		return nil, err
	}
	validator := validate.New(
		validate.WithThresholds(validate.Thresholds{Medium: cfg.Scoring.MediumWarnings, Low: cfg.Scoring.LowWarnings}),
		validate.WithWorkers(cfg.Pipeline.Workers),
		validate.WithLogger(logger.With("component", "validate")))
	normalizer := normalize.New(classifier,
		normalize.WithUrgency(normalize.UrgencyThresholds{High: cfg.Urgency.HighAmount, CreditMedium: cfg.Urgency.CreditMediumAmount}),
		normalize.WithWorkers(cfg.Pipeline.Workers),
		normalize.WithLogger(logger.With("component", "normalize")))

	return &service.IngestService{
		Identifier: id,
		Parser:     engine,
		Validator:  validator,
		Normalizer: normalizer,
		Classifier: classifier,
		Log:        logger,
	}, nil
}

// reloadOnHangup re-reads the rule documents on SIGHUP. A failed reload
// keeps the previous rules.
func reloadOnHangup(ctx context.Context, logger *slog.Logger, p *service.IngestService) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			for name, reload := range map[string]func(string) error{
				"bank patterns": p.Identifier.Reload,
				"templates":     p.Parser.Reload,
				"accounts":      p.Classifier.Reload,
			} {
				if err := reload(""); err != nil {
					logger.Error("reload failed, keeping previous rules", "rules", name, "err", err)
				}
			}
		}
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openInput(paths []string) (io.Reader, func(), error) {
	if len(paths) == 0 {
		return os.Stdin, func() {}, nil
	}
	var readers []io.Reader
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	return io.MultiReader(readers...), closeAll, nil
}

// eachChunk reads one message per line and hands them to fn in chunks. A
// line of the form "BANK<TAB>text" carries a bank hint.
func eachChunk(r io.Reader, fn func([]service.Message) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	msgs := make([]service.Message, 0, chunkSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		msg := service.Message{Text: line}
		if hint, text, ok := strings.Cut(line, "\t"); ok {
			msg = service.Message{Text: text, BankHint: hint}
		}
		msgs = append(msgs, msg)
		if len(msgs) == chunkSize {
			if err := fn(msgs); err != nil {
				return err
			}
			msgs = msgs[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(msgs) > 0 {
		return fn(msgs)
	}
	return nil
}

func printRecords(r io.Reader, p *service.IngestService) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	return eachChunk(r, func(msgs []service.Message) error {
		recs, err := p.Process(msgs)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
		}
		return nil
	})
}
