// docintel is the operator CLI: ingest files, inspect document status,
// retry failed documents, export completed extractions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/export"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/pipeline"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/queue"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/storage"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/watch"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: docintel <command> [flags]

commands:
  ingest -file <path> [-type invoice|receipt|menu]   upload a document
  scan   -dir <path>                                 ingest every document under a directory
  watch  -dir <path> [-debounce 2s]                  watch a drop folder and ingest new files
  status -id <uuid>                                  show a document's status
  retry  -id <uuid>                                  requeue a failed document
  export -out <path.xlsx> [-type <t>] [-limit <n>]   export completed extractions
`)
	os.Exit(2)
}

type app struct {
	cfg     *common.Config
	docs    *repository.Documents
	exts    *repository.Extractions
	store   *storage.Local
	queue   *queue.RedisQueue
	logger  *slog.Logger
	cleanup func()
}

func newApp(ctx context.Context) (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}
	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewLocal(cfg.Storage.RootDir)
	if err != nil {
		repository.Close(pool, logger)
		return nil, err
	}
	q := queue.NewRedis(cfg.Redis, logger)
	return &app{
		cfg:    cfg,
		docs:   repository.NewDocuments(pool),
		exts:   repository.NewExtractions(pool),
		store:  store,
		queue:  q,
		logger: logger,
		cleanup: func() {
			_ = q.Close()
			repository.Close(pool, logger)
		},
	}, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer a.cleanup()

	switch os.Args[1] {
	case "ingest":
		err = a.ingest(ctx, os.Args[2:])
	case "scan":
		err = a.scan(ctx, os.Args[2:])
	case "watch":
		err = a.watch(os.Args[2:])
	case "status":
		err = a.status(ctx, os.Args[2:])
	case "retry":
		err = a.retry(ctx, os.Args[2:])
	case "export":
		err = a.export(ctx, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) ingest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "path to the document")
	docType := fs.String("type", "", "declared document type (optional)")
	_ = fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	mime := constants.MIMEFromExt(filepath.Ext(*file))
	if mime == "" {
		return fmt.Errorf("cannot determine content type for %q", *file)
	}

	declared := constants.TypeUnknown
	if *docType != "" {
		t, ok := constants.ParseDocumentType(*docType)
		if !ok {
			return fmt.Errorf("unknown document type %q", *docType)
		}
		declared = t
	}

	res, err := a.ingestor().Ingest(ctx, filepath.Base(*file), mime, raw, declared)
	if err != nil {
		return err
	}

	if res.Duplicate {
		fmt.Printf("duplicate of document %s (status %s)\n", res.Document.ID, res.Document.Status)
		if res.Extraction != nil {
			return printJSON(res.Extraction.Payload)
		}
		return nil
	}
	fmt.Printf("accepted document %s\n", res.Document.ID)
	return nil
}

func (a *app) ingestor() *pipeline.Ingestor {
	return pipeline.NewIngestor(a.docs, a.exts, a.store, a.queue, nil,
		a.cfg.Processing.MaxFileSizeBytes, a.logger)
}

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	dir := fs.String("dir", "", "directory to ingest")
	_ = fs.Parse(args)
	if *dir == "" {
		return fmt.Errorf("-dir is required")
	}

	svc := watch.NewService(a.ingestor(), a.logger)
	stats, err := svc.ScanDirectory(ctx, *dir)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d files: %d ingested (%d duplicates), %d failed\n",
		stats.Matched, stats.Ingested, stats.Duplicates, stats.Failed)
	return nil
}

func (a *app) watch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", "", "drop directory to watch")
	debounce := fs.Duration("debounce", 2*time.Second, "settle time before ingesting a changed file")
	_ = fs.Parse(args)
	if *dir == "" {
		return fmt.Errorf("-dir is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := watch.NewService(a.ingestor(), a.logger)
	fmt.Printf("watching %s (ctrl-c to stop)\n", *dir)
	return watch.NewWatcher(svc, []string{*dir}, *debounce).Run(ctx)
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	_ = fs.Parse(args)

	docID, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("-id must be a uuid: %w", err)
	}
	doc, err := a.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}

	fmt.Printf("document:  %s\n", doc.ID)
	fmt.Printf("filename:  %s\n", doc.Filename)
	fmt.Printf("type:      %s\n", doc.DocumentType)
	fmt.Printf("status:    %s\n", doc.Status)
	if doc.FailureReason != "" {
		fmt.Printf("reason:    %s\n", doc.FailureReason)
	}
	fmt.Printf("created:   %s\n", doc.CreatedAt.Format(time.RFC3339))

	ext, err := a.exts.LatestByDocument(ctx, doc.ID)
	if err == nil {
		fmt.Printf("extraction: v%d model=%s confidence=%.2f (%s)\n",
			ext.Version, ext.Model, ext.Confidence, ext.Level)
		for _, w := range ext.Warnings {
			fmt.Printf("warning:   %s\n", w)
		}
		return printJSON(ext.Payload)
	}
	return nil
}

func (a *app) retry(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	id := fs.String("id", "", "document id")
	_ = fs.Parse(args)

	docID, err := uuid.Parse(*id)
	if err != nil {
		return fmt.Errorf("-id must be a uuid: %w", err)
	}
	ok, err := a.docs.ResetForRetry(ctx, docID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s is not in a retryable status", docID)
	}
	if err := a.queue.Enqueue(ctx, docID); err != nil {
		return err
	}
	fmt.Printf("requeued document %s\n", docID)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "extractions.xlsx", "output path")
	docType := fs.String("type", "", "filter by document type")
	limit := fs.Int("limit", 0, "max rows")
	_ = fs.Parse(args)

	svc := export.NewService(a.exts, a.logger)
	data, err := svc.ExportXLSX(ctx, *docType, *limit)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
	return nil
}

func printJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
