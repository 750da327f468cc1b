// Command procured operates the purchase-request approval workflow against
// the configured database. Subcommands map 1:1 to the service operations.
//
//	procured create -title ... -amount ... -by <uuid> [-proforma file]
//	procured approve -id <uuid> -by <uuid> -role APPROVER_L1 [-comment ...]
//	procured reject  -id <uuid> -by <uuid> -role APPROVER_L1 [-reason ...]
//	procured receipt -id <uuid> -by <uuid> -file receipt.pdf
//	procured show    -id <uuid>
//	procured list
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/extract"
	"github.com/procure2pay/procure2pay/internal/llm"
	"github.com/procure2pay/procure2pay/internal/llm/openai"
	"github.com/procure2pay/procure2pay/internal/notify"
	"github.com/procure2pay/procure2pay/internal/ocr"
	"github.com/procure2pay/procure2pay/internal/po"
	"github.com/procure2pay/procure2pay/internal/reconcile"
	"github.com/procure2pay/procure2pay/internal/repository"
	"github.com/procure2pay/procure2pay/internal/server"
	"github.com/procure2pay/procure2pay/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	args := os.Args[2:]

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
		logger.Error("db health failed", "error", err)
		os.Exit(1)
	}

	svc := buildService(cfg, db, logger)

	var runErr error
	switch sub {
	case "create":
		runErr = runCreate(ctx, svc, args)
	case "approve":
		runErr = runDecision(ctx, svc, args, true)
	case "reject":
		runErr = runDecision(ctx, svc, args, false)
	case "receipt":
		runErr = runReceipt(ctx, svc, args)
	case "show":
		runErr = runShow(ctx, svc, args)
	case "list":
		runErr = runList(ctx, svc)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		logger.Error("command failed", "cmd", sub, "error", runErr)
		os.Exit(1)
	}
}

func buildService(cfg *common.Config, db *repository.DB, logger *slog.Logger) *server.Service {
	var fieldAI llm.FieldExtractor
	if client := openai.New(cfg.LLM, logger); client != nil {
		fieldAI = client
	}

	ocrx := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
	}, logger)
	text := extract.NewTextExtractor(ocrx, logger)
	fields := extract.NewFieldsExtractor(fieldAI, cfg.Extract, logger)

	requests := repository.NewPgRequestRepository(db, logger)
	artifacts := repository.NewPgArtifactRepository(db, logger)
	notifications := repository.NewPgNotificationRepository(db, logger)
	notifier := notify.MultiNotifier{
		notify.NewLogNotifier(logger),
		notify.NewStoreNotifier(notifications, logger),
	}

	return server.NewService(server.ServiceDeps{
		Requests:      requests,
		Artifacts:     artifacts,
		Notifications: notifications,
		Machine:       workflow.NewMachine(requests, po.NewGenerator(logger), notifier, logger),
		Text:          text,
		Fields:        fields,
		Reconciler:    reconcile.NewReconciler(text, fields, logger),
		Notifier:      notifier,
	}, logger)
}

func runCreate(ctx context.Context, svc *server.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "request title")
	desc := fs.String("desc", "", "request description")
	amount := fs.String("amount", "0", "total amount, decimal")
	by := fs.String("by", "", "creator uuid")
	proforma := fs.String("proforma", "", "optional proforma document path")
	_ = fs.Parse(args)

	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	creator, err := uuid.Parse(*by)
	if err != nil {
		return fmt.Errorf("parse -by: %w", err)
	}

	in := server.CreateRequestInput{
		Title:       *title,
		Description: *desc,
		Amount:      amt,
		CreatedBy:   creator,
	}
	if *proforma != "" {
		content, err := os.ReadFile(*proforma)
		if err != nil {
			return fmt.Errorf("read proforma: %w", err)
		}
		in.Proforma = &server.Upload{Filename: filepath.Base(*proforma), Content: content}
	}

	req, err := svc.CreateRequest(ctx, in)
	if err != nil {
		return err
	}
	return printJSON(req)
}

func runDecision(ctx context.Context, svc *server.Service, args []string, approve bool) error {
	name := "reject"
	if approve {
		name = "approve"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	idStr := fs.String("id", "", "request uuid")
	by := fs.String("by", "", "actor uuid")
	role := fs.String("role", "", "actor role")
	var note *string
	if approve {
		note = fs.String("comment", "", "approval comment")
	} else {
		note = fs.String("reason", "", "rejection reason")
	}
	_ = fs.Parse(args)

	id, err := uuid.Parse(*idStr)
	if err != nil {
		return fmt.Errorf("parse -id: %w", err)
	}
	actor, err := uuid.Parse(*by)
	if err != nil {
		return fmt.Errorf("parse -by: %w", err)
	}

	var req any
	if approve {
		req, err = svc.Approve(ctx, id, actor, *role, *note)
	} else {
		req, err = svc.Reject(ctx, id, actor, *role, *note)
	}
	if err != nil {
		return err
	}
	return printJSON(req)
}

func runReceipt(ctx context.Context, svc *server.Service, args []string) error {
	fs := flag.NewFlagSet("receipt", flag.ExitOnError)
	idStr := fs.String("id", "", "request uuid")
	by := fs.String("by", "", "submitter uuid")
	file := fs.String("file", "", "receipt document path")
	_ = fs.Parse(args)

	id, err := uuid.Parse(*idStr)
	if err != nil {
		return fmt.Errorf("parse -id: %w", err)
	}
	actor, err := uuid.Parse(*by)
	if err != nil {
		return fmt.Errorf("parse -by: %w", err)
	}
	content, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}

	outcome, err := svc.SubmitReceipt(ctx, id, actor, server.Upload{
		Filename: filepath.Base(*file),
		Content:  content,
	})
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

func runShow(ctx context.Context, svc *server.Service, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	idStr := fs.String("id", "", "request uuid")
	_ = fs.Parse(args)

	id, err := uuid.Parse(*idStr)
	if err != nil {
		return fmt.Errorf("parse -id: %w", err)
	}
	req, err := svc.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(req)
}

func runList(ctx context.Context, svc *server.Service) error {
	reqs, err := svc.ListRequests(ctx)
	if err != nil {
		return err
	}
	return printJSON(reqs)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: procured <create|approve|reject|receipt|show|list> [flags]")
}
