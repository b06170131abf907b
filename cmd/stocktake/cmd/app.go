package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/joseph-ayodele/stocktake/internal/capture"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/dedupe"
	"github.com/joseph-ayodele/stocktake/internal/export"
	"github.com/joseph-ayodele/stocktake/internal/ocr"
	repo "github.com/joseph-ayodele/stocktake/internal/repository"
	"github.com/joseph-ayodele/stocktake/internal/server"
	"github.com/joseph-ayodele/stocktake/internal/session"
	"github.com/joseph-ayodele/stocktake/internal/storage"
	"github.com/joseph-ayodele/stocktake/internal/worker"
)

// app is the wired object graph shared by serve and the one-shot commands.
type app struct {
	db       *repo.DB
	jobs     repo.OCRJobRepository
	rolls    repo.CountedRollRepository
	sessions repo.CountSessionRepository
	store    storage.ObjectStore
	closers  []io.Closer
}

func openApp(ctx context.Context) (*app, error) {
	db, err := server.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{
		db:       db,
		jobs:     repo.NewOCRJobRepository(db, logger),
		rolls:    repo.NewCountedRollRepository(db, logger),
		sessions: repo.NewCountSessionRepository(db, logger),
		store:    store,
	}, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}
	a.db.Close()
}

func openStore(ctx context.Context, sc common.StorageConfig) (storage.ObjectStore, error) {
	switch sc.Backend {
	case "minio":
		s, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Bucket:    sc.Bucket,
			Region:    sc.Region,
			UseSSL:    sc.UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket %q: %w", sc.Bucket, err)
		}
		return s, nil
	default:
		logger.Warn("using in-memory image storage; captures are lost on restart")
		return storage.NewMemory(), nil
	}
}

func (a *app) worker(ctx context.Context) (*worker.Worker, error) {
	engine, err := ocr.New(ctx, ocr.Config{
		Provider:            cfg.OCR.Provider,
		Tesseract:           cfg.OCR.Tesseract,
		TesseractLang:       cfg.OCR.Lang,
		TessdataDir:         cfg.OCR.TessdataDir,
		PSM:                 cfg.OCR.PSM,
		OEM:                 cfg.OCR.OEM,
		EnableTSVConfidence: cfg.OCR.TSVConfidence,
		CredentialsFile:     cfg.OCR.CredentialsFile,
		LanguageHints:       cfg.OCR.LanguageHints,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ocr engine: %w", err)
	}
	if c, ok := engine.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return worker.New(a.jobs, a.rolls, a.store, engine, logger,
		worker.WithJobTimeout(cfg.Worker.JobTimeout),
	), nil
}

func (a *app) detector() *dedupe.Detector {
	return dedupe.NewDetector(a.rolls,
		dedupe.WithThreshold(cfg.Worker.PerceptualThreshold),
		dedupe.WithLogger(logger),
	)
}

func (a *app) capture(detector *dedupe.Detector) *capture.Service {
	return capture.NewService(a.rolls, a.jobs, a.store, detector, logger,
		capture.WithMaxBytes(int64(cfg.Server.MaxUploadMB)<<20),
	)
}

func (a *app) exporter() *export.Service {
	return export.NewService(a.sessions, a.rolls, logger)
}

func (a *app) manager() *session.Manager {
	return session.NewManager(a.sessions, logger)
}
