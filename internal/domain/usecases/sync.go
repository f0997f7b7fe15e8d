package usecases

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// FileReport is the ingestion outcome of one file.
type FileReport struct {
	Path   string
	Result entities.IngestResult
	Err    error
}

// SyncUseCase feeds files from disk into the ingestor, either as a one-off
// batch or continuously from a directory watcher.
type SyncUseCase struct {
	loader      ports.DocumentLoader
	ingest      *IngestUseCase
	concurrency int
	log         logrus.FieldLogger
}

// NewSyncUseCase creates a SyncUseCase. concurrency bounds parallel file ingestion.
func NewSyncUseCase(loader ports.DocumentLoader, ingest *IngestUseCase, concurrency int, log logrus.FieldLogger) *SyncUseCase {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SyncUseCase{
		loader:      loader,
		ingest:      ingest,
		concurrency: concurrency,
		log:         log,
	}
}

// IngestFiles loads and ingests every path. Failures of individual files are
// reported per file; the returned error is non-nil only if ctx was cancelled.
func (uc *SyncUseCase) IngestFiles(ctx context.Context, paths []string) ([]FileReport, error) {
	reports := make([]FileReport, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = uc.ingestFile(gctx, path)
			return nil
		})
	}
	return reports, g.Wait()
}

// Watch ingests files as they are created or modified under dir until ctx is
// done or the watcher stops. Deleted files keep their indexed content: the
// ledger never forgets a fingerprint.
func (uc *SyncUseCase) Watch(ctx context.Context, watcher ports.FileWatcher, dir string) error {
	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	uc.log.WithField("dir", dir).Info("watching for documents")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			log := uc.log.WithFields(logrus.Fields{"path": ev.Path, "op": ev.Operation.String()})
			if ev.Operation == ports.FileDeleted {
				log.Info("file removed; its indexed content is kept")
				continue
			}
			report := uc.ingestFile(ctx, ev.Path)
			if report.Err != nil {
				log.WithError(report.Err).Error("ingestion failed")
				continue
			}
			log.Info(report.Result.String())
		}
	}
}

func (uc *SyncUseCase) ingestFile(ctx context.Context, path string) FileReport {
	doc, err := uc.loader.Load(ctx, path)
	if err != nil {
		return FileReport{Path: path, Err: fmt.Errorf("loading %s: %w", path, err)}
	}
	res, err := uc.ingest.IngestDocument(ctx, doc)
	return FileReport{Path: path, Result: res, Err: err}
}
