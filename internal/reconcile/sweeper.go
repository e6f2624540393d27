// Package reconcile removes orphaned blobs.
//
// An orphan is a blob no photo record references. Ingest creates one when
// its record insert fails AND the compensating blob delete fails too. The
// sweeper walks the blob store, skips anything younger than the grace
// period (an in-flight Ingest has written its blob but not yet its record),
// and deletes the rest that are unreferenced.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/photovault/internal/blobstore"
	"github.com/sakif/photovault/internal/metrics"
	"github.com/sakif/photovault/internal/repository"
)

// DefaultGrace comfortably exceeds the longest upload the server accepts.
const DefaultGrace = 15 * time.Minute

// sweepTimeout bounds a single background pass.
const sweepTimeout = 5 * time.Minute

// Result summarizes one sweep.
type Result struct {
	Scanned   int
	Skipped   int // younger than the grace period
	Reclaimed int
	Failed    int
}

type Sweeper struct {
	blobs   blobstore.Store
	photos  repository.PhotoRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	grace   time.Duration
	now     func() time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSweeper(blobs blobstore.Store, photos repository.PhotoRepository, m *metrics.Metrics, logger *slog.Logger, grace time.Duration) *Sweeper {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Sweeper{
		blobs:   blobs,
		photos:  photos,
		metrics: m,
		logger:  logger,
		grace:   grace,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Start sweeps every interval in the background until Stop.
func (s *Sweeper) Start(interval time.Duration) {
	s.startOnce.Do(func() {
		s.logger.Info("starting orphan sweeper", slog.Duration("interval", interval), slog.Duration("grace", s.grace))
		s.wg.Add(1)
		go s.loop(interval)
	})
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Sweeper) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			go func() {
				select {
				case <-s.done:
					cancel()
				case <-ctx.Done():
				}
			}()
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("orphan sweep failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// Sweep runs one pass. Blobs are collected first and checked afterwards, so
// no store cursor is held open while the metadata store is queried.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.now().Add(-s.grace)

	var candidates []blobstore.Info
	err := s.blobs.List(ctx, func(info blobstore.Info) error {
		res.Scanned++
		if info.UploadedAt.After(cutoff) {
			res.Skipped++
			return nil
		}
		candidates = append(candidates, info)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("reconcile: listing blobs: %w", err)
	}

	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		referenced, err := s.photos.ReferencesBlob(ctx, info.ID)
		if err != nil {
			// Unknown is treated as referenced. Deleting a live photo's bytes
			// would be far worse than keeping an orphan one more round.
			s.logger.Warn("checking blob reference", slog.String("blob_id", info.ID), slog.String("error", err.Error()))
			res.Failed++
			continue
		}
		if referenced {
			continue
		}

		if err := s.blobs.Delete(ctx, info.ID); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn("deleting orphan blob", slog.String("blob_id", info.ID), slog.String("error", err.Error()))
			res.Failed++
			continue
		}

		res.Reclaimed++
		s.metrics.OrphanReclaimed()
		s.logger.Info("orphan blob reclaimed",
			slog.String("blob_id", info.ID),
			slog.String("name", info.Name),
			slog.Time("uploaded_at", info.UploadedAt),
		)
	}

	s.logger.Info("orphan sweep finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("skipped", res.Skipped),
		slog.Int("reclaimed", res.Reclaimed),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}
