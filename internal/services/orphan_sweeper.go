package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/repositories"
	"github.com/rscoe-coding-club/codigo-registration-backend/internal/storage"
	"github.com/rscoe-coding-club/codigo-registration-backend/pkg/metrics"
)

const sweepPageSize = 100

// SweepStats summarises one sweep run
type SweepStats struct {
	Scanned  int
	Orphaned int
	Deleted  int
	Errors   int
}

// OrphanSweeper removes proof objects that no registration references.
// Objects younger than the grace period are skipped so an upload whose
// insert is still in flight is never collected.
type OrphanSweeper struct {
	storage     storage.ObjectStorage
	view        repositories.PrivilegedRegistrationView
	gracePeriod time.Duration
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	now         func() time.Time
}

// NewOrphanSweeper creates a new orphan sweeper
func NewOrphanSweeper(objectStorage storage.ObjectStorage, view repositories.PrivilegedRegistrationView, gracePeriod time.Duration, logger *logrus.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		storage:     objectStorage,
		view:        view,
		gracePeriod: gracePeriod,
		metrics:     metrics.NewMetrics(),
		logger:      logger,
		now:         time.Now,
	}
}

// Sweep scans every proof object once and deletes the unreferenced ones
func (s *OrphanSweeper) Sweep(ctx context.Context) (*SweepStats, error) {
	stats := &SweepStats{}
	cutoff := s.now().Add(-s.gracePeriod)

	var orphans []string
	for offset := 0; ; offset += sweepPageSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		start := time.Now()
		objects, err := s.storage.List(ctx, "", sweepPageSize, offset)
		s.metrics.RecordStorageOperation("list", err == nil, time.Since(start))
		if err != nil {
			return stats, fmt.Errorf("list proof objects: %w", err)
		}

		candidates := make([]string, 0, len(objects))
		for _, obj := range objects {
			if !strings.HasPrefix(obj.Name, ProofKeyPrefix) {
				continue
			}
			stats.Scanned++
			if obj.CreatedAt.IsZero() || obj.CreatedAt.After(cutoff) {
				continue
			}
			candidates = append(candidates, obj.Name)
		}

		if len(candidates) > 0 {
			referenced, err := s.view.ReferencedScreenshots(ctx, candidates)
			if err != nil {
				return stats, fmt.Errorf("check screenshot references: %w", err)
			}
			for _, name := range candidates {
				if !referenced[name] {
					orphans = append(orphans, name)
				}
			}
		}

		// Only a short raw page ends the listing; filtered pages may be short
		if len(objects) < sweepPageSize {
			break
		}
	}

	stats.Orphaned = len(orphans)

	// Deleting while paging would shift offsets, so deletes run after the scan
	for start := 0; start < len(orphans); start += sweepPageSize {
		end := start + sweepPageSize
		if end > len(orphans) {
			end = len(orphans)
		}
		batch := orphans[start:end]

		begin := time.Now()
		err := s.storage.Delete(ctx, batch...)
		s.metrics.RecordStorageOperation("delete", err == nil, time.Since(begin))
		if err != nil {
			stats.Errors += len(batch)
			s.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to delete orphaned screenshots")
			continue
		}
		stats.Deleted += len(batch)
	}

	s.metrics.RecordOrphansDeleted("sweep", stats.Deleted)
	s.logger.WithFields(logrus.Fields{
		"scanned":  stats.Scanned,
		"orphaned": stats.Orphaned,
		"deleted":  stats.Deleted,
		"errors":   stats.Errors,
	}).Info("Orphan sweep completed")

	return stats, nil
}
