// Package reprocess re-runs normalization over stored raw generations, so
// rule changes reach predictions that were already made.
package reprocess

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"callsense/internal/disposition"
	"callsense/internal/store"
)

type Service struct {
	Store      *store.Store
	Normalizer *disposition.Normalizer
	Logger     *zap.Logger
	// DryRun counts changes without writing them.
	DryRun bool
	// Limit caps the rows scanned; 0 scans everything.
	Limit int
}

type Report struct {
	Scanned int
	Updated int
	Failed  int
}

func NewService(st *store.Store, n *disposition.Normalizer) *Service {
	if n == nil {
		n = disposition.NewNormalizer(disposition.DefaultRules())
	}
	return &Service{Store: st, Normalizer: n, Logger: zap.NewNop()}
}

// Run normalizes every stored raw output again. Rows whose raw output no
// longer yields an object count as Failed and are marked as extraction
// errors.
func (s *Service) Run(ctx context.Context) (Report, error) {
	var report Report
	if s == nil || s.Store == nil {
		return report, nil
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rows, err := s.Store.ListRaw(ctx, s.Limit)
	if err != nil {
		return report, err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		res, err := s.Normalizer.Normalize(row.RawOutput, row.Transcript, row.CurrentDate)
		if err != nil {
			var ee *disposition.ExtractionError
			if !errors.As(err, &ee) {
				return report, err
			}
			report.Failed++
			if row.Status != store.StatusExtractionError && !s.DryRun {
				if err := s.Store.UpdateResult(ctx, row.ID, store.StatusExtractionError, disposition.Result{}); err != nil {
					return report, err
				}
			}
			continue
		}

		if row.Status == store.StatusOK && sameResult(row.Result, res) {
			continue
		}
		logger.Debug("result changed",
			zap.String("id", row.ID),
			zap.String("payment_disposition", res.PaymentDisposition),
			zap.Int("corrections", len(res.Corrections)))
		report.Updated++
		if s.DryRun {
			continue
		}
		if err := s.Store.UpdateResult(ctx, row.ID, store.StatusOK, res); err != nil {
			return report, err
		}
	}
	logger.Info("reprocess finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Bool("dry_run", s.DryRun))
	return report, nil
}

func sameResult(a, b disposition.Result) bool {
	return a.Disposition == b.Disposition &&
		a.PaymentDisposition == b.PaymentDisposition &&
		a.ReasonForNotPaying == b.ReasonForNotPaying &&
		a.Remarks == b.Remarks &&
		a.ConfidenceScore == b.ConfidenceScore &&
		sameOptional(a.PtpDetails.Amount, b.PtpDetails.Amount) &&
		sameOptional(a.PtpDetails.Date, b.PtpDetails.Date)
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
