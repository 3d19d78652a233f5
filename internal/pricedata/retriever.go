// Package pricedata implements the candle retrieval pipeline: it walks the
// configured source periods, asks each source connector for the price history
// a symbol is missing, and converges the rows into the candle table.
package pricedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"algodata/internal/connector"
	"algodata/internal/models"
	"algodata/internal/repository"
	"algodata/internal/upsert"
)

type Service struct {
	Repo     repository.Repository
	Registry *connector.Registry
	Engine   *upsert.Engine
	Logger   *zap.Logger

	// MaxBatchSpan bounds the [from, to] window requested from a connector
	// per call. Zero asks for everything up to now in one call.
	MaxBatchSpan time.Duration
	// UpsertBatchSize caps rows per upsert statement.
	UpsertBatchSize int
	// RetryInterval seeds the exponential backoff between connector
	// retries; zero keeps the library default.
	RetryInterval time.Duration
	// Now is the clock; tests override it.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RetrievePrices runs one retrieval pass for a source period: every symbol
// the source collects is brought up to date from its own watermark. A symbol
// failing does not stop the others; the error reports how many failed.
func (s *Service) RetrievePrices(ctx context.Context, sourcePeriodID uint64) error {
	sp, err := s.Repo.GetSourcePeriod(ctx, sourcePeriodID)
	if err != nil {
		return fmt.Errorf("retrieve prices: load source period %d: %w", sourcePeriodID, err)
	}
	if sp == nil || !sp.Active || sp.Source == nil {
		return nil
	}
	if !sp.Source.Active {
		return nil
	}

	src, err := s.Registry.Source(sp.Source.ConnectorName, sp.Source.ConnectionParams)
	if err != nil {
		return fmt.Errorf("retrieve prices: source %q: %w", sp.Source.Name, err)
	}

	links, err := s.Repo.ListRetrievalSourceSymbols(ctx, sp.SourceID)
	if err != nil {
		return fmt.Errorf("retrieve prices: list symbols for source %q: %w", sp.Source.Name, err)
	}

	failed := 0
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := symbolName(link)
		if err := s.retrieveSymbol(ctx, src, sp, link); err != nil {
			failed++
			s.Logger.Error("price retrieval failed for symbol",
				zap.String("source", sp.Source.Name),
				zap.String("symbol", name),
				zap.String("period", sp.Period),
				zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("retrieve prices: source %q period %s: %d of %d symbols failed",
			sp.Source.Name, sp.Period, failed, len(links))
	}
	return nil
}

// retrieveSymbol pulls one symbol forward from its watermark to now, in
// windows of at most MaxBatchSpan, persisting each window before requesting
// the next so a crash loses at most one window.
func (s *Service) retrieveSymbol(ctx context.Context, src connector.Source, sp *models.SourcePeriod, link models.SourceSymbol) error {
	from, err := s.watermark(ctx, link.ID, sp)
	if err != nil {
		return err
	}

	name := symbolName(link)
	now := s.now()
	total := 0

	for from.Before(now) {
		to := now
		if s.MaxBatchSpan > 0 && from.Add(s.MaxBatchSpan).Before(now) {
			to = from.Add(s.MaxBatchSpan)
		}

		candles, err := s.getPrices(ctx, src, name, from, to, sp.Period, link.SymbolInfo)
		if errors.Is(err, connector.ErrDataNotAvailable) {
			s.Logger.Debug("no data for range",
				zap.String("symbol", name),
				zap.String("period", sp.Period),
				zap.Time("from", from),
				zap.Time("to", to))
			break
		}
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			break
		}

		if err := s.storeCandles(ctx, link.ID, candles); err != nil {
			return err
		}
		total += len(candles)

		// Advance past the last stored bar; a bar close to now will be
		// re-retrieved and amended in place on the next run.
		from = candles[len(candles)-1].Time.Add(time.Millisecond)
	}

	if total > 0 {
		s.Logger.Info("price data retrieved",
			zap.String("symbol", name),
			zap.String("period", sp.Period),
			zap.Int("candles", total))
	}
	return nil
}

// watermark resolves where retrieval resumes: one millisecond after the
// latest stored candle, or the configured start when the symbol has none.
func (s *Service) watermark(ctx context.Context, sourceSymbolID uint64, sp *models.SourcePeriod) (time.Time, error) {
	latest, err := s.Repo.LatestCandleTime(ctx, sourceSymbolID, sp.Period)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve watermark: %w", err)
	}
	if latest != nil {
		return latest.Add(time.Millisecond), nil
	}
	return sp.StartFrom.UTC(), nil
}

func (s *Service) getPrices(ctx context.Context, src connector.Source, symbol string, from, to time.Time, period string, info map[string]any) ([]connector.Candle, error) {
	var candles []connector.Candle
	op := func() error {
		var err error
		candles, err = src.GetPrices(ctx, symbol, from, to, period, info)
		if errors.Is(err, connector.ErrDataNotAvailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	if s.RetryInterval > 0 {
		bo.InitialInterval = s.RetryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("get prices %s %s [%s, %s]: %w",
			symbol, period, from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return candles, nil
}

func (s *Service) storeCandles(ctx context.Context, sourceSymbolID uint64, candles []connector.Candle) error {
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{
			sourceSymbolID, c.Time.UTC(), c.Period,
			c.BidOpen, c.BidHigh, c.BidLow, c.BidClose,
			c.AskOpen, c.AskHigh, c.AskLow, c.AskClose,
			c.Volume,
		})
	}
	return s.Engine.Apply(ctx, upsert.Request{
		Table:         models.Candle{}.TableName(),
		Data:          upsert.Dataset{Columns: models.CandleColumns, Rows: rows},
		UniqueColumns: models.CandleUniqueColumns,
		BatchSize:     s.UpsertBatchSize,
	})
}

func symbolName(link models.SourceSymbol) string {
	if link.Symbol != nil {
		return link.Symbol.Name
	}
	return fmt.Sprintf("source_symbol:%d", link.ID)
}
