package pricedata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"algodata/internal/models"
)

// RefreshSymbols reconciles one source's instrument list into the symbol
// tables: unseen instruments get a Symbol row and a source link, known ones
// get their provider metadata refreshed. Links are never deactivated here;
// delisting is an operator decision.
func (s *Service) RefreshSymbols(ctx context.Context, sourceID uint64) error {
	source, err := s.Repo.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("refresh symbols: load source %d: %w", sourceID, err)
	}
	if source == nil || !source.Active {
		return nil
	}

	src, err := s.Registry.Source(source.ConnectorName, source.ConnectionParams)
	if err != nil {
		return fmt.Errorf("refresh symbols: source %q: %w", source.Name, err)
	}

	infos, err := src.GetSymbols(ctx)
	if err != nil {
		return fmt.Errorf("refresh symbols: source %q: %w", source.Name, err)
	}

	created := 0
	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		symbol, err := s.Repo.GetSymbolByName(ctx, info.Name)
		if err != nil {
			return fmt.Errorf("refresh symbols: lookup %q: %w", info.Name, err)
		}
		if symbol == nil {
			symbol = &models.Symbol{Name: info.Name, InstrumentType: info.InstrumentType}
			if err := s.Repo.CreateSymbol(ctx, symbol); err != nil {
				return fmt.Errorf("refresh symbols: create %q: %w", info.Name, err)
			}
			created++
		}

		link := &models.SourceSymbol{
			SourceID:          source.ID,
			SymbolID:          symbol.ID,
			RetrievePriceData: true,
			SymbolInfo:        datatypes.JSONMap(info.Metadata),
		}
		if err := s.Repo.UpsertSourceSymbol(ctx, link); err != nil {
			return fmt.Errorf("refresh symbols: link %q: %w", info.Name, err)
		}
	}

	s.Logger.Info("symbols refreshed",
		zap.String("source", source.Name),
		zap.Int("reported", len(infos)),
		zap.Int("created", created))
	return nil
}

// RefreshAllSymbols runs RefreshSymbols for every active source.
func (s *Service) RefreshAllSymbols(ctx context.Context) error {
	sources, err := s.Repo.ListActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("refresh symbols: list sources: %w", err)
	}
	failed := 0
	for _, source := range sources {
		if err := s.RefreshSymbols(ctx, source.ID); err != nil {
			failed++
			s.Logger.Error("symbol refresh failed", zap.String("source", source.Name), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("refresh symbols: %d of %d sources failed", failed, len(sources))
	}
	return nil
}
