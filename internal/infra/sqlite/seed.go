package sqlite

import (
	"context"
	"fmt"

	"github.com/donahelp/fluxo-sync-go/internal/domain"

	"go.uber.org/zap"
)

var defaultServices = []domain.ServiceEntry{
	{ID: "res-8h", Category: domain.ServiceCategoryResidencial, Name: "Diária 8h", DefaultPrice: 200},
	{ID: "res-6h", Category: domain.ServiceCategoryResidencial, Name: "Diária 6h", DefaultPrice: 160},
	{ID: "res-4h", Category: domain.ServiceCategoryResidencial, Name: "Diária 4h", DefaultPrice: 120},
	{ID: "men-8h", Category: domain.ServiceCategoryMensal, Name: "Mensal 8h", DefaultPrice: 180},
	{ID: "men-6h", Category: domain.ServiceCategoryMensal, Name: "Mensal 6h", DefaultPrice: 140},
	{ID: "men-4h", Category: domain.ServiceCategoryMensal, Name: "Mensal 4h", DefaultPrice: 100},
	{ID: "pos-obra", Category: domain.ServiceCategoryPosObra, Name: "Pós-obra", DefaultPrice: 500},
}

var defaultSettings = map[string]string{
	domain.SettingSimplesNacionalRate: "6",
}

// seed populates the price list and default settings on first boot.
// A non-empty table is left alone so operator edits survive restarts.
func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&count); err != nil {
		return fmt.Errorf("count services: %w", err)
	}
	if count == 0 {
		for _, svc := range defaultServices {
			_, err := s.db.ExecContext(ctx,
				`INSERT INTO services (id, category, name, default_price) VALUES (?, ?, ?, ?)`,
				svc.ID, svc.Category, svc.Name, svc.DefaultPrice)
			if err != nil {
				return fmt.Errorf("seed service %s: %w", svc.ID, err)
			}
		}
		s.logger.Info("seeded service price list", zap.Int("services", len(defaultServices)))
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&count); err != nil {
		return fmt.Errorf("count settings: %w", err)
	}
	if count == 0 {
		for key, value := range defaultSettings {
			_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, key, value)
			if err != nil {
				return fmt.Errorf("seed setting %s: %w", key, err)
			}
		}
	}
	return nil
}
