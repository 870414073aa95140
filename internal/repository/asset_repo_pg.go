package repository

import (
	"context"
	"errors"

	"github.com/itsadrianapaiva/amr-app-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
)

type AssetRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Asset, error)
	// CatalogItems returns the requested items keyed by id. Unknown ids are
	// absent from the map.
	CatalogItems(ctx context.Context, ids []int64) (map[int64]domain.CatalogItem, error)
}

type PGAssetRepository struct {
	db DB
}

func NewAssetRepository(db DB) AssetRepository {
	return &PGAssetRepository{db: db}
}

func (r *PGAssetRepository) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, daily_rate_cents, deposit_cents FROM assets WHERE id=$1`, id)
	var a domain.Asset
	if err := row.Scan(&a.ID, &a.Name, &a.DailyRateCents, &a.DepositCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGAssetRepository) CatalogItems(ctx context.Context, ids []int64) (map[int64]domain.CatalogItem, error) {
	items := make(map[int64]domain.CatalogItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, name, unit_price_cents, charge_model, time_unit FROM catalog_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.CatalogItem
		var chargeModel, timeUnit string
		if err := rows.Scan(&it.ID, &it.Name, &it.UnitPriceCents, &chargeModel, &timeUnit); err != nil {
			return nil, err
		}
		it.ChargeModel = domain.ChargeModel(chargeModel)
		it.TimeUnit = domain.TimeUnit(timeUnit)
		items[it.ID] = it
	}
	return items, rows.Err()
}

var _ AssetRepository = (*PGAssetRepository)(nil)
