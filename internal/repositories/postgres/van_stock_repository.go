package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vanrank/internal/models"
)

type VanStockRepository struct {
	pool *pgxpool.Pool
}

func NewVanStockRepository(pool *pgxpool.Pool) *VanStockRepository {
	return &VanStockRepository{pool: pool}
}

func (r *VanStockRepository) GetForRouteDate(ctx context.Context, route string, date time.Time) ([]models.VanStockItem, error) {
	query := `
        SELECT route_code, trx_date, item_code, item_name, quantity
        FROM van_stock
        WHERE route_code = $1 AND trx_date = $2
        ORDER BY item_code
    `

	rows, err := r.pool.Query(ctx, query, route, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.VanStockItem
	for rows.Next() {
		var item models.VanStockItem
		if err := rows.Scan(&item.RouteCode, &item.Date, &item.ItemID, &item.ItemName, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Routes lists every route with stock loaded for the given date.
func (r *VanStockRepository) Routes(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT route_code FROM van_stock WHERE trx_date = $1 ORDER BY route_code`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []string
	for rows.Next() {
		var route string
		if err := rows.Scan(&route); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

func (r *VanStockRepository) BulkCreate(ctx context.Context, items []models.VanStockItem) error {
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"van_stock"},
		[]string{"route_code", "trx_date", "item_code", "item_name", "quantity"},
		pgx.CopyFromSlice(len(items), func(i int) ([]interface{}, error) {
			return []interface{}{
				items[i].RouteCode,
				items[i].Date,
				items[i].ItemID,
				items[i].ItemName,
				items[i].Quantity,
			}, nil
		}),
	)
	return err
}
