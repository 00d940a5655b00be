package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vanrank/internal/models"
)

type RecommendationRepository struct {
	pool *pgxpool.Pool
}

func NewRecommendationRepository(pool *pgxpool.Pool) *RecommendationRepository {
	return &RecommendationRepository{pool: pool}
}

// ReplaceBatch writes a generated batch for (date, route), dropping any
// previous batch for the same key inside the transaction. Batches are
// write-once: rows are never patched in place.
func (r *RecommendationRepository) ReplaceBatch(ctx context.Context, date time.Time, route string, recs []models.Recommendation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM recommendations WHERE trx_date = $1 AND route_code = $2`, date, route); err != nil {
		return fmt.Errorf("clearing previous batch: %w", err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"recommendations"},
		[]string{
			"trx_date", "route_code", "customer_code", "item_code", "item_name",
			"actual_quantity", "recommended_quantity", "tier", "van_load",
			"priority_score", "avg_quantity_per_visit", "days_since_last_purchase",
			"purchase_cycle_days", "frequency_percent",
		},
		pgx.CopyFromSlice(len(recs), func(i int) ([]interface{}, error) {
			trxDate, err := time.Parse(models.DateLayout, recs[i].Date)
			if err != nil {
				return nil, fmt.Errorf("row %d has malformed date %q: %w", i, recs[i].Date, err)
			}
			return []interface{}{
				trxDate,
				recs[i].RouteCode,
				recs[i].CustomerID,
				recs[i].ItemID,
				recs[i].ItemName,
				recs[i].ActualQuantity,
				recs[i].RecommendedQuantity,
				recs[i].Tier,
				recs[i].VanLoad,
				recs[i].PriorityScore,
				recs[i].AvgQuantityPerVisit,
				recs[i].DaysSinceLastPurchase,
				recs[i].PurchaseCycleDays,
				recs[i].FrequencyPercent,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *RecommendationRepository) GetByDateRoute(ctx context.Context, date time.Time, route string) ([]models.Recommendation, error) {
	query := `
        SELECT trx_date, route_code, customer_code, item_code, item_name,
               actual_quantity, recommended_quantity, tier, van_load,
               priority_score, avg_quantity_per_visit, days_since_last_purchase,
               purchase_cycle_days, frequency_percent
        FROM recommendations
        WHERE trx_date = $1 AND route_code = $2
        ORDER BY customer_code, priority_score DESC, item_code
    `

	rows, err := r.pool.Query(ctx, query, date, route)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var rec models.Recommendation
		var trxDate time.Time
		if err := rows.Scan(
			&trxDate, &rec.RouteCode, &rec.CustomerID, &rec.ItemID, &rec.ItemName,
			&rec.ActualQuantity, &rec.RecommendedQuantity, &rec.Tier, &rec.VanLoad,
			&rec.PriorityScore, &rec.AvgQuantityPerVisit, &rec.DaysSinceLastPurchase,
			&rec.PurchaseCycleDays, &rec.FrequencyPercent,
		); err != nil {
			return nil, err
		}
		rec.Date = trxDate.Format(models.DateLayout)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GenerationInfo reports what is already stored for a date across routes.
func (r *RecommendationRepository) GenerationInfo(ctx context.Context, date time.Time) (*models.GenerationInfo, error) {
	query := `
        SELECT COUNT(*), COUNT(DISTINCT route_code)
        FROM recommendations
        WHERE trx_date = $1
    `

	info := &models.GenerationInfo{Date: date.Format(models.DateLayout), GeneratedAt: time.Now()}
	if err := r.pool.QueryRow(ctx, query, date).Scan(&info.TotalRecords, &info.RoutesCount); err != nil {
		return nil, err
	}
	return info, nil
}
