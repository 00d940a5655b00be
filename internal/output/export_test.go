package output

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"vanrank/internal/models"
)

func sampleBatch() []models.Recommendation {
	return []models.Recommendation{
		{
			Date:                "2024-02-10",
			RouteCode:           "RT001",
			CustomerID:          "C001",
			ItemID:              "SKU-1",
			ItemName:            "Lemon Crate",
			RecommendedQuantity: 6,
			Tier:                models.TierMustStock,
			VanLoad:             50,
			PriorityScore:       82.5,
			AvgQuantityPerVisit: 6,
			PurchaseCycleDays:   10.0,
			FrequencyPercent:    100,
		},
		{
			Date:                "2024-02-10",
			RouteCode:           "RT001",
			CustomerID:          "C002",
			ItemID:              "SKU-1",
			ItemName:            "Lemon Crate",
			RecommendedQuantity: 3,
			Tier:                models.TierConsider,
			VanLoad:             50,
			PriorityScore:       41.0,
			AvgQuantityPerVisit: 4,
			PurchaseCycleDays:   21.5,
			FrequencyPercent:    50,
		},
	}
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(models.ExportConfig{
		Format:      "csv",
		Path:        dir,
		Folder:      "recommended_orders",
		Destination: "local",
	})
	if err != nil {
		t.Fatal(err)
	}

	date := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	path, err := exporter.Export(sampleBatch(), "RT001", date)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "TrxDate" {
		t.Errorf("header starts with %q, want TrxDate", rows[0][0])
	}
	if rows[1][2] != "C001" || rows[1][6] != "6" {
		t.Errorf("first data row = %v, want C001 with quantity 6", rows[1])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	exporter, err := NewExporter(models.ExportConfig{Format: "xml", Destination: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exporter.Export(sampleBatch(), "RT001", time.Now()); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestExportUnsupportedCloudProvider(t *testing.T) {
	_, err := NewExporter(models.ExportConfig{
		Format:       "csv",
		Destination:  "cloud",
		CloudStorage: models.CloudStorageConfig{Provider: "gcs"},
	})
	if err == nil {
		t.Fatal("expected error for unsupported cloud provider")
	}
}
