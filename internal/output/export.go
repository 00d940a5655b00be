package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"vanrank/internal/cloudwriter"
	"vanrank/internal/models"
)

// Exporter writes a generated batch to file, locally or to cloud storage,
// in the configured format.
type Exporter struct {
	cfg     models.ExportConfig
	factory cloudwriter.CloudWriterFactory
}

func NewExporter(cfg models.ExportConfig) (*Exporter, error) {
	e := &Exporter{cfg: cfg}
	if cfg.Destination == "cloud" {
		factory, err := cloudwriter.NewFactory(cfg.CloudStorage)
		if err != nil {
			return nil, err
		}
		e.factory = factory
	}
	return e, nil
}

// Export writes the batch and returns the local path or object path used.
func (e *Exporter) Export(recs []models.Recommendation, route string, date time.Time) (string, error) {
	name := fmt.Sprintf("recommended_orders_%s_%s.%s", route, date.Format(models.DateLayout), e.cfg.Format)

	switch e.cfg.Format {
	case "parquet":
		return e.exportParquet(recs, name)
	case "csv":
		return e.exportCSV(recs, name)
	case "json":
		return e.exportJSON(recs, name)
	case "console":
		return e.exportConsole(recs)
	default:
		return "", fmt.Errorf("unsupported export format: %q", e.cfg.Format)
	}
}

func (e *Exporter) exportConsole(recs []models.Recommendation) (string, error) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CUSTOMER\tITEM\tQTY\tTIER\tPRIORITY\tCYCLE\tFREQ%")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1f\t%.1f\t%.1f\n",
			rec.CustomerID, rec.ItemName, rec.RecommendedQuantity, rec.Tier,
			rec.PriorityScore, rec.PurchaseCycleDays, rec.FrequencyPercent)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return "stdout", nil
}

func (e *Exporter) exportParquet(recs []models.Recommendation, name string) (string, error) {
	fw, path, err := e.openParquet(name)
	if err != nil {
		return "", err
	}

	pw, err := writer.NewParquetWriter(fw, new(models.Recommendation), 4)
	if err != nil {
		fw.Close()
		return "", fmt.Errorf("failed to create parquet writer: %w", err)
	}

	for _, rec := range recs {
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return "", fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return "", fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return "", err
	}

	log.Printf("Exported %d recommendations to %s", len(recs), path)
	return path, nil
}

func (e *Exporter) openParquet(name string) (source.ParquetFile, string, error) {
	if e.factory != nil {
		objectPath := filepath.Join(e.cfg.Folder, name)
		cw, err := e.factory.NewWriter(e.cfg.CloudStorage.BucketName, objectPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		return NewCloudParquetFile(cw), objectPath, nil
	}

	path, err := e.localPath(name)
	if err != nil {
		return nil, "", err
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create local file writer: %w", err)
	}
	return fw, path, nil
}

func (e *Exporter) exportCSV(recs []models.Recommendation, name string) (string, error) {
	out, path, err := e.openRaw(name)
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(out)
	header := []string{
		"TrxDate", "RouteCode", "CustomerCode", "ItemCode", "ItemName",
		"ActualQuantity", "RecommendedQuantity", "Tier", "VanLoad",
		"PriorityScore", "AvgQuantityPerVisit", "DaysSinceLastPurchase",
		"PurchaseCycleDays", "FrequencyPercent",
	}
	if err := w.Write(header); err != nil {
		out.Close()
		return "", err
	}
	for _, rec := range recs {
		row := []string{
			rec.Date,
			rec.RouteCode,
			rec.CustomerID,
			rec.ItemID,
			rec.ItemName,
			strconv.Itoa(rec.ActualQuantity),
			strconv.Itoa(rec.RecommendedQuantity),
			rec.Tier,
			strconv.Itoa(rec.VanLoad),
			strconv.FormatFloat(rec.PriorityScore, 'f', -1, 64),
			strconv.Itoa(rec.AvgQuantityPerVisit),
			strconv.Itoa(rec.DaysSinceLastPurchase),
			strconv.FormatFloat(rec.PurchaseCycleDays, 'f', -1, 64),
			strconv.FormatFloat(rec.FrequencyPercent, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			out.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	log.Printf("Exported %d recommendations to %s", len(recs), path)
	return path, nil
}

func (e *Exporter) exportJSON(recs []models.Recommendation, name string) (string, error) {
	out, path, err := e.openRaw(name)
	if err != nil {
		return "", err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	log.Printf("Exported %d recommendations to %s", len(recs), path)
	return path, nil
}

// openRaw returns a write-closer for row formats: a cloud object buffer
// when a cloud destination is configured, a local file otherwise.
func (e *Exporter) openRaw(name string) (io.WriteCloser, string, error) {
	if e.factory != nil {
		objectPath := filepath.Join(e.cfg.Folder, name)
		cw, err := e.factory.NewWriter(e.cfg.CloudStorage.BucketName, objectPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		return &cloudWriteCloser{cw}, objectPath, nil
	}

	path, err := e.localPath(name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func (e *Exporter) localPath(name string) (string, error) {
	dir := filepath.Join(e.cfg.Path, e.cfg.Folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

type cloudWriteCloser struct {
	cw cloudwriter.CloudWriter
}

func (c *cloudWriteCloser) Write(p []byte) (int, error) { return c.cw.Write(p) }
func (c *cloudWriteCloser) Close() error                { return c.cw.Close() }
