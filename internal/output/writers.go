// Package output serializes accepted dealer records and the failure
// ledger to local files. The crawl core itself performs no result I/O.
package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

// WriteCSV writes dealer records to a CSV file with a header row.
func WriteCSV(filename string, records []crawl.DealerRecord) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{
		"name", "address", "phone", "email", "city", "state", "pincode",
		"vehicle_type", "brand", "location", "source_url", "captured_at",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Name, r.Address, r.Phone, r.Email, r.City, r.State, r.Pincode,
			r.VehicleType, r.Brand, r.Location, r.SourceURL,
			r.CapturedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// WriteJSON writes dealer records as newline-delimited JSON.
func WriteJSON(filename string, records []crawl.DealerRecord) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// WriteFailureReport writes the failure ledger to CSV so failed targets
// can be inspected or re-run.
func WriteFailureReport(filename string, failures []crawl.FailureRecord) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create failure report: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"brand", "location", "url", "attempts", "error_kind", "detail", "timestamp"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write failure header: %w", err)
	}
	for _, fr := range failures {
		row := []string{
			fr.Target.Brand,
			fr.Target.Location,
			fr.Target.URL,
			strconv.Itoa(fr.Attempts),
			fr.ErrorKind,
			fr.Detail,
			fr.Timestamp.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write failure record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush failure records: %w", err)
	}
	return nil
}

// WriteSummary writes the run summary as a single JSON document.
func WriteSummary(filename string, summary crawl.RunSummary) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
