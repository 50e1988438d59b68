package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/trazkul/analytics-prom/internal/models"
)

var csvHeader = []string{"idx", "url", "name", "bought", "price", "presence", "manufacturer"}

// WriteCSV writes products with a header row and a 1-based idx column.
func WriteCSV(w io.Writer, products []models.Product) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, p := range products {
		record := []string{
			strconv.Itoa(i + 1),
			p.URL,
			p.Name,
			p.Bought,
			p.Price,
			p.Presence,
			p.Manufacturer,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

// CSVFile saves products to a file, replacing any previous content.
type CSVFile struct {
	path string
}

func NewCSVFile(path string) *CSVFile {
	return &CSVFile{path: path}
}

func (f *CSVFile) Path() string {
	return f.path
}

// Write creates the parent directory when needed.
func (f *CSVFile) Write(products []models.Product) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create output dir: %w", err)
		}
	}

	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}

	if err := WriteCSV(file, products); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
