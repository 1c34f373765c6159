package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/voltoralabs/voltora/internal/schema"
)

// File format labels recorded on the ingestion log.
const (
	formatJSON    = "json"
	formatCSV     = "csv"
	formatParquet = "parquet"
)

var parquetMagic = []byte("PAR1")

// detectFormat classifies file content by extension first, then by sniffing:
// a JSON parse attempt, then the columnar magic bytes, then delimited text
// as the fallback.
func detectFormat(content []byte, filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return formatJSON
	case ".csv":
		return formatCSV
	case ".parquet":
		return formatParquet
	}

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return formatJSON
	}
	if bytes.HasPrefix(content, parquetMagic) {
		return formatParquet
	}
	return formatCSV
}

// parseFile turns raw file content into a record list. An empty list is not
// a parse failure; the validator owns the empty-payload verdict.
func parseFile(content []byte, format string) ([]map[string]any, error) {
	switch format {
	case formatJSON:
		return parseJSONRecords(content)
	case formatParquet:
		return nil, errors.New("columnar files are not supported, export to csv or json")
	default:
		return parseCSVRecords(content)
	}
}

func parseJSONRecords(content []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("unparseable json: %w", err)
	}
	return schema.Normalize(payload), nil
}

// parseCSVRecords reads a header row plus data rows. Short rows simply omit
// the trailing columns; the validator reports whatever is missing.
func parseCSVRecords(content []byte) ([]map[string]any, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unparseable csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
	}

	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			record[name] = row[i]
		}
		records = append(records, record)
	}
	return records, nil
}
