package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"extension wins over content", "readings.csv", `[{"a":1}]`, formatCSV},
		{"json extension", "export.JSON", "a,b\n1,2", formatJSON},
		{"parquet extension", "export.parquet", "anything", formatParquet},
		{"sniffed json array", "upload.bin", `[{"a":1}]`, formatJSON},
		{"sniffed json object", "payload", `{"readings":[]}`, formatJSON},
		{"parquet magic", "export", "PAR1\x00\x00", formatParquet},
		{"delimited fallback", "data.txt", "a,b\n1,2", formatCSV},
		{"broken braces fall through", "data", "{definitely,not,json", formatCSV},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectFormat([]byte(tc.content), tc.filename))
		})
	}
}

func TestParseCSVRecords(t *testing.T) {
	records, err := parseCSVRecords([]byte("timestamp, energy_kwh,device\n" +
		"2025-04-01 00:00:00,12.5,MTR-1\n" +
		"2025-04-01 00:15:00,13.0\n"))
	assert.NoError(t, err)
	assert.Len(t, records, 2)

	// 1. Header names are trimmed and values keep their column.
	assert.Equal(t, "12.5", records[0]["energy_kwh"])
	assert.Equal(t, "MTR-1", records[0]["device"])

	// 2. A short row simply omits its trailing columns.
	_, ok := records[1]["device"]
	assert.False(t, ok)
	assert.Equal(t, "13.0", records[1]["energy_kwh"])
}

func TestParseCSVRecords_HeaderOnly(t *testing.T) {
	records, err := parseCSVRecords([]byte("timestamp,energy_kwh\n"))
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseJSONRecords_EnvelopeKeys(t *testing.T) {
	for _, key := range []string{"readings", "data", "values", "records"} {
		content := []byte(`{"` + key + `": [{"timestamp": "2025-04-01", "energy": 12.5}]}`)
		records, err := parseJSONRecords(content)
		assert.NoError(t, err, key)
		assert.Len(t, records, 1, key)
		assert.Equal(t, json.Number("12.5"), records[0]["energy"], key)
	}
}

func TestParseJSONRecords_SingleObject(t *testing.T) {
	records, err := parseJSONRecords([]byte(`{"timestamp": "2025-04-01", "energy": 1}`))
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseJSONRecords_Invalid(t *testing.T) {
	_, err := parseJSONRecords([]byte("{broken"))
	assert.Error(t, err)
}

func TestParseFile_ColumnarRefused(t *testing.T) {
	_, err := parseFile([]byte("PAR1"), formatParquet)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "columnar")
}
