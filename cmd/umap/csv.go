package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// loadCSV loads a matrix from a CSV file (no header, numeric values only).
func loadCSV[T float32 | float64](filename string) ([][]T, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, errors.New("empty file")
	}

	var zero T
	bitSize := 64
	if _, ok := any(zero).(float32); ok {
		bitSize = 32
	}

	data := make([][]T, len(records))
	for i, record := range records {
		data[i] = make([]T, len(record))
		for j, val := range record {
			f, err := strconv.ParseFloat(strings.TrimSpace(val), bitSize)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, col %d", i, j)
			}
			data[i][j] = T(f)
		}
	}

	return data, nil
}

// saveCSV saves a matrix to a CSV file.
func saveCSV[T float32 | float64 | int](filename string, rows [][]T) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	for _, row := range rows {
		record := make([]string, len(row))
		for j, val := range row {
			record[j] = formatValue(val)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func formatValue[T float32 | float64 | int](v T) string {
	switch x := any(v).(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'f', 6, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}
