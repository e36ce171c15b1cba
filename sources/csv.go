package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"watchlog/models"
)

// CsvReader streams a home-streaming viewing-activity export. The file has a
// header row; Title and Date columns are required, Rating is optional. Titles
// of the form "Series: Episode" are not movies and are skipped.
type CsvReader struct {
	file       *os.File
	reader     *csv.Reader
	dateLayout string

	titleIdx  int
	dateIdx   int
	ratingIdx int

	done bool
}

// OpenCsv opens path and locates the required columns in the header row.
// dateLayout is the Go layout matching the export's date format, e.g.
// "2/1/2006" for d/m/Y exports.
func OpenCsv(path, dateLayout string) (*CsvReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, newError(ErrorKindProtocol, "csv", fmt.Errorf("failed to open export: %w", err))
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, newError(ErrorKindProtocol, "csv", fmt.Errorf("failed to read header: %w", err))
	}

	c := &CsvReader{
		file:       file,
		reader:     reader,
		dateLayout: dateLayout,
		titleIdx:   -1,
		dateIdx:    -1,
		ratingIdx:  -1,
	}
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Title":
			c.titleIdx = i
		case "Date":
			c.dateIdx = i
		case "Rating":
			c.ratingIdx = i
		}
	}
	if c.titleIdx < 0 || c.dateIdx < 0 {
		file.Close()
		return nil, newError(ErrorKindProtocol, "csv", errors.New("export is missing Title or Date column"))
	}

	return c, nil
}

// NextPage reads up to one provider page worth of rows. Series rows and rows
// with unparseable dates are skipped, not failed.
func (c *CsvReader) NextPage(ctx context.Context) ([]models.Partial, error) {
	if c.done {
		return nil, nil
	}

	var records []models.Partial
	for len(records) < pageSize {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrorKindTransientNetwork, "csv", err)
		}

		row, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			c.file.Close()
			break
		}
		if err != nil {
			return nil, newError(ErrorKindProtocol, "csv", fmt.Errorf("failed to read row: %w", err))
		}
		if c.titleIdx >= len(row) || c.dateIdx >= len(row) {
			slog.Warn("Skipping short CSV row", "columns", len(row))
			continue
		}

		title := strings.TrimSpace(row[c.titleIdx])
		if title == "" {
			continue
		}
		if strings.Contains(title, ":") {
			// "Series: Episode" rows are not movies
			slog.Debug("Skipping series row", "title", title)
			continue
		}

		watchDate, err := time.Parse(c.dateLayout, strings.TrimSpace(row[c.dateIdx]))
		if err != nil {
			slog.Warn("Skipping row with unparseable date", "title", title, "date", row[c.dateIdx])
			continue
		}

		partial := models.Partial{
			Title:     title,
			WatchDate: watchDate.Format(models.DateLayout),
		}
		if c.ratingIdx >= 0 && c.ratingIdx < len(row) {
			if rating, err := strconv.Atoi(strings.TrimSpace(row[c.ratingIdx])); err == nil && rating >= 1 && rating <= 10 {
				partial.Rating = &rating
			}
		}
		records = append(records, partial)
	}

	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

// Close releases the underlying file; safe after exhaustion.
func (c *CsvReader) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.file.Close()
}
