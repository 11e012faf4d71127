package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reddot-watch/collector/internal/database"
	"reddot-watch/collector/internal/models"
)

// Result summarizes an import.
type Result struct {
	Total    int
	Imported int
	Errors   []string
}

// Importer loads sources from CSV into the database.
type Importer struct {
	db     *database.DB
	client *http.Client
}

// NewImporter creates a new source importer
func NewImporter(db *database.DB) *Importer {
	return &Importer{db: db, client: &http.Client{Timeout: 30 * time.Second}}
}

// ImportSources imports sources from a local CSV file or an http(s) URL.
// Rows for a name that already exists update that source.
func (i *Importer) ImportSources(ctx context.Context, location string) (*Result, error) {
	log.Info().Str("csv", location).Msg("Starting source import")

	csvData, err := i.open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to get CSV data: %w", err)
	}
	defer csvData.Close()

	result, err := i.Import(ctx, csvData)
	if err != nil {
		return nil, fmt.Errorf("failed to import sources: %w", err)
	}

	log.Info().
		Int("total", result.Total).
		Int("success", result.Imported).
		Int("errors", len(result.Errors)).
		Msg("Import summary")
	return result, nil
}

func (i *Importer) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		log.Info().Str("url", location).Msg("Downloading CSV from remote source")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := i.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download file: HTTP status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	if _, err := os.Stat(location); err != nil {
		return nil, fmt.Errorf("CSV file not found: %s", location)
	}
	log.Info().Str("path", location).Msg("Using local CSV file")
	return os.Open(location)
}

// Import reads sources from r. The header must contain name and url; kind,
// language, enabled and tags (separated by "|" or ";") are optional.
// Bad rows are reported in the result and skipped.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	log.Debug().Strs("header", header).Msg("CSV header read")

	for _, column := range []string{"name", "url"} {
		if findColumnIndex(header, column) < 0 {
			return nil, fmt.Errorf("required column '%s' not found in CSV header", column)
		}
	}

	nameIdx := findColumnIndex(header, "name")
	urlIdx := findColumnIndex(header, "url")
	kindIdx := findColumnIndex(header, "kind")
	languageIdx := findColumnIndex(header, "language")
	enabledIdx := findColumnIndex(header, "enabled")
	tagsIdx := findColumnIndex(header, "tags")

	result := &Result{}
	seen := map[string]int{}
	lineCount := 1 // Header was already read

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			log.Debug().Int("line", lineCount).Msg("Skipping empty row")
			continue
		}
		result.Total++

		src := models.NewSource(safeGetValue(record, nameIdx), safeGetValue(record, urlIdx))
		if kind := safeGetValue(record, kindIdx); kind != "" {
			src.Kind = models.SourceKind(strings.ToLower(kind))
		}
		src.Language = strings.ToLower(safeGetValue(record, languageIdx))
		if enabled := safeGetValue(record, enabledIdx); enabled != "" {
			v, err := strconv.ParseBool(enabled)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid enabled value %q", lineCount, enabled))
				continue
			}
			src.Enabled = v
		}
		src.Tags = splitTags(safeGetValue(record, tagsIdx))

		if src.Name == "" || src.URL == "" {
			log.Warn().Int("line", lineCount).Msg("Skipping row with empty name or URL")
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: empty name or URL", lineCount))
			continue
		}
		if prev, dup := seen[src.Name]; dup {
			log.Warn().Int("line", lineCount).Str("name", src.Name).Msg("Duplicate source name")
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: duplicate name %s (first on line %d)", lineCount, src.Name, prev))
			continue
		}
		seen[src.Name] = lineCount

		logger := log.With().
			Int("line", lineCount).
			Str("name", src.Name).
			Str("url", src.URL).
			Logger()

		if err := i.db.UpsertSource(ctx, src); err != nil {
			logger.Error().Err(err).Msg("Failed to store source")
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}
		result.Imported++
		logger.Debug().Msg("Source imported")
	}
	return result, nil
}

func splitTags(s string) models.StringList {
	tags := models.StringList{}
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' }) {
		if t = strings.TrimSpace(t); t != "" && !tags.Contains(t) {
			tags = append(tags, t)
		}
	}
	return tags
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns the trimmed value at index, or "" when out of bounds.
func safeGetValue(record []string, index int) string {
	if index >= 0 && index < len(record) {
		return strings.TrimSpace(record[index])
	}
	return ""
}
