// Package parsers turns raw export files from banks and payment providers
// into canonical transactions.
//
// Each supported source format has its own parser that declares the
// delimiter, character encoding, amount locale and date formats its files
// use. Parsing is tolerant at the row level: a malformed row is recorded
// as a row error and skipped, it never aborts the rest of the file.
//
// Supported formats:
//   - BankStatementParser: German bank exports (semicolon CSV, no header)
//   - PayPalParser: PayPal activity exports (German column names)
//   - StripeParser: Stripe payment exports
//   - MollieParser: Mollie settlement exports
//   - DATEVParser: DATEV ledger exports (positional semicolon CSV)
//
// Use Detect to identify the format of an unknown file, then ForSource to
// obtain the matching parser.
package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
	"document-reconciliation-service/pkg/logger"

	"golang.org/x/text/encoding/charmap"
)

// Parser converts the raw bytes of one export file into canonical
// transactions.
type Parser interface {
	// Source reports the format this parser handles.
	Source() models.SourceType

	// Parse decodes and parses the file content. Malformed rows are
	// collected in the result's RowErrors batch rather than failing the
	// whole file; Parse only returns an error when the file as a whole
	// cannot be processed.
	Parse(filename string, content []byte) (*ParseResult, error)
}

// ParseResult holds the outcome of parsing one file.
type ParseResult struct {
	Transactions []*models.Transaction
	Stats        ParseStats
	RowErrors    *errors.RowErrorBatch

	// Metadata carries format-specific file-level information, such as
	// the account number embedded in a bank export filename.
	Metadata map[string]string
}

// ParseStats summarizes what happened to the rows of a file.
type ParseStats struct {
	RowsTotal int `json:"rows_total"`
	Parsed    int `json:"parsed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ForSource returns the parser for the given source format.
func ForSource(source models.SourceType) (Parser, error) {
	switch source {
	case models.SourceBankCSV:
		return NewBankStatementParser(), nil
	case models.SourcePayPal:
		return NewPayPalParser(), nil
	case models.SourceStripe:
		return NewStripeParser(), nil
	case models.SourceMollie:
		return NewMollieParser(), nil
	case models.SourceDATEV:
		return NewDATEVParser(), nil
	default:
		return nil, errors.ImportError(errors.CodeFormatUnrecognized, string(source), nil).
			WithSuggestion("use one of the supported source formats")
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeContent converts raw file bytes to a UTF-8 string. Bank and DATEV
// exports commonly arrive in Windows-1252 or Latin-1, so valid UTF-8 is
// taken as-is and the legacy encodings are tried as fallbacks, in that
// order. ISO-8859-1 accepts every byte sequence, so decoding never fails
// outright.
func decodeContent(content []byte) string {
	content = bytes.TrimPrefix(content, utf8BOM)

	if utf8.Valid(content) {
		return string(content)
	}

	if s, err := charmap.Windows1252.NewDecoder().String(string(content)); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s
	}

	s, _ := charmap.ISO8859_1.NewDecoder().String(string(content))
	return s
}

// readRows parses decoded CSV text into records. Quoting irregularities
// are tolerated and records may have varying field counts; per-row syntax
// errors are reported through onError and the row is skipped.
func readRows(text string, delimiter rune, onError func(line int, err error)) [][]string {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	line := 0
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if onError != nil {
				onError(line, err)
			}
			continue
		}
		rows = append(rows, record)
	}
	return rows
}

// headerIndex builds a lookup from trimmed column name to position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

// field returns the named column of a row, or "" when the column is
// missing from the header or beyond the row's length.
func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// detectDelimiter picks between comma and semicolon by counting which
// occurs more often in the first line. Provider exports switch delimiters
// depending on the account's locale settings.
func detectDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}

// emptyRow reports whether every field of the record is blank.
func emptyRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// assignDedupKey derives the transaction's idempotency key. Byte-identical
// rows within the same file are legitimate (e.g. two equal card payments on
// the same day), so repeats get an increasing ordinal instead of colliding.
func assignDedupKey(tx *models.Transaction, seen map[string]int) {
	base := fmt.Sprintf("%s|%s|%d|%s",
		tx.Source, tx.BookingDate.Format("2006-01-02"), tx.AmountMinor, normalize.Text(tx.Description))
	ordinal := seen[base]
	seen[base]++
	tx.DedupKey = normalize.DedupKey(tx.Source.String(), tx.BookingDate, tx.AmountMinor, tx.Description, ordinal)
}

func parserLogger(source models.SourceType) logger.Logger {
	return logger.WithComponent("parsers").WithField("source", source.String())
}
