package parsers

import (
	"encoding/json"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
)

// Mollie settlement exports: English column names, decimal-dot amounts,
// ISO dates.
const (
	mollieColID          = "ID"
	mollieColDate        = "Date"
	mollieColAmount      = "Amount"
	mollieColSettlement  = "Settlement amount"
	mollieColRefunded    = "Amount refunded"
	mollieColCurrency    = "Currency"
	mollieColStatus      = "Status"
	mollieColMethod      = "Payment method"
	mollieColDescription = "Description"
	mollieColConsumer    = "Consumer name"
	mollieColAccount     = "Consumer bank account"
	mollieColBIC         = "Consumer BIC"
	mollieColReference   = "Settlement reference"
)

// MollieParser parses Mollie settlement exports.
type MollieParser struct {
	locale normalize.AmountLocale
}

// NewMollieParser creates a parser for Mollie settlement exports.
func NewMollieParser() *MollieParser {
	return &MollieParser{locale: normalize.DecimalDot}
}

// Source implements Parser.
func (p *MollieParser) Source() models.SourceType {
	return models.SourceMollie
}

// Parse implements Parser.
func (p *MollieParser) Parse(filename string, content []byte) (*ParseResult, error) {
	log := parserLogger(p.Source())

	result := &ParseResult{RowErrors: errors.NewRowErrorBatch(filename)}

	text := decodeContent(content)
	rows := readRows(text, detectDelimiter(text), func(line int, err error) {
		result.Stats.RowsTotal++
		result.Stats.Failed++
		result.RowErrors.Add(errors.RowError(filename, line, "", "", err))
	})
	if len(rows) == 0 {
		return nil, errors.ImportError(errors.CodeWrongFormat, filename, nil).
			WithSuggestion("the file is empty or not a Mollie export")
	}

	idx := headerIndex(rows[0])
	for _, col := range []string{mollieColDate, mollieColAmount} {
		if _, ok := idx[col]; !ok {
			return nil, errors.ImportError(errors.CodeMissingColumn, filename, nil).
				WithContext("column", col).
				WithSuggestion("export settlements with the default column set")
		}
	}

	seen := make(map[string]int)
	for i, row := range rows[1:] {
		line := i + 2
		result.Stats.RowsTotal++

		if emptyRow(row) {
			result.Stats.Skipped++
			continue
		}
		if status := field(row, idx, mollieColStatus); status != "" && !strings.EqualFold(status, "paid") {
			result.Stats.Skipped++
			continue
		}

		tx, err := p.parseRow(filename, line, row, idx)
		if err != nil {
			result.Stats.Failed++
			if ce, ok := errors.AsCoreError(err); ok {
				result.RowErrors.Add(ce)
			} else {
				result.RowErrors.Add(errors.RowError(filename, line, "", "", err))
			}
			continue
		}

		assignDedupKey(tx, seen)
		result.Transactions = append(result.Transactions, tx)
		result.Stats.Parsed++
	}

	log.WithField("file", baseName(filename)).
		WithField("parsed", result.Stats.Parsed).
		WithField("failed", result.Stats.Failed).
		Debug("parsed Mollie export")

	return result, nil
}

func (p *MollieParser) parseRow(filename string, line int, row []string, idx map[string]int) (*models.Transaction, error) {
	dateStr := field(row, idx, mollieColDate)
	bookDate, err := normalize.ParseDate(dateStr)
	if err != nil {
		return nil, errors.RowError(filename, line, mollieColDate, dateStr, err)
	}

	// Settlement amount is net of Mollie's fees; use it when present.
	amountStr := field(row, idx, mollieColSettlement)
	if amountStr == "" {
		amountStr = field(row, idx, mollieColAmount)
	}
	amount, err := normalize.ParseAmountMinor(amountStr, p.locale)
	if err != nil {
		return nil, errors.RowError(filename, line, mollieColSettlement, amountStr, err)
	}

	tx := models.NewTransaction(models.SourceMollie, bookDate, amount, field(row, idx, mollieColDescription))
	tx.PartnerName = field(row, idx, mollieColConsumer)
	tx.AccountNumber = field(row, idx, mollieColAccount)

	raw := map[string]string{
		"mollie_id":            field(row, idx, mollieColID),
		"status":               field(row, idx, mollieColStatus),
		"currency":             field(row, idx, mollieColCurrency),
		"gross":                field(row, idx, mollieColAmount),
		"settlement_amount":    field(row, idx, mollieColSettlement),
		"amount_refunded":      field(row, idx, mollieColRefunded),
		"payment_method":       field(row, idx, mollieColMethod),
		"consumer_bic":         field(row, idx, mollieColBIC),
		"settlement_reference": field(row, idx, mollieColReference),
	}
	tx.RawData, _ = json.Marshal(raw)

	if err := tx.Validate(); err != nil {
		return nil, errors.RowError(filename, line, "row", "", err)
	}
	return tx, nil
}
