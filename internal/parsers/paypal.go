package parsers

import (
	"encoding/json"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
)

// PayPal activity exports use the German column names of the account's
// locale. Amounts are decimal-comma, dates DD.MM.YYYY.
const (
	paypalColDate        = "Datum"
	paypalColType        = "Typ"
	paypalColName        = "Name"
	paypalColCurrency    = "Währung"
	paypalColGross       = "Brutto"
	paypalColFee         = "Gebühr"
	paypalColNet         = "Netto"
	paypalColTxnCode     = "Transaktionscode"
	paypalColRelatedTxn  = "Zugehöriger Transaktionscode"
	paypalColStatus      = "Status"
	paypalColSubject     = "Betreff"
	paypalColInvoiceNo   = "Empfangsnummer"
	paypalColSenderEmail = "Absender E-Mail-Adresse"
)

// PayPalParser parses PayPal activity exports.
type PayPalParser struct {
	locale normalize.AmountLocale
}

// NewPayPalParser creates a parser for PayPal activity exports.
func NewPayPalParser() *PayPalParser {
	return &PayPalParser{locale: normalize.DecimalComma}
}

// Source implements Parser.
func (p *PayPalParser) Source() models.SourceType {
	return models.SourcePayPal
}

// Parse implements Parser.
func (p *PayPalParser) Parse(filename string, content []byte) (*ParseResult, error) {
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
			WithSuggestion("the file is empty or not a PayPal export")
	}

	idx := headerIndex(rows[0])
	for _, col := range []string{paypalColDate, paypalColGross, paypalColTxnCode} {
		if _, ok := idx[col]; !ok {
			return nil, errors.ImportError(errors.CodeMissingColumn, filename, nil).
				WithContext("column", col).
				WithSuggestion("export the activity report with default columns")
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
		// Pending and reversed entries show up again once settled.
		if status := field(row, idx, paypalColStatus); status != "" && !strings.EqualFold(status, "Abgeschlossen") {
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
		Debug("parsed PayPal export")

	return result, nil
}

func (p *PayPalParser) parseRow(filename string, line int, row []string, idx map[string]int) (*models.Transaction, error) {
	dateStr := field(row, idx, paypalColDate)
	bookDate, err := normalize.ParseDate(dateStr)
	if err != nil {
		return nil, errors.RowError(filename, line, paypalColDate, dateStr, err)
	}

	// Net is what actually lands on the balance; fall back to gross for
	// fee-less entries.
	amountStr := field(row, idx, paypalColNet)
	if amountStr == "" {
		amountStr = field(row, idx, paypalColGross)
	}
	amount, err := normalize.ParseAmountMinor(amountStr, p.locale)
	if err != nil {
		return nil, errors.RowError(filename, line, paypalColNet, amountStr, err)
	}

	description := field(row, idx, paypalColSubject)
	if description == "" {
		description = field(row, idx, paypalColType)
	}

	tx := models.NewTransaction(models.SourcePayPal, bookDate, amount, description)
	tx.PartnerName = field(row, idx, paypalColName)

	raw := map[string]string{
		"transaction_id":         field(row, idx, paypalColTxnCode),
		"related_transaction_id": field(row, idx, paypalColRelatedTxn),
		"type":                   field(row, idx, paypalColType),
		"status":                 field(row, idx, paypalColStatus),
		"currency":               field(row, idx, paypalColCurrency),
		"gross":                  field(row, idx, paypalColGross),
		"fee":                    field(row, idx, paypalColFee),
		"net":                    field(row, idx, paypalColNet),
		"invoice_number":         field(row, idx, paypalColInvoiceNo),
		"partner_email":          field(row, idx, paypalColSenderEmail),
	}
	tx.RawData, _ = json.Marshal(raw)

	if err := tx.Validate(); err != nil {
		return nil, errors.RowError(filename, line, "row", "", err)
	}
	return tx, nil
}
