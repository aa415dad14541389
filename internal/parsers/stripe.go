package parsers

import (
	"encoding/json"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
)

// Stripe payment exports: English column names, decimal-dot amounts,
// timestamps in UTC.
const (
	stripeColID          = "id"
	stripeColCreated     = "Created date (UTC)"
	stripeColAmount      = "Amount"
	stripeColRefunded    = "Amount Refunded"
	stripeColFee         = "Fee"
	stripeColCurrency    = "Currency"
	stripeColStatus      = "Status"
	stripeColCaptured    = "Captured"
	stripeColDescription = "Description"
	stripeColCustomer    = "Customer Email"
	stripeColInvoice     = "Invoice ID"
	stripeColStatement   = "Statement Descriptor"
)

// stripeDateFormats covers the timestamp variants Stripe has used in its
// export files.
var stripeDateFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// StripeParser parses Stripe payment exports.
type StripeParser struct {
	locale normalize.AmountLocale
}

// NewStripeParser creates a parser for Stripe payment exports.
func NewStripeParser() *StripeParser {
	return &StripeParser{locale: normalize.DecimalDot}
}

// Source implements Parser.
func (p *StripeParser) Source() models.SourceType {
	return models.SourceStripe
}

// Parse implements Parser.
func (p *StripeParser) Parse(filename string, content []byte) (*ParseResult, error) {
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
			WithSuggestion("the file is empty or not a Stripe export")
	}

	idx := headerIndex(rows[0])
	for _, col := range []string{stripeColCreated, stripeColAmount} {
		if _, ok := idx[col]; !ok {
			return nil, errors.ImportError(errors.CodeMissingColumn, filename, nil).
				WithContext("column", col).
				WithSuggestion("export payments with the default column set")
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
		status := field(row, idx, stripeColStatus)
		if status != "" && !strings.EqualFold(status, "Paid") && !strings.EqualFold(status, "succeeded") {
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
		Debug("parsed Stripe export")

	return result, nil
}

func (p *StripeParser) parseRow(filename string, line int, row []string, idx map[string]int) (*models.Transaction, error) {
	dateStr := field(row, idx, stripeColCreated)
	bookDate, err := normalize.ParseDate(dateStr, stripeDateFormats...)
	if err != nil {
		return nil, errors.RowError(filename, line, stripeColCreated, dateStr, err)
	}

	gross, err := normalize.ParseAmountMinor(field(row, idx, stripeColAmount), p.locale)
	if err != nil {
		return nil, errors.RowError(filename, line, stripeColAmount, field(row, idx, stripeColAmount), err)
	}
	refunded := p.optionalAmount(row, idx, stripeColRefunded)
	fee := p.optionalAmount(row, idx, stripeColFee)
	net := gross - refunded - fee

	description := field(row, idx, stripeColDescription)
	if description == "" {
		description = field(row, idx, stripeColStatement)
	}

	tx := models.NewTransaction(models.SourceStripe, bookDate, net, description)
	tx.PartnerName = field(row, idx, stripeColCustomer)

	raw := map[string]string{
		"stripe_id":       field(row, idx, stripeColID),
		"status":          field(row, idx, stripeColStatus),
		"captured":        field(row, idx, stripeColCaptured),
		"currency":        field(row, idx, stripeColCurrency),
		"gross":           field(row, idx, stripeColAmount),
		"amount_refunded": field(row, idx, stripeColRefunded),
		"fee":             field(row, idx, stripeColFee),
		"invoice_id":      field(row, idx, stripeColInvoice),
		"customer_email":  field(row, idx, stripeColCustomer),
	}
	tx.RawData, _ = json.Marshal(raw)

	if err := tx.Validate(); err != nil {
		return nil, errors.RowError(filename, line, "row", "", err)
	}
	return tx, nil
}

// optionalAmount parses a column that may be absent or blank; those count
// as zero rather than an error.
func (p *StripeParser) optionalAmount(row []string, idx map[string]int, name string) int64 {
	s := field(row, idx, name)
	if s == "" {
		return 0
	}
	v, err := normalize.ParseAmountMinor(s, p.locale)
	if err != nil {
		return 0
	}
	return v
}
