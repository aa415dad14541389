package parsers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
)

// DATEV Buchungsstapel column positions. The files carry two metadata
// rows before the booking records start.
const (
	datevColAmount      = 0
	datevColDebitCredit = 1
	datevColAccount     = 2
	datevColContra      = 3
	datevColDate        = 4
	datevColDocRef      = 5
	datevColDescription = 7
	datevColTaxKey      = 8

	datevMinColumns   = 10
	datevMetadataRows = 2
)

// DATEVParser parses DATEV ledger exports: semicolon delimited,
// Windows-1252 encoded, decimal-comma amounts and DDMM or DDMMYYYY dates.
//
// The short DDMM date form has no year; ReferenceYear supplies it and
// defaults to the current year.
type DATEVParser struct {
	locale        normalize.AmountLocale
	ReferenceYear int
}

// NewDATEVParser creates a parser for DATEV ledger exports.
func NewDATEVParser() *DATEVParser {
	return &DATEVParser{
		locale:        normalize.DecimalComma,
		ReferenceYear: time.Now().Year(),
	}
}

// Source implements Parser.
func (p *DATEVParser) Source() models.SourceType {
	return models.SourceDATEV
}

// Parse implements Parser.
func (p *DATEVParser) Parse(filename string, content []byte) (*ParseResult, error) {
	log := parserLogger(p.Source())

	result := &ParseResult{RowErrors: errors.NewRowErrorBatch(filename)}

	text := decodeContent(content)
	rows := readRows(text, ';', func(line int, err error) {
		result.Stats.RowsTotal++
		result.Stats.Failed++
		result.RowErrors.Add(errors.RowError(filename, line, "", "", err))
	})

	seen := make(map[string]int)
	for i, row := range rows {
		line := i + 1
		if i < datevMetadataRows {
			continue
		}
		result.Stats.RowsTotal++

		if emptyRow(row) {
			result.Stats.Skipped++
			continue
		}
		if len(row) < datevMinColumns {
			result.Stats.Failed++
			result.RowErrors.Add(errors.RowError(filename, line, "row", "",
				errors.New(errors.CategoryImport, errors.CodeRowMalformed, "too few columns")))
			continue
		}

		tx, err := p.parseRow(filename, line, row)
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
		Debug("parsed DATEV export")

	return result, nil
}

func (p *DATEVParser) parseRow(filename string, line int, row []string) (*models.Transaction, error) {
	amount, err := normalize.ParseAmountMinor(row[datevColAmount], p.locale)
	if err != nil {
		return nil, errors.RowError(filename, line, "amount", row[datevColAmount], err)
	}

	bookDate, err := p.parseDate(row[datevColDate])
	if err != nil {
		return nil, errors.RowError(filename, line, "booking_date", row[datevColDate], err)
	}

	// The S/H flag decides which side of the booking the stated account
	// sits on.
	account := strings.TrimSpace(row[datevColAccount])
	contra := strings.TrimSpace(row[datevColContra])
	debitAccount, creditAccount := account, contra
	if strings.EqualFold(strings.TrimSpace(row[datevColDebitCredit]), "H") {
		debitAccount, creditAccount = contra, account
	}

	tx := models.NewTransaction(models.SourceDATEV, bookDate, amount, strings.TrimSpace(row[datevColDescription]))
	tx.AccountNumber = debitAccount
	tx.CounterAcct = creditAccount

	raw := map[string]string{
		"amount":       row[datevColAmount],
		"debit_credit": strings.TrimSpace(row[datevColDebitCredit]),
		"account":      account,
		"contra":       contra,
		"date":         row[datevColDate],
		"document_ref": strings.TrimSpace(row[datevColDocRef]),
		"tax_key":      strings.TrimSpace(row[datevColTaxKey]),
	}
	tx.RawData, _ = json.Marshal(raw)

	if err := tx.Validate(); err != nil {
		return nil, errors.RowError(filename, line, "row", "", err)
	}
	return tx, nil
}

// parseDate handles the DATEV date forms DDMM and DDMMYYYY.
func (p *DATEVParser) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 4:
		day, err1 := strconv.Atoi(s[:2])
		month, err2 := strconv.Atoi(s[2:4])
		if err1 != nil || err2 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("invalid DATEV date '%s'", s)
		}
		return time.Date(p.ReferenceYear, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	case 8:
		t, err := time.ParseInLocation("02012006", s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid DATEV date '%s'", s)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("invalid DATEV date '%s'", s)
	}
}
