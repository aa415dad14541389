package parsers

import (
	"encoding/json"
	"regexp"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/internal/normalize"
	"document-reconciliation-service/pkg/errors"
)

// Bank export column positions. These files have no header row; the
// layout is fixed by the bank's export tool.
const (
	bankColReference = 0
	bankColBookDate  = 1
	bankColAmount    = 2
	bankColValueDate = 3
	bankColPartner   = 5
	bankColPurpose   = 6
	bankColAccount   = 7

	bankMinColumns = 7
)

// SEPA structured purpose fields embedded in the free-text purpose line.
var (
	erefPattern = regexp.MustCompile(`EREF:\s*(\S+)`)
	mrefPattern = regexp.MustCompile(`MREF:\s*(\S+)`)
	ibanPattern = regexp.MustCompile(`IBAN:\s*([A-Z]{2}\d{2}[A-Z0-9]+)`)
	bicPattern  = regexp.MustCompile(`BIC:\s*([A-Z]{6}[A-Z0-9]{2,5})`)
	credPattern = regexp.MustCompile(`CRED:\s*(\S+)`)
)

// BankStatementParser parses German bank statement exports: semicolon
// delimited, no header row, Windows-1252 encoded, amounts in decimal-comma
// notation and dates as DD.MM.YYYY.
type BankStatementParser struct {
	locale normalize.AmountLocale
}

// NewBankStatementParser creates a parser for bank statement exports.
func NewBankStatementParser() *BankStatementParser {
	return &BankStatementParser{locale: normalize.DecimalComma}
}

// Source implements Parser.
func (p *BankStatementParser) Source() models.SourceType {
	return models.SourceBankCSV
}

// Parse implements Parser.
func (p *BankStatementParser) Parse(filename string, content []byte) (*ParseResult, error) {
	log := parserLogger(p.Source())

	result := &ParseResult{
		RowErrors: errors.NewRowErrorBatch(filename),
		Metadata:  bankFilenameMetadata(filename),
	}

	text := decodeContent(content)
	rows := readRows(text, ';', func(line int, err error) {
		result.Stats.RowsTotal++
		result.Stats.Failed++
		result.RowErrors.Add(errors.RowError(filename, line, "", "", err))
	})

	seen := make(map[string]int)
	for i, row := range rows {
		line := i + 1
		result.Stats.RowsTotal++

		if emptyRow(row) {
			result.Stats.Skipped++
			continue
		}
		if len(row) < bankMinColumns {
			result.Stats.Failed++
			result.RowErrors.Add(errors.RowError(filename, line, "row", "",
				errors.New(errors.CategoryImport, errors.CodeRowMalformed, "too few columns")))
			continue
		}
		// Some exports carry summary or balance lines with empty core fields.
		if row[bankColReference] == "" || row[bankColBookDate] == "" || row[bankColAmount] == "" {
			result.Stats.Skipped++
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
		Debug("parsed bank statement export")

	return result, nil
}

func (p *BankStatementParser) parseRow(filename string, line int, row []string) (*models.Transaction, error) {
	amount, err := normalize.ParseAmountMinor(row[bankColAmount], p.locale)
	if err != nil {
		return nil, errors.RowError(filename, line, "amount", row[bankColAmount], err)
	}

	bookDate, err := normalize.ParseDate(row[bankColBookDate])
	if err != nil {
		return nil, errors.RowError(filename, line, "booking_date", row[bankColBookDate], err)
	}

	partner := strings.TrimSpace(row[bankColPartner])
	purpose := strings.TrimSpace(row[bankColPurpose])

	tx := models.NewTransaction(models.SourceBankCSV, bookDate, amount, purpose)
	tx.PartnerName = partner
	if len(row) > bankColAccount {
		tx.AccountNumber = strings.TrimSpace(row[bankColAccount])
	}

	raw := map[string]interface{}{
		"reference":    strings.TrimSpace(row[bankColReference]),
		"booking_date": row[bankColBookDate],
		"value_date":   row[bankColValueDate],
		"amount":       row[bankColAmount],
		"partner_name": partner,
		"purpose":      purpose,
	}
	for k, v := range parsePurpose(purpose) {
		raw[k] = v
	}
	tx.RawData, _ = json.Marshal(raw)

	if err := tx.Validate(); err != nil {
		return nil, errors.RowError(filename, line, "row", "", err)
	}
	return tx, nil
}

// parsePurpose extracts the structured SEPA fields from a free-text
// purpose line.
func parsePurpose(purpose string) map[string]string {
	info := make(map[string]string)
	for key, pattern := range map[string]*regexp.Regexp{
		"eref":        erefPattern,
		"mref":        mrefPattern,
		"iban":        ibanPattern,
		"bic":         bicPattern,
		"creditor_id": credPattern,
	} {
		if m := pattern.FindStringSubmatch(purpose); m != nil {
			info[key] = m[1]
		}
	}
	return info
}
