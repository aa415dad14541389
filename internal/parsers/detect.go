package parsers

import (
	"regexp"
	"strings"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"
)

// bankFilenamePattern matches the standard German bank export naming
// scheme: Konto_<account>_<DDMMYY>_<HHMMSS>.csv
var bankFilenamePattern = regexp.MustCompile(`(?i)^konto_(\d+)_(\d{6})_(\d{6})`)

// Detect identifies the source format of a file from its name and content.
//
// When a hint is given it wins, but the content must still look like that
// format; a mismatch is reported as CodeWrongFormat so the caller can tell
// "you told me the wrong thing" apart from "I have no idea what this is"
// (CodeFormatUnrecognized).
func Detect(filename string, content []byte, hint models.SourceType) (models.SourceType, error) {
	if hint != "" {
		if !hint.IsValid() {
			return "", errors.ImportError(errors.CodeFormatUnrecognized, filename, nil).
				WithContext("hint", hint.String()).
				WithSuggestion("use one of BANK_CSV, PAYPAL, STRIPE, MOLLIE, DATEV")
		}
		if !looksLike(hint, filename, content) {
			return "", errors.ImportError(errors.CodeWrongFormat, filename, nil).
				WithContext("hint", hint.String()).
				WithSuggestion("re-check the file or drop the format hint to auto-detect")
		}
		return hint, nil
	}

	for _, source := range []models.SourceType{
		models.SourceBankCSV,
		models.SourcePayPal,
		models.SourceStripe,
		models.SourceMollie,
		models.SourceDATEV,
	} {
		if looksLike(source, filename, content) {
			return source, nil
		}
	}

	return "", errors.ImportError(errors.CodeFormatUnrecognized, filename, nil).
		WithSuggestion("pass an explicit source format hint if the file is a known export")
}

// looksLike applies the per-format signature check. Bank exports are
// recognized by filename, the payment providers by their header columns,
// and DATEV by its filename or metadata preamble.
func looksLike(source models.SourceType, filename string, content []byte) bool {
	base := strings.ToLower(baseName(filename))

	switch source {
	case models.SourceBankCSV:
		if bankFilenamePattern.MatchString(baseName(filename)) {
			return true
		}
		return strings.Contains(base, "konto") && strings.HasSuffix(base, ".csv")

	case models.SourcePayPal:
		header := firstLine(content)
		return strings.Contains(header, "Transaktionscode") && strings.Contains(header, "Brutto")

	case models.SourceStripe:
		header := firstLine(content)
		return strings.Contains(header, "Created date (UTC)") ||
			(strings.Contains(header, "Amount Refunded") && strings.Contains(header, "Fee"))

	case models.SourceMollie:
		header := firstLine(content)
		return strings.Contains(header, "Settlement amount") ||
			(strings.Contains(header, "Consumer name") && strings.Contains(header, "Payment method"))

	case models.SourceDATEV:
		if strings.Contains(base, "datev") && strings.HasSuffix(base, ".csv") {
			return true
		}
		// DATEV Buchungsstapel files start with an EXTF/DTVF metadata row.
		header := firstLine(content)
		return strings.HasPrefix(header, "\"EXTF\"") || strings.HasPrefix(header, "EXTF;") ||
			strings.HasPrefix(header, "\"DTVF\"") || strings.HasPrefix(header, "DTVF;")
	}
	return false
}

// bankFilenameMetadata extracts the account number and export timestamp
// parts from a Konto_<account>_<DDMMYY>_<HHMMSS>.csv filename.
func bankFilenameMetadata(filename string) map[string]string {
	m := bankFilenamePattern.FindStringSubmatch(baseName(filename))
	if m == nil {
		return nil
	}
	return map[string]string{
		"account_number": m[1],
		"export_date":    m[2],
		"export_time":    m[3],
	}
}

func baseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

func firstLine(content []byte) string {
	text := decodeContent(content)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimRight(text, "\r")
}
