package parsers

import (
	"testing"
	"time"

	"document-reconciliation-service/internal/models"
	"document-reconciliation-service/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankStatementSample = `REF001;14.01.2025;1.234,56;14.01.2025;;ACME GmbH;Rechnung RE-2025-001 EREF: E2E-123 IBAN: DE89370400440532013000;1200
REF002;15.01.2025;-89,90;15.01.2025;;Hosting Provider Ltd;Monatliche Gebuehr MREF: M-555 CRED: DE98ZZZ09999999999;1200
;;;;;;;
REF003;16.01.2025;50,00;16.01.2025;;Kunde A;Teilzahlung;1200`

func TestBankStatementParser(t *testing.T) {
	parser := NewBankStatementParser()
	result, err := parser.Parse("Konto_1200_140125_093000.csv", []byte(bankStatementSample))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 3)
	assert.Equal(t, 3, result.Stats.Parsed)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, 0, result.Stats.Failed)

	first := result.Transactions[0]
	assert.Equal(t, models.SourceBankCSV, first.Source)
	assert.Equal(t, int64(123456), first.AmountMinor)
	assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), first.BookingDate)
	assert.Equal(t, "ACME GmbH", first.PartnerName)
	assert.Equal(t, "1200", first.AccountNumber)
	assert.NotEmpty(t, first.DedupKey)

	second := result.Transactions[1]
	assert.Equal(t, int64(-8990), second.AmountMinor)
	assert.True(t, second.IsDebit())

	assert.Equal(t, "1200", result.Metadata["account_number"])
	assert.Equal(t, "140125", result.Metadata["export_date"])
}

func TestBankStatementParserRowErrors(t *testing.T) {
	sample := `REF001;14.01.2025;notanamount;14.01.2025;;Partner;Zweck;1200
REF002;14.01.2025;10,00;14.01.2025;;Partner;Zweck;1200`

	parser := NewBankStatementParser()
	result, err := parser.Parse("Konto_1200_140125_093000.csv", []byte(sample))
	require.NoError(t, err)

	assert.Len(t, result.Transactions, 1)
	assert.Equal(t, 1, result.Stats.Failed)
	require.Equal(t, 1, result.RowErrors.Len())
	assert.Equal(t, errors.CodeRowMalformed, result.RowErrors.Errors[0].Code)
}

func TestParsePurpose(t *testing.T) {
	info := parsePurpose("Lastschrift EREF: E2E-42 MREF: M-7 IBAN: DE89370400440532013000 BIC: COBADEFFXXX CRED: DE98ZZZ09999999999")

	assert.Equal(t, "E2E-42", info["eref"])
	assert.Equal(t, "M-7", info["mref"])
	assert.Equal(t, "DE89370400440532013000", info["iban"])
	assert.Equal(t, "COBADEFFXXX", info["bic"])
	assert.Equal(t, "DE98ZZZ09999999999", info["creditor_id"])

	assert.Empty(t, parsePurpose("plain text without references"))
}

func TestDedupKeyOrdinalDisambiguatesIdenticalRows(t *testing.T) {
	sample := `REF;14.01.2025;25,00;14.01.2025;;Kiosk;Kaffee;1200
REF;14.01.2025;25,00;14.01.2025;;Kiosk;Kaffee;1200`

	parser := NewBankStatementParser()
	result, err := parser.Parse("Konto_1200_140125_093000.csv", []byte(sample))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 2)
	assert.NotEqual(t, result.Transactions[0].DedupKey, result.Transactions[1].DedupKey)
}

const paypalSample = `Datum,Uhrzeit,Typ,Name,Währung,Brutto,Gebühr,Netto,Transaktionscode,Zugehöriger Transaktionscode,Status,Betreff,Empfangsnummer,Absender E-Mail-Adresse
14.01.2025,10:22:01,Zahlung,Max Mustermann,EUR,"119,00","-3,50","115,50",TXN001,,Abgeschlossen,Rechnung RE-2025-001,RE-2025-001,max@example.com
15.01.2025,11:00:00,Zahlung,Erika Musterfrau,EUR,"50,00","-1,80","48,20",TXN002,,Ausstehend,Anzahlung,,erika@example.com`

func TestPayPalParser(t *testing.T) {
	parser := NewPayPalParser()
	result, err := parser.Parse("paypal_export.csv", []byte(paypalSample))
	require.NoError(t, err)

	// The pending row is skipped; it shows up again once settled.
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, 1, result.Stats.Skipped)

	tx := result.Transactions[0]
	assert.Equal(t, models.SourcePayPal, tx.Source)
	assert.Equal(t, int64(11550), tx.AmountMinor)
	assert.Equal(t, "Max Mustermann", tx.PartnerName)
	assert.Equal(t, "Rechnung RE-2025-001", tx.Description)
}

func TestPayPalParserMissingColumn(t *testing.T) {
	parser := NewPayPalParser()
	_, err := parser.Parse("paypal_export.csv", []byte("Name,Brutto\nMax,10"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingColumn))
}

const stripeSample = `id,Created date (UTC),Amount,Amount Refunded,Fee,Currency,Status,Captured,Description,Customer Email
ch_001,2025-01-14 09:15:00,119.00,0.00,3.77,eur,Paid,true,Invoice RE-2025-001,buyer@example.com
ch_002,2025-01-15 10:00:00,50.00,50.00,1.75,eur,Refunded,true,Cancelled order,other@example.com`

func TestStripeParser(t *testing.T) {
	parser := NewStripeParser()
	result, err := parser.Parse("unified_payments.csv", []byte(stripeSample))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, models.SourceStripe, tx.Source)
	// 119.00 gross - 0 refunded - 3.77 fee
	assert.Equal(t, int64(11523), tx.AmountMinor)
	assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), tx.BookingDate)
	assert.Equal(t, "buyer@example.com", tx.PartnerName)
}

const mollieSample = `ID,Date,Amount,Settlement amount,Amount refunded,Currency,Status,Payment method,Description,Consumer name,Consumer bank account,Consumer BIC,Settlement reference
tr_001,2025-01-14,119.00,117.81,0.00,EUR,paid,ideal,Order 1001,J. Jansen,NL91ABNA0417164300,ABNANL2A,1234567.2501.01
tr_002,2025-01-15,25.00,24.50,0.00,EUR,open,ideal,Order 1002,P. Peters,,,`

func TestMollieParser(t *testing.T) {
	parser := NewMollieParser()
	result, err := parser.Parse("mollie_settlements.csv", []byte(mollieSample))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 1)
	tx := result.Transactions[0]
	assert.Equal(t, models.SourceMollie, tx.Source)
	assert.Equal(t, int64(11781), tx.AmountMinor)
	assert.Equal(t, "J. Jansen", tx.PartnerName)
	assert.Equal(t, "NL91ABNA0417164300", tx.AccountNumber)
}

const datevSample = `"EXTF";700;21;"Buchungsstapel";13;;;;;;
Umsatz;SH;Konto;Gegenkonto;Datum;Beleg;;Buchungstext;Steuer;
"1.234,56";S;1200;8400;1401;RE-2025-001;;Erloese 19% USt;9;
"500,00";H;4980;1200;14012025;RE-2025-002;;Buerobedarf;0;`

func TestDATEVParser(t *testing.T) {
	parser := NewDATEVParser()
	parser.ReferenceYear = 2025

	result, err := parser.Parse("datev_export.csv", []byte(datevSample))
	require.NoError(t, err)

	require.Len(t, result.Transactions, 2)

	first := result.Transactions[0]
	assert.Equal(t, int64(123456), first.AmountMinor)
	assert.Equal(t, time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), first.BookingDate)
	assert.Equal(t, "1200", first.AccountNumber)
	assert.Equal(t, "8400", first.CounterAcct)

	// H flag swaps the booking sides.
	second := result.Transactions[1]
	assert.Equal(t, "1200", second.AccountNumber)
	assert.Equal(t, "4980", second.CounterAcct)
}

func TestDATEVParseDate(t *testing.T) {
	parser := NewDATEVParser()
	parser.ReferenceYear = 2025

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"1401", time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), false},
		{"31122024", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"1313", time.Time{}, true},
		{"14", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parser.parseDate(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		hint     models.SourceType
		want     models.SourceType
		wantCode errors.ErrorCode
	}{
		{"bank filename pattern", "Konto_1200_140125_093000.csv", "REF;14.01.2025;1,00;;;;;", "", models.SourceBankCSV, ""},
		{"bank konto in name", "konto-umsaetze.csv", "", "", models.SourceBankCSV, ""},
		{"paypal header", "download.csv", paypalSample, "", models.SourcePayPal, ""},
		{"stripe header", "unified_payments.csv", stripeSample, "", models.SourceStripe, ""},
		{"mollie header", "settlements.csv", mollieSample, "", models.SourceMollie, ""},
		{"datev filename", "datev_buchungen.csv", "", "", models.SourceDATEV, ""},
		{"datev extf preamble", "export.csv", datevSample, "", models.SourceDATEV, ""},
		{"hint wins", "whatever.csv", stripeSample, models.SourceStripe, models.SourceStripe, ""},
		{"hint mismatch", "whatever.csv", "just some text", models.SourceStripe, "", errors.CodeWrongFormat},
		{"unrecognized", "notes.txt", "hello world", "", "", errors.CodeFormatUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.filename, []byte(tt.content), tt.hint)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForSource(t *testing.T) {
	for _, source := range []models.SourceType{
		models.SourceBankCSV, models.SourcePayPal, models.SourceStripe, models.SourceMollie, models.SourceDATEV,
	} {
		parser, err := ForSource(source)
		require.NoError(t, err)
		assert.Equal(t, source, parser.Source())
	}

	_, err := ForSource(models.SourceType("EXCEL"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFormatUnrecognized))
}

func TestDecodeContent(t *testing.T) {
	// "Gebühr" in Windows-1252: fc is ü.
	latin := []byte{'G', 'e', 'b', 0xfc, 'h', 'r'}
	assert.Equal(t, "Gebühr", decodeContent(latin))

	// Valid UTF-8 passes through, BOM stripped.
	utf := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Gebühr")...)
	assert.Equal(t, "Gebühr", decodeContent(utf))
}
