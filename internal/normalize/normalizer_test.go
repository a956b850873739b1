package normalize

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/card"
	"github.com/jask/smsledger/internal/models"
)

type fakeAccounts map[string]card.AccountInfo

func (f fakeAccounts) Lookup(suffix string) card.AccountInfo {
	if info, ok := f[suffix]; ok {
		return info
	}
	return card.AccountInfo{AccountID: "unknown_" + suffix, AccountType: card.Unknown}
}

type panickyAccounts struct{}

func (panickyAccounts) Lookup(string) card.AccountInfo { panic("table corrupted") }

func rate(f float64) *float64 { return &f }

func sequentialIDs() Option {
	var n atomic.Int64
	return WithIDFunc(func() string { return fmt.Sprintf("txn-%d", n.Add(1)) })
}

func testAccounts() fakeAccounts {
	return fakeAccounts{
		"1234": {AccountID: "HSBC-CC-001", AccountType: card.Credit, InterestRate: rate(22.5)},
		"5678": {AccountID: "CIB-DB-002", AccountType: card.Debit},
	}
}

func TestNormalizeFullRecord(t *testing.T) {
	t.Parallel()

	n := New(testAccounts())
	rec := n.Normalize(models.ParsedTransaction{
		Amount:     "250.50",
		Currency:   "EGP",
		Date:       "15/11/2024",
		Payee:      "Store   XYZ ",
		TxnType:    "POS",
		CardSuffix: "1234",
		BankID:     "HSBC",
		Confidence: models.ConfidenceHigh,
		Warnings:   []string{},
	})

	require.NotEmpty(t, rec.ID)
	require.NotNil(t, rec.Date)
	require.Equal(t, "2024-11-15", *rec.Date)
	require.NotNil(t, rec.Amount)
	require.InDelta(t, 250.50, *rec.Amount, 1e-9)
	require.Equal(t, "EGP", *rec.Currency)
	require.Equal(t, "Store XYZ", *rec.Payee)
	require.Equal(t, "Store XYZ", *rec.NormalizedMerchant)
	require.Equal(t, "HSBC-CC-001", *rec.AccountID)
	require.Equal(t, "Credit", *rec.AccountType)
	require.InDelta(t, 22.5, *rec.InterestRate, 1e-9)
	require.ElementsMatch(t, []string{"POS", "HSBC"}, rec.Tags)
	require.Equal(t, models.UrgencyNormal, rec.Urgency)
	require.Equal(t, models.ConfidenceHigh, rec.Confidence)
	require.Equal(t, models.DefaultCategory, rec.Category)
	require.Equal(t, models.DefaultSubcategory, rec.Subcategory)
}

func TestNormalizeEmptyFields(t *testing.T) {
	t.Parallel()

	rec := New(nil).Normalize(models.ParsedTransaction{
		Payee:      "   ",
		Date:       "not a date",
		Amount:     "abc",
		Confidence: models.ConfidenceLow,
		Warnings:   []string{"Invalid numeric format for amount: abc"},
	})
	require.Nil(t, rec.Date)
	require.Nil(t, rec.Amount)
	require.Nil(t, rec.Currency)
	require.Nil(t, rec.Payee)
	require.Nil(t, rec.NormalizedMerchant)
	require.Nil(t, rec.AccountID)
	require.Equal(t, []string{models.TagHasWarnings}, rec.Tags)
	require.Equal(t, models.UrgencyNormal, rec.Urgency)
	require.Equal(t, models.ConfidenceLow, rec.Confidence)
}

func TestNormalizeDates(t *testing.T) {
	t.Parallel()

	n := New(nil)
	for in, want := range map[string]string{
		"15/11/2024":          "2024-11-15",
		"2024-11-15":          "2024-11-15",
		"15 Nov 2024":         "2024-11-15",
		"2024-11-15 13:45:00": "2024-11-15",
	} {
		rec := n.Normalize(models.ParsedTransaction{Date: in})
		require.NotNil(t, rec.Date, in)
		require.Equal(t, want, *rec.Date, in)
	}
}

func TestNormalizeAmounts(t *testing.T) {
	t.Parallel()

	n := New(nil)
	rec := n.Normalize(models.ParsedTransaction{Amount: "1,234.56"})
	require.InDelta(t, 1234.56, *rec.Amount, 1e-9)

	rec = n.Normalize(models.ParsedTransaction{Amount: "١٥٠٫٧٥"})
	require.InDelta(t, 150.75, *rec.Amount, 1e-9)

	rec = n.Normalize(models.ParsedTransaction{})
	require.Nil(t, rec.Amount)
}

func TestNormalizeUnicodeText(t *testing.T) {
	t.Parallel()

	rec := New(nil).Normalize(models.ParsedTransaction{Payee: "Cafe\u0301\n  Paris"})
	require.Equal(t, "Caf\u00e9 Paris", *rec.Payee)

	rec = New(nil).Normalize(models.ParsedTransaction{Payee: "  كارفور   مصر "})
	require.Equal(t, "كارفور مصر", *rec.Payee)
}

func TestUrgency(t *testing.T) {
	t.Parallel()

	n := New(testAccounts())
	cases := []struct {
		amount string
		suffix string
		want   models.Urgency
	}{
		{"15000", "", models.UrgencyHigh},
		{"15000", "5678", models.UrgencyHigh},
		{"10000", "", models.UrgencyNormal},
		{"10000", "1234", models.UrgencyMedium},
		{"6000", "1234", models.UrgencyMedium},
		{"5000", "1234", models.UrgencyNormal},
		{"6000", "5678", models.UrgencyNormal},
		{"", "1234", models.UrgencyNormal},
	}
	for _, tc := range cases {
		rec := n.Normalize(models.ParsedTransaction{Amount: tc.amount, CardSuffix: tc.suffix})
		require.Equal(t, tc.want, rec.Urgency, "amount %q suffix %q", tc.amount, tc.suffix)
	}

	custom := New(testAccounts(), WithUrgency(UrgencyThresholds{High: 100, CreditMedium: 50}))
	require.Equal(t, models.UrgencyHigh, custom.Normalize(models.ParsedTransaction{Amount: "101"}).Urgency)
	require.Equal(t, models.UrgencyMedium, custom.Normalize(models.ParsedTransaction{Amount: "60", CardSuffix: "1234"}).Urgency)
}

func TestNormalizeUnknownCard(t *testing.T) {
	t.Parallel()

	rec := New(testAccounts()).Normalize(models.ParsedTransaction{Amount: "10", CardSuffix: "9999"})
	require.Equal(t, "unknown_9999", *rec.AccountID)
	require.Equal(t, "Unknown", *rec.AccountType)
	require.Nil(t, rec.InterestRate)
}

func TestNormalizeLookupPanic(t *testing.T) {
	t.Parallel()

	rec := New(panickyAccounts{}).Normalize(models.ParsedTransaction{Amount: "10", CardSuffix: "1234"})
	require.Nil(t, rec.AccountID)
	require.Nil(t, rec.AccountType)
	require.NotNil(t, rec.Amount)
}

func TestTagsDeduplicated(t *testing.T) {
	t.Parallel()

	rec := New(nil).Normalize(models.ParsedTransaction{TxnType: "HSBC", BankID: "HSBC", Warnings: []string{"a", "b"}})
	require.Equal(t, []string{"HSBC", models.TagHasWarnings}, rec.Tags)
}

func TestNormalizeFreshIDs(t *testing.T) {
	t.Parallel()

	n := New(nil)
	a := n.Normalize(models.ParsedTransaction{Amount: "1"})
	b := n.Normalize(models.ParsedTransaction{Amount: "1"})
	require.NotEqual(t, a.ID, b.ID)
}

func TestNormalizeBatch(t *testing.T) {
	t.Parallel()

	n := New(testAccounts(), sequentialIDs(), WithWorkers(2))
	items := []models.ParsedTransaction{
		{Amount: "1", Payee: "first"},
		{Amount: "2", Payee: "second"},
		{},
		{Amount: "4", Payee: "fourth"},
	}
	got := n.NormalizeBatch(items)
	require.Len(t, got, len(items))
	require.Equal(t, "first", *got[0].Payee)
	require.Equal(t, "second", *got[1].Payee)
	require.Nil(t, got[2].Payee)
	require.Equal(t, "fourth", *got[3].Payee)

	seen := map[string]bool{}
	for _, r := range got {
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}

	require.Empty(t, n.NormalizeBatch(nil))
}

func TestNormalizeInfersYear(t *testing.T) {
	t.Parallel()

	clock := func() time.Time { return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) }
	n := New(nil, WithClock(clock))

	rec := n.Normalize(models.ParsedTransaction{Date: "15/11"})
	require.Equal(t, "2025-11-15", *rec.Date)
	require.Equal(t, "15/11", *rec.ExtractedDateRaw)

	rec = n.Normalize(models.ParsedTransaction{Date: "15/11/2024"})
	require.Equal(t, "2024-11-15", *rec.Date)

	rec = n.Normalize(models.ParsedTransaction{Date: "29/02"})
	require.Nil(t, rec.Date)
	require.Equal(t, "29/02", *rec.ExtractedDateRaw)

	rec = n.Normalize(models.ParsedTransaction{})
	require.Nil(t, rec.ExtractedDateRaw)
}

func TestNormalizeStateAndRepairFlag(t *testing.T) {
	t.Parallel()

	n := New(nil)
	rec := n.Normalize(models.ParsedTransaction{Amount: "5", State: models.StateMonetary, TextRepaired: true})
	require.Equal(t, models.StateMonetary, rec.State)
	require.True(t, rec.TextRepaired)

	rec = n.Normalize(models.ParsedTransaction{})
	require.Equal(t, models.StateUnknown, rec.State)
	require.False(t, rec.TextRepaired)
}
