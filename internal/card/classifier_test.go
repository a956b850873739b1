package card

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/catalog"
)

const accountsYAML = `
"1234":
  account_id: hsbc_credit_01
  account_type: Credit
  interest_rate: 22.5
  credit_limit: 50000
  billing_cycle: 25
  label: HSBC Platinum
"5678":
  account_id: nbe_debit_01
  account_type: debit
`

func newClassifier(t *testing.T, body string) (*Classifier, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	c, err := New(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return c, path
}

func TestExtractSuffix(t *testing.T) {
	t.Parallel()

	found := map[string]string{
		"Your HSBC card ending 1234 was charged 250.50 EGP": "1234",
		"Card ends with 9876":                               "9876",
		"Purchase on card ****4321 at Carrefour":            "4321",
		"Card number 1111 debited":                          "1111",
		"**9012 debited 50 USD":                             "9012",
		"تم خصم ١٥٠ جنيه من بطاقة رقم ٥٦٧٨":                 "5678",
		"بطاقة ***٢٢٣٣ تم استخدامها":                        "2233",
		"ينتهي 4455":                                        "4455",
		"card ending 12345 then card ending 6789":           "6789",
		"Mastercard 1234 charged 99.00 EGP":                 "1234",
		"Paid with VISA Card ****7788":                      "7788",
	}
	for sms, want := range found {
		got, ok := ExtractSuffix(sms)
		require.True(t, ok, sms)
		require.Equal(t, want, got, sms)
	}

	missing := []string{
		"",
		"   ",
		"card ending 12345",
		"card ending 123",
		"spending 1000 EGP at store",
		"Your OTP is 4433",
	}
	for _, sms := range missing {
		_, ok := ExtractSuffix(sms)
		require.False(t, ok, sms)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	c, _ := newClassifier(t, accountsYAML)
	require.Equal(t, 2, c.Len())

	known := c.Lookup("1234")
	require.True(t, known.IsKnown)
	require.Equal(t, "hsbc_credit_01", known.AccountID)
	require.Equal(t, Credit, known.AccountType)
	require.Equal(t, "HSBC Platinum", known.Label)
	require.Equal(t, "1234", known.CardSuffix)
	require.InDelta(t, 22.5, *known.InterestRate, 1e-9)
	require.Equal(t, 25, *known.BillingCycle)

	debit := c.Lookup("٥٦٧٨")
	require.True(t, debit.IsKnown)
	require.Equal(t, Debit, debit.AccountType)
	require.Equal(t, "nbe_debit_01", debit.Label)

	unknown := c.Lookup("0000")
	require.False(t, unknown.IsKnown)
	require.Equal(t, "unknown_0000", unknown.AccountID)
	require.Equal(t, Unknown, unknown.AccountType)
	require.Equal(t, "Unknown card", unknown.Label)
	require.Nil(t, unknown.InterestRate)
	require.Nil(t, unknown.CreditLimit)
	require.Nil(t, unknown.BillingCycle)

	invalid := c.Lookup("12a")
	require.False(t, invalid.IsKnown)
	require.Equal(t, "Invalid suffix", invalid.Label)

	empty := c.Lookup("")
	require.Equal(t, "unknown", empty.AccountID)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c, _ := newClassifier(t, accountsYAML)

	info := c.Classify("Your HSBC card ending 1234 was charged 250.50 EGP")
	require.True(t, info.IsKnown)
	require.Equal(t, "hsbc_credit_01", info.AccountID)

	info = c.Classify("تم خصم ١٥٠ جنيه من بطاقة رقم ٥٦٧٨")
	require.Equal(t, "nbe_debit_01", info.AccountID)

	info = c.Classify("Your balance is 300 EGP")
	require.False(t, info.IsKnown)
	require.Equal(t, "unknown", info.AccountID)
	require.Equal(t, "No card suffix in SMS", info.Label)
}

func TestMissingAccountsFile(t *testing.T) {
	t.Parallel()

	c, err := New(filepath.Join(t.TempDir(), "absent.yaml"), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.Zero(t, c.Len())
	require.False(t, c.Lookup("1234").IsKnown)
}

func TestMalformedAccountsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("1234: [broken\n"), 0o644))
	_, err := New(path)
	require.ErrorIs(t, err, catalog.ErrMalformed)
}

func TestReload(t *testing.T) {
	t.Parallel()

	c, path := newClassifier(t, accountsYAML)
	require.False(t, c.Lookup("9999").IsKnown)

	require.NoError(t, os.WriteFile(path, []byte("\"9999\":\n  account_id: qnb_prepaid\n  account_type: Prepaid\n"), 0o644))
	require.NoError(t, c.Reload(""))
	info := c.Lookup("9999")
	require.True(t, info.IsKnown)
	require.Equal(t, Prepaid, info.AccountType)
	require.False(t, c.Lookup("1234").IsKnown)

	require.NoError(t, os.WriteFile(path, []byte("9999:\n  account_type: Prepaid\n"), 0o644))
	require.ErrorIs(t, c.Reload(""), catalog.ErrMalformed)
	require.True(t, c.Lookup("9999").IsKnown)
}
