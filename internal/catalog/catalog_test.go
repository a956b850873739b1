package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBankPatternsKeepsOrder(t *testing.T) {
	t.Parallel()

	yamlPath := writeFile(t, "banks.yaml", `
NBE:
  - "National Bank of Egypt"
  - "NBE"
CIB:
  - "CIB"
HSBC:
  - "HSBC"
  - "hsbc\\.com\\.eg"
`)
	jsonPath := writeFile(t, "banks.json", `{"NBE": ["National Bank of Egypt", "NBE"], "CIB": ["CIB"], "HSBC": ["HSBC", "hsbc\\.com\\.eg"]}`)
	tomlPath := writeFile(t, "banks.toml", `
NBE = ["National Bank of Egypt", "NBE"]
CIB = ["CIB"]
HSBC = ["HSBC", 'hsbc\.com\.eg']
`)
	for _, path := range []string{yamlPath, jsonPath, tomlPath} {
		bp, err := LoadBankPatterns(path)
		require.NoError(t, err, path)
		require.Len(t, bp.Banks, 3)
		require.Equal(t, "NBE", bp.Banks[0].ID, path)
		require.Equal(t, "CIB", bp.Banks[1].ID, path)
		require.Equal(t, "HSBC", bp.Banks[2].ID, path)
		require.Equal(t, []string{"HSBC", `hsbc\.com\.eg`}, bp.Banks[2].Patterns, path)
	}
}

func TestLoadBankPatternsErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadBankPatterns(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	cases := map[string]string{
		"empty.yaml":    "",
		"list.yaml":     "- HSBC\n- CIB\n",
		"scalar.yaml":   "HSBC: HSBC\n",
		"null.yaml":     "HSBC:\n",
		"dup.yaml":      "HSBC: [a]\nHSBC: [b]\n",
		"nested.yaml":   "HSBC:\n  - [a, b]\n",
		"broken.json":   `{"HSBC": [`,
		"broken.yaml":   "HSBC: [unclosed\n",
		"trailing.json": `{"HSBC": ["a"]} {}`,
	}
	for name, body := range cases {
		_, err := LoadBankPatterns(writeFile(t, name, body))
		require.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestLoadBankPatternsAllowsEmptyList(t *testing.T) {
	t.Parallel()

	bp, err := LoadBankPatterns(writeFile(t, "banks.yaml", "HSBC: []\nCIB: [CIB]\n"))
	require.NoError(t, err)
	require.Len(t, bp.Banks, 2)
	require.Empty(t, bp.Banks[0].Patterns)
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "templates.yaml", `
HSBC:
  - name: Standard
    patterns:
      amount: '(?:charged|paid)\s+(?P<amount>\d+(?:[.,]\d{2})?)'
      currency: '(?P<currency>EGP|USD)'
    required_fields: [amount, currency]
  - name: Short
    patterns:
      amount: '(?P<amount>\d+)'
Generic_Bank:
  - patterns:
      amount: '(?P<amount>\d+)'
    required_fields: []
`)
	set, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Equal(t, []string{"HSBC", "Generic_Bank"}, set.Banks)

	hsbc := set.Templates["HSBC"]
	require.Len(t, hsbc, 2)
	require.Equal(t, "Standard", hsbc[0].Name)
	require.Equal(t, "amount", hsbc[0].Fields[0].Field)
	require.Equal(t, "currency", hsbc[0].Fields[1].Field)
	require.Equal(t, []string{"amount", "currency"}, hsbc[0].Required)
	require.Equal(t, []string{"amount"}, hsbc[1].Required)

	generic := set.Templates["Generic_Bank"]
	require.Equal(t, "template_0", generic[0].Name)
	require.Empty(t, generic[0].Required)
}

func TestLoadTemplatesTOML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "templates.toml", `
[[CIB]]
name = "Standard"
required_fields = ["amount"]

[CIB.patterns]
currency = '(?P<currency>EGP|USD)'
amount = '(?P<amount>\d+)'
`)
	set, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Equal(t, []string{"CIB"}, set.Banks)
	tpl := set.Templates["CIB"][0]
	require.Equal(t, "Standard", tpl.Name)
	require.Equal(t, "currency", tpl.Fields[0].Field)
	require.Equal(t, "amount", tpl.Fields[1].Field)
}

func TestLoadTemplatesErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadTemplates(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	cases := map[string]string{
		"nopatterns.yaml": "HSBC:\n  - name: Standard\n",
		"notlist.yaml":    "HSBC:\n  name: Standard\n",
		"badreq.yaml":     "HSBC:\n  - patterns: {amount: x}\n    required_fields: amount\n",
		"badpat.yaml":     "HSBC:\n  - patterns: {amount: [x]}\n",
		"empty.json":      "",
	}
	for name, body := range cases {
		_, err := LoadTemplates(writeFile(t, name, body))
		require.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestLoadAccounts(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "accounts.yaml", `
1234:
  account_id: hsbc_credit_01
  account_type: Credit
  interest_rate: 22.5
  credit_limit: 50000
  billing_cycle: 25
  label: HSBC Platinum
"0042":
  account_id: cib_debit
  account_type: Debit
`)
	accounts, found, err := LoadAccounts(path)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, accounts, 2)

	a := accounts["1234"]
	require.Equal(t, "hsbc_credit_01", a.AccountID)
	require.Equal(t, "Credit", a.AccountType)
	require.NotNil(t, a.InterestRate)
	require.InDelta(t, 22.5, *a.InterestRate, 1e-9)
	require.NotNil(t, a.CreditLimit)
	require.InDelta(t, 50000, *a.CreditLimit, 1e-9)
	require.NotNil(t, a.BillingCycle)
	require.Equal(t, 25, *a.BillingCycle)

	b := accounts["0042"]
	require.Nil(t, b.InterestRate)
	require.Nil(t, b.BillingCycle)
	require.Empty(t, b.Label)
}

func TestLoadAccountsMissingAndInvalid(t *testing.T) {
	t.Parallel()

	accounts, found, err := LoadAccounts(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, accounts)

	accounts, found, err = LoadAccounts(writeFile(t, "empty.yaml", "\n"))
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, accounts)

	_, _, err = LoadAccounts(writeFile(t, "noid.yaml", "1234:\n  account_type: Credit\n"))
	require.ErrorIs(t, err, ErrMalformed)

	_, _, err = LoadAccounts(writeFile(t, "notype.json", `{"1234": {"account_id": "x"}}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, _, err = LoadAccounts(writeFile(t, "rate.yaml", "1234:\n  account_id: x\n  account_type: Debit\n  interest_rate: high\n"))
	require.ErrorIs(t, err, ErrMalformed)
}
