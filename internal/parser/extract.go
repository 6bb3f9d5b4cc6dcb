package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyUnit is the code that terminates monetary amounts in message text.
const CurrencyUnit = "RWF"

// DateLayout is the only timestamp layout accepted after the "at" marker.
const DateLayout = "2006-01-02 15:04:05"

// numPattern matches a number with optional comma thousands separators and
// an optional fractional part.
const numPattern = `\d+(?:,\d+)*\.?\d*`

var (
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:received|transferred|payment of|deposit of|withdrawn)\s*(` + numPattern + `)\s*` + CurrencyUnit),
		regexp.MustCompile(CurrencyUnit + `\s*(` + numPattern + `)`),
		regexp.MustCompile(`(` + numPattern + `)\s*` + CurrencyUnit),
	}
	feePattern     = regexp.MustCompile(`(?i)Fee\s*(?:was|:)\s*(` + numPattern + `)\s*` + CurrencyUnit)
	balancePattern = regexp.MustCompile(`(?i)balance:?\s*(` + numPattern + `)\s*` + CurrencyUnit)
	phonePattern   = regexp.MustCompile(`2507\d{8}`)
	txIDPattern    = regexp.MustCompile(`(?:TxId:|Id:)\s*(\d+)`)
	datePattern    = regexp.MustCompile(`at\s+(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)
)

var (
	errNoDate          = errors.New("no date found")
	errDateUnparseable = errors.New("date does not match layout")
)

// ExtractAmount returns the transaction amount, or zero when none of the
// amount patterns match or the matched text is not a number.
func ExtractAmount(text string) decimal.Decimal {
	for _, re := range amountPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return toDecimal(m[1])
		}
	}
	return decimal.Zero
}

// ExtractFee returns the fee following "Fee was" or "Fee:", or zero.
func ExtractFee(text string) decimal.Decimal {
	return firstDecimal(feePattern, text)
}

// ExtractBalance returns the balance following "balance", or zero.
func ExtractBalance(text string) decimal.Decimal {
	return firstDecimal(balancePattern, text)
}

// ExtractPhoneNumber returns the first 12-digit number starting with 2507.
func ExtractPhoneNumber(text string) *string {
	m := phonePattern.FindString(text)
	if m == "" {
		return nil
	}
	return &m
}

// ExtractTransactionID returns the digits after a "TxId:" or "Id:" label.
func ExtractTransactionID(text string) *string {
	m := txIDPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	id := m[1]
	return &id
}

// ExtractDate returns the timestamp following the word "at", or nil when
// there is none or it fails strict parsing.
func ExtractDate(text string) *time.Time {
	t, err := extractDate(text)
	if err != nil {
		return nil
	}
	return t
}

func extractDate(text string) (*time.Time, error) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, errNoDate
	}
	// The pattern allows any whitespace run between date and time.
	raw := strings.Join(strings.Fields(m[1]), " ")
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errDateUnparseable, raw, err)
	}
	return &t, nil
}

func firstDecimal(re *regexp.Regexp, text string) decimal.Decimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero
	}
	return toDecimal(m[1])
}

// toDecimal strips thousands separators and converts; anything unparseable is zero.
func toDecimal(raw string) decimal.Decimal {
	cleaned := strings.TrimSuffix(strings.ReplaceAll(raw, ",", ""), ".")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}
