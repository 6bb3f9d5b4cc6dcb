package parser

import (
	"strings"

	"github.com/dvloznov/momo-tracker/internal/domain"
)

// Rule maps a predicate over upper-cased message text to a transaction type.
type Rule struct {
	Name  string
	Match func(upper string) bool
	Type  domain.TransactionType
}

// Classifier evaluates rules in order and returns the type of the first match.
type Classifier struct {
	rules    []Rule
	fallback domain.TransactionType
}

// DefaultRules returns the production rule list. Order matters: "PAYMENT" is
// listed before "DIRECT PAYMENT", so THIRD_PARTY is never produced by text that
// also contains PAYMENT. Do not reorder without agreeing on the new priority.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "received", Match: contains("RECEIVED"), Type: domain.TypeMoneyReceived},
		{Name: "cash power", Match: contains("CASH POWER"), Type: domain.TypeCashPower},
		{Name: "airtime", Match: contains("AIRTIME"), Type: domain.TypeAirtime},
		{Name: "bundle", Match: contains("BUNDLES AND PACKS", "INTERNET BUNDLE"), Type: domain.TypeBundlePurchase},
		{Name: "bank deposit", Match: contains("BANK DEPOSIT"), Type: domain.TypeBankDeposit},
		{Name: "withdrawn", Match: contains("WITHDRAWN"), Type: domain.TypeWithdrawal},
		{Name: "transferred to", Match: contains("TRANSFERRED TO"), Type: domain.TypeTransfer},
		{Name: "payment", Match: contains("PAYMENT"), Type: domain.TypePayment},
		{Name: "bank", Match: contains("BANK"), Type: domain.TypeBankTransfer},
		{Name: "direct payment", Match: contains("DIRECT PAYMENT"), Type: domain.TypeThirdParty},
	}
}

// NewClassifier returns a classifier over rules that falls back to PAYMENT.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules, fallback: domain.TypePayment}
}

// DefaultClassifier returns a classifier over DefaultRules.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules())
}

// Classify upper-cases text and returns the first matching rule's type.
func (c *Classifier) Classify(text string) domain.TransactionType {
	typ, _ := c.classify(text)
	return typ
}

// classify also reports the name of the winning rule, or "" for the fallback.
func (c *Classifier) classify(text string) (domain.TransactionType, string) {
	upper := strings.ToUpper(text)
	for _, r := range c.rules {
		if r.Match(upper) {
			return r.Type, r.Name
		}
	}
	return c.fallback, ""
}

func contains(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}
