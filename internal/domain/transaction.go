package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawMessage is one SMS entry read from a phone backup export.
type RawMessage struct {
	SenderAddress string // e.g. "M-Money"
	Body          string
}

// TransactionType is the closed set of categories a message can be classified into.
type TransactionType string

const (
	TypeMoneyReceived  TransactionType = "MONEY_RECEIVED"
	TypeCashPower      TransactionType = "CASH_POWER"
	TypeAirtime        TransactionType = "AIRTIME"
	TypeBundlePurchase TransactionType = "BUNDLE_PURCHASE"
	TypeBankDeposit    TransactionType = "BANK_DEPOSIT"
	TypeWithdrawal     TransactionType = "WITHDRAWAL"
	TypeTransfer       TransactionType = "TRANSFER"
	TypePayment        TransactionType = "PAYMENT"
	TypeBankTransfer   TransactionType = "BANK_TRANSFER"
	TypeThirdParty     TransactionType = "THIRD_PARTY"
)

// AllTypes lists every transaction type in classification order.
var AllTypes = []TransactionType{
	TypeMoneyReceived,
	TypeCashPower,
	TypeAirtime,
	TypeBundlePurchase,
	TypeBankDeposit,
	TypeWithdrawal,
	TypeTransfer,
	TypePayment,
	TypeBankTransfer,
	TypeThirdParty,
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AllowsZeroAmount reports whether records of this type are kept even when
// no amount could be extracted.
func (t TransactionType) AllowsZeroAmount() bool {
	return t == TypeAirtime || t == TypeBundlePurchase
}

// TransactionRecord is the structured result of parsing one message.
// Optional fields are nil when the corresponding extractor found nothing.
type TransactionRecord struct {
	TransactionID   *string
	TransactionDate *time.Time
	TransactionType TransactionType
	Amount          decimal.Decimal // zero when no amount was found
	Fee             decimal.Decimal // zero when no fee was found
	Sender          *string
	Recipient       *string
	PhoneNumber     *string
	Balance         decimal.Decimal // zero when no balance was found
	Message         string          // message body, verbatim
}

// ImportMode controls what happens to existing rows when a batch is imported.
type ImportMode string

const (
	// ImportModeReplace clears the destination before inserting the batch.
	ImportModeReplace ImportMode = "replace"
	// ImportModeAppend keeps existing rows and skips duplicates.
	ImportModeAppend ImportMode = "append"
)

// Valid reports whether m is a known import mode.
func (m ImportMode) Valid() bool {
	return m == ImportModeReplace || m == ImportModeAppend
}
