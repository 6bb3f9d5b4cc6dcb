package parser

import (
	"errors"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// previewLen bounds how much of a message body ends up in a log line.
const previewLen = 100

// Assembler runs every extractor plus the classifier over one message body.
type Assembler struct {
	names      *NameDirectory
	classifier *Classifier
}

// NewAssembler wires a name directory and classifier; nil arguments fall back to defaults.
func NewAssembler(names *NameDirectory, classifier *Classifier) *Assembler {
	if names == nil {
		names = DefaultNameDirectory()
	}
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Assembler{names: names, classifier: classifier}
}

// Assemble builds a candidate record from body. It returns false when the
// record carries no amount and its type is not one that may legitimately
// have none. The returned record may still lack a transaction date.
func (a *Assembler) Assemble(log zerolog.Logger, body string) (*domain.TransactionRecord, bool) {
	amount := ExtractAmount(body)
	typ, rule := a.classifier.classify(body)
	if rule == "" {
		log.Debug().Str("preview", Preview(body)).Msg("no classification rule matched, defaulting to PAYMENT")
	}

	if amount.IsZero() && !typ.AllowsZeroAmount() {
		log.Debug().
			Str("transaction_type", string(typ)).
			Str("preview", Preview(body)).
			Msg("dropping message without amount")
		return nil, false
	}

	date, err := extractDate(body)
	if err != nil {
		if errors.Is(err, errDateUnparseable) {
			log.Error().Err(err).Str("preview", Preview(body)).Msg("failed to parse transaction date")
		} else {
			log.Debug().Str("preview", Preview(body)).Msg("no transaction date in message")
		}
	}

	sender, recipient := a.names.Match(body)
	rec := &domain.TransactionRecord{
		TransactionID:   ExtractTransactionID(body),
		TransactionDate: date,
		TransactionType: typ,
		Amount:          amount,
		Fee:             ExtractFee(body),
		Sender:          sender,
		Recipient:       recipient,
		PhoneNumber:     ExtractPhoneNumber(body),
		Balance:         ExtractBalance(body),
		Message:         body,
	}

	if rec.TransactionID == nil {
		log.Debug().Str("preview", Preview(body)).Msg("no transaction id in message")
	}
	return rec, true
}

// Preview truncates body for logging.
func Preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLen {
		return body
	}
	return string(r[:previewLen]) + "..."
}
