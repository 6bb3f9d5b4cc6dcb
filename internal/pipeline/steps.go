package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/metrics"
	"github.com/dvloznov/momo-tracker/internal/parser"
	"github.com/rs/zerolog"
)

// progressEvery controls how often a progress line is logged while persisting.
const progressEvery = 100

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request  ImportRequest
	Log      zerolog.Logger
	Messages []domain.RawMessage
	Session  Session
	Result   *ImportResult
}

// Step 1: LoadMessagesStep reads and decodes the source container.
type LoadMessagesStep struct {
	Source MessageSource
}

func (s *LoadMessagesStep) Execute(ctx context.Context, state *PipelineState) error {
	messages, err := s.Source.Open(ctx, state.Request.SourceURI)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	state.Messages = messages
	state.Result.Messages = len(messages)
	state.Log.Info().Int("messages", len(messages)).Msg("loaded messages from source")
	return nil
}

// Step 2: OpenSinkStep acquires the persistence session for the batch.
type OpenSinkStep struct {
	Sink Sink
}

func (s *OpenSinkStep) Execute(ctx context.Context, state *PipelineState) error {
	session, err := s.Sink.Open(ctx, state.Request.Mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	state.Session = session
	return nil
}

// Step 3: ClearStep empties the destination in replace mode.
type ClearStep struct{}

func (s *ClearStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Request.Mode != domain.ImportModeReplace {
		return nil
	}
	if err := state.Session.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clearing existing transactions: %w", ErrSinkUnavailable, err)
	}
	state.Log.Info().Msg("cleared existing transaction data")
	return nil
}

// Step 4: PersistStep assembles and stores every provider message in order.
// A failure on one record is logged and counted; it never stops the batch.
type PersistStep struct {
	Assembler     *parser.Assembler
	SenderAddress string
	Metrics       *metrics.ImportMetrics
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	// A started batch runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	res := state.Result
	log := state.Log

	for _, msg := range state.Messages {
		if msg.SenderAddress != s.SenderAddress {
			continue
		}
		res.Matched++

		rec, ok := s.Assembler.Assemble(log, msg.Body)
		if !ok {
			res.Dropped++
			s.Metrics.RecordOutcome(metrics.OutcomeDropped)
			continue
		}
		if rec.TransactionDate == nil {
			res.MissingDate++
			s.Metrics.RecordOutcome(metrics.OutcomeMissingDate)
			log.Warn().Str("preview", parser.Preview(msg.Body)).Msg("skipping transaction due to missing date")
			continue
		}

		inserted, err := state.Session.Insert(ctx, rec)
		if err != nil {
			res.Failed++
			s.Metrics.RecordOutcome(metrics.OutcomeFailed)
			logRecord(log.Error().Err(err), rec).Msg("error inserting transaction, rolled back")
			continue
		}
		if !inserted {
			res.Duplicates++
			s.Metrics.RecordOutcome(metrics.OutcomeDuplicate)
			logRecord(log.Debug(), rec).Msg("transaction already stored, skipped")
			continue
		}

		res.Persisted++
		s.Metrics.RecordOutcome(metrics.OutcomePersisted)
		if res.Persisted%progressEvery == 0 {
			log.Info().Int("persisted", res.Persisted).Msg("import progress")
		}
	}

	s.Metrics.MessagesRead(res.Matched, res.Messages-res.Matched)
	return nil
}

func logRecord(e *zerolog.Event, rec *domain.TransactionRecord) *zerolog.Event {
	e = e.Str("transaction_type", string(rec.TransactionType)).
		Str("amount", rec.Amount.StringFixed(2)).
		Str("fee", rec.Fee.StringFixed(2)).
		Str("balance", rec.Balance.StringFixed(2)).
		Str("preview", parser.Preview(rec.Message))
	if rec.TransactionID != nil {
		e = e.Str("transaction_id", *rec.TransactionID)
	}
	if rec.TransactionDate != nil {
		e = e.Time("transaction_date", *rec.TransactionDate)
	}
	if rec.Sender != nil {
		e = e.Str("sender", *rec.Sender)
	}
	if rec.Recipient != nil {
		e = e.Str("recipient", *rec.Recipient)
	}
	if rec.PhoneNumber != nil {
		e = e.Str("phone_number", *rec.PhoneNumber)
	}
	return e
}
