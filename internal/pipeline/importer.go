package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/events"
	"github.com/dvloznov/momo-tracker/internal/logger"
	"github.com/dvloznov/momo-tracker/internal/metrics"
	"github.com/dvloznov/momo-tracker/internal/parser"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSenderAddress is the sender whose messages carry transactions.
const DefaultSenderAddress = "M-Money"

var (
	// ErrSourceUnreadable is returned when the message container cannot be read or decoded.
	ErrSourceUnreadable = errors.New("message source unreadable")
	// ErrSinkUnavailable is returned when the destination cannot be opened or cleared.
	ErrSinkUnavailable = errors.New("transaction sink unavailable")
)

// ImportRequest identifies one batch.
type ImportRequest struct {
	SourceURI string
	Mode      domain.ImportMode // defaults to replace
}

// ImportResult summarises a finished batch. Persisted is the number callers
// report; the other counters explain where the remaining messages went.
type ImportResult struct {
	BatchID     string `json:"batch_id"`
	Messages    int    `json:"messages"`
	Matched     int    `json:"matched"`
	Dropped     int    `json:"dropped"`
	MissingDate int    `json:"missing_date"`
	Duplicates  int    `json:"duplicates"`
	Failed      int    `json:"failed"`
	Persisted   int    `json:"persisted"`
}

// Importer drives a batch from source to sink.
type Importer struct {
	source        MessageSource
	sink          Sink
	assembler     *parser.Assembler
	senderAddress string
	metrics       *metrics.ImportMetrics
	publisher     events.Publisher
	batchMu       *sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithAssembler overrides the default assembler.
func WithAssembler(a *parser.Assembler) Option {
	return func(i *Importer) { i.assembler = a }
}

// WithSenderAddress overrides which sender's messages are imported.
func WithSenderAddress(addr string) Option {
	return func(i *Importer) {
		if addr != "" {
			i.senderAddress = addr
		}
	}
}

// WithMetrics records batch outcomes in m.
func WithMetrics(m *metrics.ImportMetrics) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithPublisher emits an ImportCompleted event after each successful batch.
func WithPublisher(p events.Publisher) Option {
	return func(i *Importer) {
		if p != nil {
			i.publisher = p
		}
	}
}

// WithBatchLock shares mu between importers writing to the same destination,
// so their batches run one at a time.
func WithBatchLock(mu *sync.Mutex) Option {
	return func(i *Importer) {
		if mu != nil {
			i.batchMu = mu
		}
	}
}

// NewImporter creates an Importer reading from source and writing to sink.
func NewImporter(source MessageSource, sink Sink, opts ...Option) *Importer {
	i := &Importer{
		source:        source,
		sink:          sink,
		assembler:     parser.NewAssembler(nil, nil),
		senderAddress: DefaultSenderAddress,
		publisher:     events.NoopPublisher{},
		batchMu:       &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import runs one batch. Messages are processed one at a time in source
// order. Only an unreadable source or an unavailable sink produces an error;
// per-record failures are counted in the result. The sink session is closed
// on every path. Batches sharing a lock never overlap, so a replace batch is
// always one truncate-then-reload cycle.
func (i *Importer) Import(ctx context.Context, log zerolog.Logger, req ImportRequest) (*ImportResult, error) {
	if req.Mode == "" {
		req.Mode = domain.ImportModeReplace
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("Import: unknown import mode %q", req.Mode)
	}

	i.batchMu.Lock()
	defer i.batchMu.Unlock()

	started := time.Now()
	batchID := uuid.NewString()
	state := &PipelineState{
		Request: req,
		Log:     logger.ForBatch(log, batchID, req.SourceURI, string(req.Mode)),
		Result:  &ImportResult{BatchID: batchID},
	}
	state.Log.Info().Msg("starting import")

	defer func() {
		if state.Session == nil {
			return
		}
		if err := state.Session.Close(); err != nil {
			state.Log.Warn().Err(err).Msg("closing sink session")
			return
		}
		state.Log.Debug().Msg("sink session closed")
	}()

	steps := []PipelineStep{
		&LoadMessagesStep{Source: i.source},
		&OpenSinkStep{Sink: i.sink},
		&ClearStep{},
		&PersistStep{Assembler: i.assembler, SenderAddress: i.senderAddress, Metrics: i.metrics},
	}

	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			i.metrics.BatchFinished(metrics.BatchFailed, time.Since(started))
			state.Log.Error().Err(err).Msg("import aborted")
			return nil, fmt.Errorf("Import: %w", err)
		}
	}

	res := state.Result
	i.metrics.BatchFinished(metrics.BatchSucceeded, time.Since(started))
	state.Log.Info().
		Int("persisted", res.Persisted).
		Int("matched", res.Matched).
		Int("dropped", res.Dropped).
		Int("missing_date", res.MissingDate).
		Int("duplicates", res.Duplicates).
		Int("failed", res.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("import completed")

	i.publish(ctx, state)
	return res, nil
}

func (i *Importer) publish(ctx context.Context, state *PipelineState) {
	res := state.Result
	ev := events.ImportCompleted{
		BatchID:     res.BatchID,
		SourceURI:   state.Request.SourceURI,
		Mode:        string(state.Request.Mode),
		Messages:    res.Messages,
		Matched:     res.Matched,
		Persisted:   res.Persisted,
		Dropped:     res.Dropped,
		MissingDate: res.MissingDate,
		Duplicates:  res.Duplicates,
		Failed:      res.Failed,
		CompletedAt: time.Now().UTC(),
	}
	if err := i.publisher.PublishImportCompleted(context.WithoutCancel(ctx), ev); err != nil {
		state.Log.Warn().Err(err).Msg("failed to publish import event")
	}
}
