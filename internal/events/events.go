// Package events publishes import lifecycle notifications.
package events

import (
	"context"
	"time"
)

// RoutingKeyImportCompleted is the routing key used for ImportCompleted.
const RoutingKeyImportCompleted = "import.completed"

// ImportCompleted is emitted after a batch finishes without a fatal error.
type ImportCompleted struct {
	BatchID     string    `json:"batch_id"`
	SourceURI   string    `json:"source_uri"`
	Mode        string    `json:"mode"`
	Messages    int       `json:"messages"`
	Matched     int       `json:"matched"`
	Persisted   int       `json:"persisted"`
	Dropped     int       `json:"dropped"`
	MissingDate int       `json:"missing_date"`
	Duplicates  int       `json:"duplicates"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher sends import events to downstream consumers.
type Publisher interface {
	PublishImportCompleted(ctx context.Context, ev ImportCompleted) error
	Close()
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

// PublishImportCompleted implements Publisher.
func (NoopPublisher) PublishImportCompleted(context.Context, ImportCompleted) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() {}
