package source

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/gcsuploader"
)

// Fetcher downloads the object behind a gs:// URI.
type Fetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// Opener loads message containers from local files or Cloud Storage.
type Opener struct {
	fetcher Fetcher
}

// NewOpener returns an Opener. fetcher may be nil when only local paths are used.
func NewOpener(fetcher Fetcher) *Opener {
	return &Opener{fetcher: fetcher}
}

// Open reads and decodes the container identified by uri.
func (o *Opener) Open(ctx context.Context, uri string) ([]domain.RawMessage, error) {
	data, err := o.read(ctx, uri)
	if err != nil {
		return nil, err
	}

	messages, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("Open: %s: %w", uri, err)
	}
	return messages, nil
}

func (o *Opener) read(ctx context.Context, uri string) ([]byte, error) {
	if gcsuploader.IsGCSURI(uri) {
		if o.fetcher == nil {
			return nil, fmt.Errorf("Open: %s: cloud storage is not configured", uri)
		}
		data, err := o.fetcher.FetchFromGCS(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("Open: reading %s: %w", uri, err)
	}
	return data, nil
}
