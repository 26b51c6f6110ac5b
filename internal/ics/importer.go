package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "storecal/internal/log"
	"storecal/internal/metrics"
	"storecal/internal/model"
)

// Sink stores imported events. calendar.Service satisfies it.
type Sink interface {
	ImportEvents(ctx context.Context, events []model.Event) (int, error)
}

type Importer struct {
	fetcher *Fetcher
	sink    Sink
	loc     *time.Location
	metrics *metrics.Metrics
}

func NewImporter(f *Fetcher, sink Sink, loc *time.Location, m *metrics.Metrics) *Importer {
	if loc == nil {
		loc = time.Local
	}
	return &Importer{fetcher: f, sink: sink, loc: loc, metrics: m}
}

// Run imports every feed. A failing feed does not stop the others; all
// failures are returned joined.
func (im *Importer) Run(ctx context.Context, feeds []Feed) error {
	var errs []error
	for _, feed := range feeds {
		n, err := im.importFeed(ctx, feed)
		im.metrics.ObserveFeedImport(feed.ID, err)
		if err != nil {
			appLog.Error("ics: feed import failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
			errs = append(errs, err)
			continue
		}
		appLog.Info("ics: feed imported", "feed", feed.ID, "stored", n)
	}
	return errors.Join(errs...)
}

func (im *Importer) importFeed(ctx context.Context, feed Feed) (int, error) {
	if feed.BusinessID == "" {
		return 0, fmt.Errorf("feed %s: business_id is required", feed.ID)
	}
	p, err := im.fetcher.Fetch(ctx, feed)
	if err != nil {
		return 0, err
	}
	events, err := Parse(feed, p.Body, im.loc)
	if err != nil {
		return 0, err
	}
	return im.sink.ImportEvents(ctx, events)
}
