// Meetup open-events downloader
// -----------------------------
//
// Queries the Meetup API for events within a radius around a configured
// latitude/longitude and writes one flattened CSV row per event. For each
// category the events endpoint is queried once per time-status ("past",
// "upcoming") because the server returns zero results when both are combined,
// despite what the API documentation says.
//
// Endpoint quirks this job works around:
//   - /2/open_events only returns events with 3 or more RSVPs.
//   - Past events are limited server-side to the last month; we cap upcoming
//     events to one month out with the time window parameter.
//   - Intermittent 500s with non-JSON bodies; retried with a fixed delay.
//   - The rate limit is signalled via X-RateLimit-* headers; when the window
//     is spent the run sleeps until it resets.
//
// Configuration is via flags with env-var defaults, optionally seeded from a
// YAML file (-config / CONFIG).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/patrickjmccarty/meetup-data-mining/adapters"
)

// statuses are queried one at a time, past first, matching the order rows
// historically appeared in the output file.
var statuses = []string{"past", "upcoming"}

func buildAdapter(cfg config) (adapters.EventsAdapter, error) {
	switch cfg.adapter {
	case "meetup", "":
		return adapters.NewMeetupAdapter(adapters.MeetupAdapterOptions{
			BaseURL:   cfg.baseURL,
			Key:       cfg.apiKey,
			UserAgent: cfg.userAgent,
			Timeout:   cfg.httpTimeout,
		})
	case "mock":
		return adapters.NewMockAdapter(adapters.MockAdapterOptions{}), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.adapter)
	}
}

// run downloads everything: category list first, then the paginated events
// per category and time-status, flattened into cfg.out.
func run(ctx context.Context, cfg config, adapter adapters.EventsAdapter, m *jobMetrics) error {
	cats, meta, err := adapter.Categories(ctx)
	m.observeRequest("categories", meta)
	if err != nil {
		if meta.StatusCode != 0 {
			return &apiError{Status: meta.StatusCode, Detail: meta.Detail}
		}
		return fmt.Errorf("categories: %w", err)
	}

	sink, err := newCSVSink(cfg.out)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer sink.Close()

	f := newFetcher(cfg, adapter, sink, m)
	for _, cat := range cats {
		for _, status := range statuses {
			if err := f.fetchCategory(ctx, cat, status); err != nil {
				return err
			}
		}
	}
	return sink.Close()
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	adapter, err := buildAdapter(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	m := newJobMetrics()
	m.serve(cfg.metricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, adapter, m); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ae *apiError
		if errors.As(err, &ae) {
			os.Exit(ae.Status)
		}
		os.Exit(1)
	}
	fmt.Println("DONE!")
}
