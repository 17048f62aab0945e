package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/patrickjmccarty/meetup-data-mining/adapters"
)

// apiError is an unrecoverable API failure. Status becomes the process exit
// code.
type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("error code: %d", e.Status)
	}
	return fmt.Sprintf("error code: %d details: %s", e.Status, e.Detail)
}

// fetcher drives the paginated download for one run. sleep and now are
// injectable so tests can assert backoff and rate-limit waits without real
// time passing.
type fetcher struct {
	cfg     config
	adapter adapters.EventsAdapter
	sink    *csvSink
	metrics *jobMetrics

	sleep func(context.Context, time.Duration)
	now   func() time.Time
}

func newFetcher(cfg config, adapter adapters.EventsAdapter, sink *csvSink, m *jobMetrics) *fetcher {
	return &fetcher{
		cfg:     cfg,
		adapter: adapter,
		sink:    sink,
		metrics: m,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first,
// so a signal delivered mid-backoff or mid-rate-limit-wait stops the run
// promptly.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// fetchCategory pages through all events for one (category, status) pair,
// flattening and writing each event, until the cumulative downloaded count
// reaches the server-reported total.
func (f *fetcher) fetchCategory(ctx context.Context, cat adapters.Category, status string) error {
	offset := 0
	downloaded := 0
	total := 1

	for downloaded < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, meta, err := f.fetchPage(ctx, cat, status, offset)
		if err != nil {
			return err
		}

		offset++
		downloaded += page.Meta.Count
		total = page.Meta.TotalCount

		for _, ev := range page.Results {
			if err := f.sink.WriteRow(flattenEvent(ev, cat.Name, status, f.now())); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
			f.metrics.eventsWritten.Inc()
		}
		if err := f.sink.Flush(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
		f.metrics.pages.Inc()

		rl := meta.RateLimit
		fmt.Printf("category=%q status=%s downloaded=%d total=%d ratelimit=%d remaining=%d reset=%ds\n",
			cat.Name, status, downloaded, total, rl.Limit, rl.Remaining, rl.Reset)

		// Remaining == 0 means the quota for the current window is spent;
		// wait out the published reset plus a safety margin before whatever
		// request comes next, even one for the next category.
		if rl.Remaining == 0 && rl.Reset >= 0 {
			fmt.Fprintf(os.Stderr, "rate limit reached, waiting %d seconds\n", rl.Reset)
			f.metrics.rateLimitWaits.Inc()
			f.sleep(ctx, time.Duration(rl.Reset)*time.Second+f.cfg.resetMargin)
		}
	}
	return nil
}

// fetchPage requests a single page inside a bounded retry loop. A 500 is
// retried after a fixed delay, a malformed body or transport failure is
// retried immediately, any other non-200 status is fatal. Exhausting the
// attempt budget is fatal with the last observed status.
func (f *fetcher) fetchPage(ctx context.Context, cat adapters.Category, status string, offset int) (adapters.EventsPage, adapters.FetchMeta, error) {
	params := adapters.OpenEventsParams{
		Lat:         f.cfg.lat,
		Lon:         f.cfg.lon,
		RadiusMiles: f.cfg.radiusMiles,
		Status:      status,
		TimeWindow:  f.cfg.timeWindow,
		CategoryID:  cat.ID,
		PageSize:    f.cfg.pageSize,
		Offset:      offset,
	}

	var lastMeta adapters.FetchMeta
	for attempt := 1; attempt <= f.cfg.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return adapters.EventsPage{}, lastMeta, err
		}
		page, meta, err := f.adapter.OpenEvents(ctx, params)
		lastMeta = meta
		f.metrics.observeRequest("open_events", meta)
		if err == nil {
			return page, meta, nil
		}
		if ctx.Err() != nil {
			return adapters.EventsPage{}, meta, ctx.Err()
		}

		switch {
		case meta.StatusCode == http.StatusInternalServerError:
			// The server throws intermittent 500s; wait briefly and retry.
			fmt.Fprintf(os.Stderr, "error code: 500 %s\n", meta.Detail)
			f.metrics.retries.Inc()
			f.sleep(ctx, f.cfg.retryDelay)
		case meta.StatusCode == http.StatusOK || meta.StatusCode == 0:
			// Malformed 200 body or transport-level failure.
			fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
			f.metrics.retries.Inc()
		default:
			return adapters.EventsPage{}, meta, &apiError{Status: meta.StatusCode, Detail: meta.Detail}
		}
	}

	fmt.Fprintf(os.Stderr, "retried the request the maximum of %d times, giving up\n", f.cfg.attempts)
	exitStatus := lastMeta.StatusCode
	if exitStatus == 0 || exitStatus == http.StatusOK {
		exitStatus = 1
	}
	return adapters.EventsPage{}, lastMeta, &apiError{Status: exitStatus, Detail: lastMeta.Detail}
}
