package adapters

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// MockAdapter produces synthetic categories and events for demos and unit
// tests. It is deterministic for a given seed and makes no network calls.
// Pagination is consistent: every (category, status) pair has a fixed total
// and pages honour the requested offset and page size.
type MockAdapter struct {
	seed int64
}

type MockAdapterOptions struct {
	Seed int64 // optional; 0 uses current time
}

func NewMockAdapter(opts MockAdapterOptions) *MockAdapter {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockAdapter{seed: seed}
}

var mockCategories = []Category{
	{ID: 1, Name: "Arts & Culture"},
	{ID: 2, Name: "Career & Business"},
	{ID: 3, Name: "Outdoors & Adventure"},
	{ID: 4, Name: "Tech"},
}

func (m *MockAdapter) Categories(ctx context.Context) ([]Category, FetchMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, FetchMeta{}, err
	}
	out := make([]Category, len(mockCategories))
	copy(out, mockCategories)
	return out, mockMeta(), nil
}

func (m *MockAdapter) OpenEvents(ctx context.Context, params OpenEventsParams) (EventsPage, FetchMeta, error) {
	if err := ctx.Err(); err != nil {
		return EventsPage{}, FetchMeta{}, err
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	// Deterministic total per (category, status).
	h := fnv64(strconv.FormatInt(params.CategoryID, 10) + "|" + params.Status)
	r := rand.New(rand.NewSource(int64(h) ^ m.seed))
	total := 5 + int(h%uint64(3*pageSize))

	start := params.Offset * pageSize
	n := total - start
	if n < 0 {
		n = 0
	}
	if n > pageSize {
		n = pageSize
	}

	now := time.Now().UTC()
	results := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := start + i
		ev := Event{
			ID:            fmt.Sprintf("mock%d%06d", params.CategoryID, idx),
			Name:          fmt.Sprintf("Synthetic event %d", idx),
			Time:          now.Add(time.Duration(idx-total/2) * 24 * time.Hour).UnixMilli(),
			Status:        params.Status,
			WaitlistCount: int(r.Int31n(5)),
			YesRSVPCount:  3 + int(r.Int31n(40)),
			Group: Group{
				ID:       1000 + params.CategoryID,
				Name:     fmt.Sprintf("Synthetic group %d", params.CategoryID),
				Created:  now.Add(-time.Duration(30+idx%300) * 24 * time.Hour).UnixMilli(),
				GroupLat: 32.955294,
				GroupLon: -117.100140,
			},
		}
		// Roughly half the events carry a public venue.
		if idx%2 == 0 {
			ev.Venue = &Venue{Lat: 32.95 + float64(idx%10)/100, Lon: -117.10 - float64(idx%10)/100}
		}
		results = append(results, ev)
	}

	page := EventsPage{
		Meta:    PageMeta{Count: len(results), TotalCount: total},
		Results: results,
	}
	return page, mockMeta(), nil
}

func mockMeta() FetchMeta {
	return FetchMeta{
		StatusCode: 200,
		RateLimit:  RateLimit{Limit: 30, Remaining: 29, Reset: 10},
	}
}

// fnv64 returns a simple 64-bit hash for deterministic mock data.
func fnv64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

var _ EventsAdapter = (*MockAdapter)(nil)
