package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCategoriesRequestAndParse(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/categories" {
			t.Errorf("path = %s", r.URL.Path)
		}
		query = r.URL.Query()
		w.Header().Set("X-RateLimit-Limit", "30")
		w.Header().Set("X-RateLimit-Remaining", "29")
		w.Header().Set("X-RateLimit-Reset", "10")
		w.Write([]byte(`{"results":[{"id":1,"name":"Arts & Culture"},{"id":34,"name":"Tech"}]}`))
	}))
	defer srv.Close()

	a, err := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL, Key: "k123"})
	if err != nil {
		t.Fatal(err)
	}
	cats, meta, err := a.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 || cats[1].ID != 34 || cats[1].Name != "Tech" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
	if query.Get("key") != "k123" || query.Get("sign") != "true" || query.Get("page") != "200" {
		t.Fatalf("unexpected query: %v", query)
	}
	if meta.RateLimit.Limit != 30 || meta.RateLimit.Remaining != 29 || meta.RateLimit.Reset != 10 {
		t.Fatalf("rate limit = %+v", meta.RateLimit)
	}
}

func TestOpenEventsQueryParameters(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/open_events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		query = r.URL.Query()
		w.Write([]byte(`{"meta":{"count":0,"total_count":0},"results":[]}`))
	}))
	defer srv.Close()

	a, err := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL, Key: "k123"})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = a.OpenEvents(context.Background(), OpenEventsParams{
		Lat:         "32.955294",
		Lon:         "-117.100140",
		RadiusMiles: 30,
		Status:      "upcoming",
		TimeWindow:  ",1m",
		CategoryID:  34,
		PageSize:    200,
		Offset:      3,
	})
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}

	want := map[string]string{
		"lat":            "32.955294",
		"lon":            "-117.100140",
		"radius":         "30",
		"status":         "upcoming",
		"time":           ",1m",
		"category":       "34",
		"page":           "200",
		"offset":         "3",
		"key":            "k123",
		"sign":           "false",
		"limited_events": "true",
		"text_format":    "plain",
		"only":           onlyFields,
	}
	for k, v := range want {
		if got := query.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
}

func TestOpenEventsParsesEnvelopeAndVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"meta": {"count": 2, "total_count": 7},
			"results": [
				{
					"id": "ev1", "name": "With venue", "time": 1481653800000,
					"status": "past", "waitlist_count": 1, "yes_rsvp_count": 9,
					"venue": {"lat": 32.7157, "lon": -117.1611},
					"group": {"id": 5, "name": "G", "created": 1473552000000,
					          "group_lat": 32.95, "group_lon": -117.1}
				},
				{
					"id": "ev2", "name": "No venue", "time": 1481653800000,
					"yes_rsvp_count": 4,
					"group": {"id": 5, "name": "G", "created": 1473552000000,
					          "group_lat": 32.95, "group_lon": -117.1}
				}
			]
		}`))
	}))
	defer srv.Close()

	a, err := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	page, _, err := a.OpenEvents(context.Background(), OpenEventsParams{Status: "past"})
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}
	if page.Meta.Count != 2 || page.Meta.TotalCount != 7 {
		t.Fatalf("meta = %+v", page.Meta)
	}
	if page.Results[0].Venue == nil || page.Results[0].Venue.Lat != 32.7157 {
		t.Fatalf("venue missing on first event: %+v", page.Results[0].Venue)
	}
	if page.Results[1].Venue != nil {
		t.Fatal("second event should have no venue")
	}
	if page.Results[1].Status != "" {
		t.Fatalf("omitted status should decode empty, got %q", page.Results[1].Status)
	}
}

func TestErrorDetailFromJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"details":"Invalid API key","code":"auth_fail"}`))
	}))
	defer srv.Close()

	a, _ := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL})
	_, meta, err := a.OpenEvents(context.Background(), OpenEventsParams{Status: "past"})
	if err == nil {
		t.Fatal("expected error")
	}
	if meta.StatusCode != 401 {
		t.Fatalf("status = %d", meta.StatusCode)
	}
	if meta.Detail != "Invalid API key" {
		t.Fatalf("detail = %q", meta.Detail)
	}
}

func TestErrorDetailFromPlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer srv.Close()

	a, _ := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL})
	_, meta, err := a.OpenEvents(context.Background(), OpenEventsParams{Status: "past"})
	if err == nil {
		t.Fatal("expected error")
	}
	if meta.StatusCode != 500 || meta.Detail != "Internal Server Error" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestMissingRateLimitHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"count":0,"total_count":0},"results":[]}`))
	}))
	defer srv.Close()

	a, _ := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL})
	_, meta, err := a.OpenEvents(context.Background(), OpenEventsParams{Status: "past"})
	if err != nil {
		t.Fatal(err)
	}
	rl := meta.RateLimit
	if rl.Limit != -1 || rl.Remaining != -1 || rl.Reset != -1 {
		t.Fatalf("absent headers should parse as -1, got %+v", rl)
	}
}

func TestMalformedBodySurfacesParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta":{"count":1,`)) // truncated
	}))
	defer srv.Close()

	a, _ := NewMeetupAdapter(MeetupAdapterOptions{BaseURL: srv.URL})
	_, meta, err := a.OpenEvents(context.Background(), OpenEventsParams{Status: "past"})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if meta.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 alongside the parse error", meta.StatusCode)
	}
}
