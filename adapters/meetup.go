// Package adapters contains pluggable event-API connectors.
//
// All endpoint-specific logic lives behind the EventsAdapter interface so the
// driver loop can run against the real Meetup API or an offline mock.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Category is one entry from the categories endpoint.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Group carries the sponsoring group's fields projected into each event.
// Created is milliseconds since the epoch. GroupLat/GroupLon are the group's
// general location, used when the event has no public venue.
type Group struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Created  int64   `json:"created"`
	GroupLat float64 `json:"group_lat"`
	GroupLon float64 `json:"group_lon"`
}

// Venue is the event's venue location when it is publicly listed.
type Venue struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Event is one record from the open-events endpoint. Time is milliseconds
// since the epoch. Venue is nil when the venue was absent from the payload.
// Status is empty when the server omitted it, which happens for some
// upcoming events.
type Event struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Time          int64  `json:"time"`
	Status        string `json:"status"`
	WaitlistCount int    `json:"waitlist_count"`
	YesRSVPCount  int    `json:"yes_rsvp_count"`
	Venue         *Venue `json:"venue"`
	Group         Group  `json:"group"`
}

// PageMeta is the pagination envelope: Count events in this page out of
// TotalCount matching the query.
type PageMeta struct {
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// EventsPage is one bounded response from the paginated events endpoint.
type EventsPage struct {
	Meta    PageMeta `json:"meta"`
	Results []Event  `json:"results"`
}

// RateLimit is the server-side quota state parsed from the X-RateLimit-*
// response headers. Fields are -1 when the corresponding header was absent.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     int // seconds until the current window resets
}

// FetchMeta provides request-level telemetry alongside each adapter call.
// StatusCode is 0 on transport-level failures. Detail carries the server's
// error message, when one was provided.
type FetchMeta struct {
	StatusCode int
	Detail     string
	RateLimit  RateLimit
	Latency    time.Duration
}

// OpenEventsParams describes one page request against the open-events
// endpoint. Lat and Lon are passed through verbatim, matching the query the
// operator configured. Offset is the zero-based page index.
type OpenEventsParams struct {
	Lat         string
	Lon         string
	RadiusMiles int
	Status      string
	TimeWindow  string
	CategoryID  int64
	PageSize    int
	Offset      int
}

// EventsAdapter abstracts the event-listing API.
type EventsAdapter interface {
	// Categories returns the full category list.
	Categories(ctx context.Context) ([]Category, FetchMeta, error)

	// OpenEvents returns one page of events for a category and time-status.
	OpenEvents(ctx context.Context, params OpenEventsParams) (EventsPage, FetchMeta, error)
}

// onlyFields is the field projection requested from the events endpoint; it
// keeps response payloads down to exactly what the flattener consumes.
const onlyFields = "group.created,group.name,group.id,group.group_lat,group.group_lon," +
	"venue.lat,venue.lon,waitlist_count,yes_rsvp_count,time,name,id,status"

// MeetupAdapter talks to the Meetup REST API over HTTPS, authenticated via a
// query-string key.
type MeetupAdapter struct {
	baseURL   string
	key       string
	client    *http.Client
	userAgent string
}

type MeetupAdapterOptions struct {
	BaseURL   string // default https://api.meetup.com
	Key       string
	UserAgent string
	Timeout   time.Duration
}

func NewMeetupAdapter(opts MeetupAdapterOptions) (*MeetupAdapter, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = "https://api.meetup.com"
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	to := opts.Timeout
	if to <= 0 {
		to = 20 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "meetup-data-mining/1.0"
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &MeetupAdapter{
		baseURL:   strings.TrimRight(base, "/"),
		key:       strings.TrimSpace(opts.Key),
		client:    &http.Client{Timeout: to, Transport: tr},
		userAgent: ua,
	}, nil
}

func (a *MeetupAdapter) Categories(ctx context.Context) ([]Category, FetchMeta, error) {
	u, err := url.Parse(a.baseURL + "/2/categories")
	if err != nil {
		return nil, FetchMeta{}, err
	}
	q := u.Query()
	q.Set("sign", "true")
	q.Set("page", "200")
	if a.key != "" {
		q.Set("key", a.key)
	}
	u.RawQuery = q.Encode()

	body, meta, err := a.doGET(ctx, u.String())
	if err != nil {
		return nil, meta, err
	}

	var envelope struct {
		Results []Category `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, meta, fmt.Errorf("categories payload parse: %w", err)
	}
	return envelope.Results, meta, nil
}

func (a *MeetupAdapter) OpenEvents(ctx context.Context, params OpenEventsParams) (EventsPage, FetchMeta, error) {
	u, err := url.Parse(a.baseURL + "/2/open_events")
	if err != nil {
		return EventsPage{}, FetchMeta{}, err
	}
	q := u.Query()
	q.Set("sign", "false")
	q.Set("lat", params.Lat)
	q.Set("lon", params.Lon)
	q.Set("radius", strconv.Itoa(params.RadiusMiles))
	q.Set("limited_events", "true")
	q.Set("text_format", "plain")
	if params.TimeWindow != "" {
		q.Set("time", params.TimeWindow)
	}
	q.Set("status", params.Status)
	q.Set("page", strconv.Itoa(params.PageSize))
	q.Set("only", onlyFields)
	q.Set("category", strconv.FormatInt(params.CategoryID, 10))
	q.Set("offset", strconv.Itoa(params.Offset))
	if a.key != "" {
		q.Set("key", a.key)
	}
	u.RawQuery = q.Encode()

	body, meta, err := a.doGET(ctx, u.String())
	if err != nil {
		return EventsPage{}, meta, err
	}

	var page EventsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return EventsPage{}, meta, fmt.Errorf("events payload parse: %w", err)
	}
	return page, meta, nil
}

func (a *MeetupAdapter) doGET(ctx context.Context, u string) ([]byte, FetchMeta, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, FetchMeta{Latency: time.Since(start)}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, FetchMeta{Latency: time.Since(start)}, err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	meta := FetchMeta{
		StatusCode: resp.StatusCode,
		RateLimit:  parseRateLimit(resp.Header),
		Latency:    time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		meta.Detail = errorDetail(b)
		return nil, meta, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return b, meta, nil
}

// errorDetail extracts the server's "details" field from an error body. 500
// responses are plain text rather than JSON, so fall back to the raw body,
// trimmed and capped.
func errorDetail(body []byte) string {
	var e struct {
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Details != "" {
		return e.Details
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

func parseRateLimit(h http.Header) RateLimit {
	return RateLimit{
		Limit:     headerInt(h, "X-RateLimit-Limit"),
		Remaining: headerInt(h, "X-RateLimit-Remaining"),
		Reset:     headerInt(h, "X-RateLimit-Reset"),
	}
}

func headerInt(h http.Header, key string) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

var _ EventsAdapter = (*MeetupAdapter)(nil)
