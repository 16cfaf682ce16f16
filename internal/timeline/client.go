// Package timeline loads and reconciles the per-day transcript view from the
// backend's persisted recordings, the day cache and the live session buffer.
package timeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"daybook/internal/domain"
)

// Client talks to the backend's persisted-audio HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type recordingsResponse struct {
	Recordings []domain.RecordingRef `json:"recordings"`
}

// ListRecordings returns the day's persisted recordings, oldest first.
func (c *Client) ListRecordings(ctx context.Context, date string) ([]domain.RecordingRef, error) {
	var resp recordingsResponse
	query := url.Values{"date": {date}}
	if err := c.getJSON(ctx, "/api/audio/recordings", query, &resp); err != nil {
		return nil, fmt.Errorf("list recordings for %s: %w", date, err)
	}
	return resp.Recordings, nil
}

type timelineEntry struct {
	ID                int64     `json:"id"`
	StartTime         time.Time `json:"start_time"`
	Duration          float64   `json:"duration"`
	Text              string    `json:"text"`
	SegmentTimestamps []float64 `json:"segment_timestamps"`
}

type timelineResponse struct {
	Timeline []timelineEntry `json:"timeline"`
}

// FetchTimeline returns the day's recordings with their transcript text in
// the requested mode.
func (c *Client) FetchTimeline(ctx context.Context, date string, optimized bool) ([]domain.PersistedRecording, error) {
	var resp timelineResponse
	query := url.Values{
		"date":      {date},
		"optimized": {strconv.FormatBool(optimized)},
	}
	if err := c.getJSON(ctx, "/api/audio/timeline", query, &resp); err != nil {
		return nil, fmt.Errorf("fetch timeline for %s: %w", date, err)
	}

	recs := make([]domain.PersistedRecording, 0, len(resp.Timeline))
	for _, entry := range resp.Timeline {
		recs = append(recs, domain.PersistedRecording{
			ID:                entry.ID,
			StartTime:         entry.StartTime,
			DurationSec:       entry.Duration,
			Text:              entry.Text,
			SegmentTimestamps: entry.SegmentTimestamps,
		})
	}
	return recs, nil
}

// FetchTranscription returns one recording's stored transcript and whatever
// extraction candidates the backend has attached to it.
func (c *Client) FetchTranscription(ctx context.Context, recordingID int64, optimized bool) (domain.Transcription, error) {
	var resp domain.Transcription
	query := url.Values{"optimized": {strconv.FormatBool(optimized)}}
	path := fmt.Sprintf("/api/audio/transcription/%d", recordingID)
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return domain.Transcription{}, fmt.Errorf("fetch transcription %d: %w", recordingID, err)
	}
	resp.RecordingID = recordingID
	return resp, nil
}

type linkRequest struct {
	Links []domain.ExtractionLink `json:"links"`
}

// Link associates extracted candidates with real todos, then re-fetches the
// transcription so the caller sees confirmed server state rather than
// trusting the POST response shape.
func (c *Client) Link(ctx context.Context, recordingID int64, links []domain.ExtractionLink, optimized bool) (domain.Transcription, error) {
	body, err := json.Marshal(linkRequest{Links: links})
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("encode link request: %w", err)
	}

	query := url.Values{"optimized": {strconv.FormatBool(optimized)}}
	path := fmt.Sprintf("/api/audio/transcription/%d/link", recordingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, query), bytes.NewReader(body))
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("build link request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("link candidates on %d: %w", recordingID, err)
	}
	drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Transcription{}, fmt.Errorf("link candidates on %d: backend returned %s", recordingID, resp.Status)
	}

	return c.FetchTranscription(ctx, recordingID, optimized)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
