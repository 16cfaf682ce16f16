package timeline

import (
	"sync"
	"time"

	"daybook/internal/domain"
)

// dayRetention bounds how long a cached day may be served before a fresh
// fetch is forced. Expiry is checked lazily on access, never by timer.
const dayRetention = 7 * 24 * time.Hour

type modeData struct {
	text     string
	segments []domain.Segment
}

type dayEntry struct {
	modes     map[domain.TranscriptMode]modeData
	fetchedAt time.Time
}

// DayCache holds one entry per calendar date. Each mode's text and segments
// are stored independently so refreshing one mode never clobbers the other
// mode's previously fetched content for the same day.
type DayCache struct {
	mu      sync.Mutex
	entries map[string]*dayEntry
}

func NewDayCache() *DayCache {
	return &DayCache{entries: make(map[string]*dayEntry)}
}

// Get returns the cached text and segments for date in the given mode.
// Expired entries are evicted on access and reported as misses, as are
// entries that never fetched the requested mode.
func (c *DayCache) Get(date string, mode domain.TranscriptMode, now time.Time) (string, []domain.Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[date]
	if !ok {
		return "", nil, false
	}
	if now.Sub(entry.fetchedAt) > dayRetention {
		delete(c.entries, date)
		return "", nil, false
	}
	data, ok := entry.modes[mode]
	if !ok {
		return "", nil, false
	}
	return data.text, append([]domain.Segment(nil), data.segments...), true
}

// Put stores a fresh fetch for one mode of date, preserving whatever the
// other mode already holds.
func (c *DayCache) Put(date string, mode domain.TranscriptMode, text string, segments []domain.Segment, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[date]
	if !ok {
		entry = &dayEntry{modes: make(map[domain.TranscriptMode]modeData)}
		c.entries[date] = entry
	}
	entry.modes[mode] = modeData{
		text:     text,
		segments: append([]domain.Segment(nil), segments...),
	}
	entry.fetchedAt = now
}

// Invalidate drops a single day so the next load re-fetches it.
func (c *DayCache) Invalidate(date string) {
	c.mu.Lock()
	delete(c.entries, date)
	c.mu.Unlock()
}

type extractionKey struct {
	recordingID int64
	mode        domain.TranscriptMode
}

// ExtractionCache keeps two independent per-recording extraction stores: one
// keyed by the displayed mode (inline candidate highlighting) and one always
// in optimized mode (the link-to-todo flow operates on optimized text no
// matter which tab is active). Collapsing them would change which candidates
// the link flow sees.
type ExtractionCache struct {
	mu        sync.Mutex
	byMode    map[extractionKey]domain.Extraction
	optimized map[int64]domain.Extraction
}

func NewExtractionCache() *ExtractionCache {
	return &ExtractionCache{
		byMode:    make(map[extractionKey]domain.Extraction),
		optimized: make(map[int64]domain.Extraction),
	}
}

func (c *ExtractionCache) Get(recordingID int64, mode domain.TranscriptMode) (domain.Extraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ex, ok := c.byMode[extractionKey{recordingID: recordingID, mode: mode}]
	return ex, ok
}

func (c *ExtractionCache) Put(recordingID int64, mode domain.TranscriptMode, ex domain.Extraction) {
	c.mu.Lock()
	c.byMode[extractionKey{recordingID: recordingID, mode: mode}] = ex
	if mode == domain.ModeOptimized {
		c.optimized[recordingID] = ex
	}
	c.mu.Unlock()
}

func (c *ExtractionCache) GetOptimized(recordingID int64) (domain.Extraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ex, ok := c.optimized[recordingID]
	return ex, ok
}

func (c *ExtractionCache) PutOptimized(recordingID int64, ex domain.Extraction) {
	c.mu.Lock()
	c.optimized[recordingID] = ex
	c.mu.Unlock()
}

// Drop forgets everything cached for one recording, in both stores.
func (c *ExtractionCache) Drop(recordingID int64) {
	c.mu.Lock()
	for key := range c.byMode {
		if key.recordingID == recordingID {
			delete(c.byMode, key)
		}
	}
	delete(c.optimized, recordingID)
	c.mu.Unlock()
}
