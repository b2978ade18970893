// Package presence tracks which users have recently edited each charter.
//
// Updates are last-write-wins, so two people editing the same charter can
// overwrite each other. The tracker makes that visible: the server records
// every committed update and exposes the recent editors of a charter. State
// is in memory only and is rebuilt as updates arrive.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry is one user's recent activity on a charter.
type Entry struct {
	UserID      string    `json:"user_id"`
	FirstEdit   time.Time `json:"first_edit"`
	LastEdit    time.Time `json:"last_edit"`
	LastSection string    `json:"last_section,omitempty"`
	LastVersion int       `json:"last_version"`
	EditCount   int64     `json:"edit_count"`
	IdleSecs    float64   `json:"idle_secs"`
}

// Edit describes one committed update.
type Edit struct {
	CharterID string
	UserID    string
	Section   string // empty when no section was named
	Version   int
}

// ReaperConfig configures the background eviction of idle editors.
type ReaperConfig struct {
	// EvictAfter is how long an editor may be idle before being forgotten.
	// Default: 1 hour.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 1 minute.
	SweepInterval time.Duration
}

// Tracker maintains recent editors per charter.
type Tracker struct {
	mu       sync.RWMutex
	charters map[string]map[string]*editorState
	now      func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type editorState struct {
	firstEdit   time.Time
	lastEdit    time.Time
	lastSection string
	lastVersion int
	editCount   int64
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		charters: make(map[string]map[string]*editorState),
		now:      time.Now,
	}
}

// RecordEdit notes that e.UserID committed an update to e.CharterID.
func (t *Tracker) RecordEdit(e Edit) {
	if e.CharterID == "" || e.UserID == "" {
		return
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	editors, ok := t.charters[e.CharterID]
	if !ok {
		editors = make(map[string]*editorState)
		t.charters[e.CharterID] = editors
	}
	state, ok := editors[e.UserID]
	if !ok {
		state = &editorState{firstEdit: now}
		editors[e.UserID] = state
	}
	state.lastEdit = now
	state.editCount++
	if e.Version > state.lastVersion {
		state.lastVersion = e.Version
	}
	if e.Section != "" {
		state.lastSection = e.Section
	}
}

// Editors returns the users who edited charterID within window, most recent
// first. A zero window returns everyone still tracked.
func (t *Tracker) Editors(charterID string, window time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	editors := t.charters[charterID]
	entries := make([]Entry, 0, len(editors))
	for user, state := range editors {
		idle := now.Sub(state.lastEdit)
		if window > 0 && idle > window {
			continue
		}
		entries = append(entries, Entry{
			UserID:      user,
			FirstEdit:   state.firstEdit,
			LastEdit:    state.lastEdit,
			LastSection: state.lastSection,
			LastVersion: state.lastVersion,
			EditCount:   state.editCount,
			IdleSecs:    idle.Seconds(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastEdit.Equal(entries[j].LastEdit) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].LastEdit.After(entries[j].LastEdit)
	})
	return entries
}

// OtherEditors returns the users other than userID who edited charterID
// within window.
func (t *Tracker) OtherEditors(charterID, userID string, window time.Duration) []string {
	var others []string
	for _, e := range t.Editors(charterID, window) {
		if e.UserID != userID {
			others = append(others, e.UserID)
		}
	}
	return others
}

// StartReaper launches a goroutine that forgets idle editors. Call Stop to
// shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"evict_after", cfg.EvictAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg.EvictAfter)
		}
	}
}

// sweep drops editors idle longer than evictAfter and charters left with
// no editors. It returns the number of editors removed.
func (t *Tracker) sweep(evictAfter time.Duration) int {
	now := t.now()
	removed := 0

	t.mu.Lock()
	defer t.mu.Unlock()
	for charterID, editors := range t.charters {
		for user, state := range editors {
			if now.Sub(state.lastEdit) > evictAfter {
				delete(editors, user)
				removed++
			}
		}
		if len(editors) == 0 {
			delete(t.charters, charterID)
		}
	}
	if removed > 0 {
		slog.Debug("presence: evicted idle editors", "count", removed)
	}
	return removed
}
