// Package pricehistory keeps the per-(vendor, date) price history as a
// whole-snapshot JSON file. The file is the only state shared between
// runs; runs never overlap (external scheduling contract) so a single
// in-memory Store with an explicit load/save boundary is enough.
package pricehistory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	random "github.com/mazen160/go-random"
	"github.com/shopspring/decimal"
)

// Vendor identifies a ticket-selling source. The set is open: any
// vendor named in configuration gets tracked.
type Vendor string

const (
	VendorKlook   Vendor = "KLOOK"
	VendorTripcom Vendor = "TRIPCOM"
)

// Observation is one extracted price for a (vendor, date) key.
// Immutable once created.
type Observation struct {
	Vendor     Vendor          `json:"vendor"`
	Date       string          `json:"date"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
	URL        string          `json:"url,omitempty"`
	// Snippet is the raw text fragment the price was parsed from.
	Snippet string `json:"snippet,omitempty"`
}

// Entry tracks one (vendor, date) key. AllTimeLow never increases
// once set; LastObservation is overwritten on every merge.
type Entry struct {
	Vendor          Vendor       `json:"vendor"`
	Date            string       `json:"date"`
	AllTimeLow      *Observation `json:"all_time_low,omitempty"`
	LastObservation *Observation `json:"last_observation,omitempty"`
}

type storeKey struct {
	vendor Vendor
	date   string
}

// Store holds every entry in insertion order. Not safe for concurrent
// use; runs are sequential by contract.
type Store struct {
	entries []*Entry
	index   map[storeKey]int
}

func NewStore() *Store {
	return &Store{index: map[storeKey]int{}}
}

type snapshotFile struct {
	UpdatedAt time.Time `json:"updated_at"`
	Entries   []*Entry  `json:"entries"`
}

// Load reads the snapshot at path. A missing or unreadable snapshot
// degrades to an empty store: losing history is recoverable, aborting
// the daily run over it is not.
func Load(path string) *Store {
	store := NewStore()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store
	}
	if err != nil {
		slog.Warn("failed to read history snapshot, starting empty", "path", path, "err", err)
		return store
	}

	var snapshot snapshotFile
	err = json.Unmarshal(raw, &snapshot)
	if err != nil {
		slog.Warn("history snapshot is corrupt, starting empty", "path", path, "err", err)
		return store
	}

	for _, entry := range snapshot.Entries {
		if entry == nil {
			continue
		}
		k := storeKey{vendor: entry.Vendor, date: entry.Date}
		if _, exists := store.index[k]; exists {
			slog.Warn("dropping duplicate history entry", "vendor", entry.Vendor, "date", entry.Date)
			continue
		}
		store.index[k] = len(store.entries)
		store.entries = append(store.entries, entry)
	}
	return store
}

// Merge records an observation and reports whether it is a new
// all-time low for its key. The first observation ever seen for a key
// always reports true since there is nothing to compare against.
func (s *Store) Merge(obs Observation) bool {
	k := storeKey{vendor: obs.Vendor, date: obs.Date}

	idx, exists := s.index[k]
	if !exists {
		low := obs
		last := obs
		s.index[k] = len(s.entries)
		s.entries = append(s.entries, &Entry{
			Vendor:          obs.Vendor,
			Date:            obs.Date,
			AllTimeLow:      &low,
			LastObservation: &last,
		})
		return true
	}

	entry := s.entries[idx]
	last := obs
	entry.LastObservation = &last

	if entry.AllTimeLow == nil || obs.Price.LessThan(entry.AllTimeLow.Price) {
		low := obs
		entry.AllTimeLow = &low
		return true
	}
	return false
}

// Lookup returns the entry for a key, if one exists.
func (s *Store) Lookup(vendor Vendor, date string) (Entry, bool) {
	idx, exists := s.index[storeKey{vendor: vendor, date: date}]
	if !exists {
		return Entry{}, false
	}
	return *s.entries[idx], true
}

// Entries returns every entry in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	for i, entry := range s.entries {
		out[i] = *entry
	}
	return out
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Save writes the whole snapshot through a temp file in the same
// directory followed by a rename, so a crash mid-write can never leave
// a half-written snapshot behind.
func (s *Store) Save(path string) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	raw, err := json.MarshalIndent(snapshotFile{
		UpdatedAt: time.Now().UTC(),
		Entries:   s.entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history snapshot: %w", err)
	}

	suffix, err := random.String(8)
	if err != nil {
		return fmt.Errorf("generate temp suffix: %w", err)
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, suffix)

	err = os.WriteFile(tmp, raw, 0644)
	if err != nil {
		return fmt.Errorf("write history snapshot: %w", err)
	}
	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace history snapshot: %w", err)
	}
	return nil
}
