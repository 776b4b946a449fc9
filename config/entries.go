package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/evcc-io/evcc/util"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown entries
	ErrNotFound = errors.New("entry not found")
	// ErrAmbiguous is returned when a title matches several entries
	ErrAmbiguous = errors.New("ambiguous entry")
)

// Options are the per entry options
type Options struct {
	CreateUtilityMeters       bool `json:"create_utility_meters" mapstructure:"create_utility_meters"`
	CreateCurrentMonthSensor  bool `json:"create_current_month_sensor" mapstructure:"create_current_month_sensor"`
	CreatePreviousMonthSensor bool `json:"create_previous_month_sensor" mapstructure:"create_previous_month_sensor"`
}

func DefaultOptions() Options {
	return Options{
		CreateCurrentMonthSensor:  true,
		CreatePreviousMonthSensor: true,
	}
}

// Merge returns o updated by the keys of other
func (o Options) Merge(other map[string]any) (Options, error) {
	res := o
	if err := util.DecodeOther(other, &res); err != nil {
		return o, err
	}
	return res, nil
}

// Entry is a configured account
type Entry struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Token   string  `json:"token"`
	Options Options `json:"options"`
}

// Store persists entries as a json file
type Store struct {
	mu   sync.Mutex
	file string
}

func NewStore(file string) *Store {
	return &Store{file: file}
}

func (s *Store) read() ([]Entry, error) {
	b, err := os.ReadFile(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("invalid entries file %s: %w", s.file, err)
	}

	var migrated bool
	res := make([]Entry, 0, len(raw))
	for _, r := range raw {
		// options missing from older files keep their defaults
		e := Entry{Options: DefaultOptions()}
		if err := json.Unmarshal(r, &e); err != nil {
			return nil, fmt.Errorf("invalid entry in %s: %w", s.file, err)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
			migrated = true
		}
		res = append(res, e)
	}

	// ids must be stable across reads
	if migrated {
		if err := s.write(res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// find returns the index of the entry with id key or, failing that, the only
// entry titled key
func find(entries []Entry, key string) (int, error) {
	match := -1
	for i, e := range entries {
		if e.ID == key {
			return i, nil
		}
		if e.Title == key {
			if match >= 0 {
				return -1, fmt.Errorf("%w: %s, use the entry id", ErrAmbiguous, key)
			}
			match = i
		}
	}

	if match < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return match, nil
}

func (s *Store) write(entries []Entry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.file, b, 0o600)
}

// Entries returns all configured entries
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Tokens returns the tokens of all configured entries
func (s *Store) Tokens() ([]string, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Token)
	}
	return res, nil
}

// Add appends an entry and returns it with its id
func (s *Store) Add(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return e, err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	return e, s.write(append(entries, e))
}

// Remove deletes the entry with id or title key
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	i, err := find(entries, key)
	if err != nil {
		return err
	}

	return s.write(append(entries[:i], entries[i+1:]...))
}

// UpdateOptions merges other into the options of the entry with id or title key
func (s *Store) UpdateOptions(key string, other map[string]any) (Options, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return Options{}, err
	}

	i, err := find(entries, key)
	if err != nil {
		return Options{}, err
	}

	opts, err := entries[i].Options.Merge(other)
	if err != nil {
		return entries[i].Options, err
	}

	entries[i].Options = opts
	return opts, s.write(entries)
}
