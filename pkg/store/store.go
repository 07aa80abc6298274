package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// File names of the persisted state layout.
const (
	RulesFile        = "rules.json"
	TrainingFile     = "training-data.json"
	FeedbackFile     = "feedback.json"
	StatsFile        = "learning-stats.json"
	DeepPatternsFile = "deep-patterns.json"
)

// Snapshot is an immutable view of the persisted state. Requests hold one
// snapshot for their whole lifetime.
type Snapshot struct {
	Rules    *Rules
	Training *TrainingData
	Feedback *FeedbackData
}

// Store serves snapshots of the on-disk state and optionally hot-reloads
// them when the files change.
type Store struct {
	dir     string
	current atomic.Pointer[Snapshot]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open reads the state directory. Missing files yield empty bundles rather
// than errors; a deployment may start with rules only.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, done: make(chan struct{})}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the current immutable state view.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Watch starts fsnotify-driven reloads. Reload failures keep the previous
// snapshot.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if !isStateFile(filepath.Base(event.Name)) {
					continue
				}
				snap, err := s.load()
				if err != nil {
					slog.Warn("State reload failed, keeping previous snapshot",
						"file", event.Name, "error", err)
					continue
				}
				s.current.Store(snap)
				slog.Info("State reloaded", "file", filepath.Base(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("State watcher error", "error", err)
			}
		}
	}()

	return nil
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) load() (*Snapshot, error) {
	snap := &Snapshot{
		Rules:    &Rules{SituationalResponses: map[string]string{}},
		Training: &TrainingData{},
		Feedback: &FeedbackData{},
	}

	if err := readJSON(filepath.Join(s.dir, RulesFile), snap.Rules); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, TrainingFile), snap.Training); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(s.dir, FeedbackFile), snap.Feedback); err != nil {
		return nil, err
	}

	return snap, nil
}

func isStateFile(name string) bool {
	switch name {
	case RulesFile, TrainingFile, FeedbackFile:
		return true
	}
	return false
}

func readJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// ReadJSONFile is the generic loader used for auxiliary files such as
// learning-stats.json and deep-patterns.json.
func ReadJSONFile(path string, v interface{}) error {
	return readJSON(path, v)
}
