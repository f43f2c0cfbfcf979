// Package rotation persists the metro rotation state: an ordered metro
// list plus a cursor, one JSON file. Each run consumes the metro at the
// cursor and advances it immediately — before the rest of the run
// executes — so coverage keeps moving even when a run fails; the skipped
// metro comes back around next cycle.
package rotation

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the persisted rotation: metros in visit order plus the
// cursor of the next metro to run.
type State struct {
	Metros    []string  `json:"metros"`
	Cursor    int       `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Load reads the rotation file. A missing file is an error: the
// rotation must be seeded once (prospector metros import) before
// unattended runs can pick metros.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("rotation: state file %s missing; seed it with `prospector metros import`", path)
		}
		return nil, eris.Wrapf(err, "rotation: read %s", path)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "rotation: parse %s", path)
	}
	if len(s.Metros) == 0 {
		return nil, eris.Errorf("rotation: %s has no metros", path)
	}
	if s.Cursor < 0 || s.Cursor >= len(s.Metros) {
		// Hand-edited or shrunk list; wrap rather than fail.
		s.Cursor = ((s.Cursor % len(s.Metros)) + len(s.Metros)) % len(s.Metros)
	}
	return &s, nil
}

// Save atomically writes the rotation file.
func Save(path string, s *State) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "rotation: marshal state")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "rotation: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "rotation: replace %s", path)
	}
	return nil
}

// Current returns the metro at the cursor without advancing.
func (s *State) Current() string {
	return s.Metros[s.Cursor]
}

// Advance moves the cursor one step, wrapping at the end of the list,
// and returns the metro that was consumed.
func (s *State) Advance() string {
	metro := s.Metros[s.Cursor]
	s.Cursor = (s.Cursor + 1) % len(s.Metros)
	return metro
}

// Consume performs the run-start rotation step as one read-modify-write:
// load, take the cursor's metro, advance, persist. The advance commits
// here regardless of whether the caller's run later succeeds.
func Consume(path string) (string, error) {
	s, err := Load(path)
	if err != nil {
		return "", err
	}

	metro := s.Advance()
	if err := Save(path, s); err != nil {
		return "", err
	}

	zap.L().Info("rotation: metro consumed",
		zap.String("metro", metro),
		zap.Int("next_cursor", s.Cursor),
	)
	return metro, nil
}

// Reseed replaces the metro list, deduplicating case-insensitively and
// preserving first-seen order. When the metro currently at the cursor
// survives the reload, the cursor follows it; otherwise it resets to 0.
func Reseed(path string, metros []string) (*State, error) {
	var cleaned []string
	seen := make(map[string]struct{})
	for _, m := range metros {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		key := strings.ToLower(m)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, m)
	}
	if len(cleaned) == 0 {
		return nil, eris.New("rotation: reseed with no metros")
	}

	next := &State{Metros: cleaned}
	if prev, err := Load(path); err == nil {
		current := strings.ToLower(prev.Current())
		for i, m := range cleaned {
			if strings.ToLower(m) == current {
				next.Cursor = i
				break
			}
		}
	}

	if err := Save(path, next); err != nil {
		return nil, err
	}
	zap.L().Info("rotation: reseeded",
		zap.Int("metros", len(cleaned)),
		zap.Int("cursor", next.Cursor),
	)
	return next, nil
}
