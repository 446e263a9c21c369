package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

const (
	currentCardFile = "current_model_card.json"
	historyFile     = "history.json"
)

var (
	ErrNoModels        = errors.New("no models have been registered yet")
	ErrVersionNotFound = errors.New("model version not found")
	ErrNoActiveModel   = errors.New("no active model in registry")
)

// Store is a filesystem-backed model registry. All writes go through a
// temp-file rename so a failed run can never leave a half-written registry.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// History returns all registered cards, oldest first.
func (s *Store) History() ([]ModelCard, error) {
	path := filepath.Join(s.dir, historyFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var hist []ModelCard
	if err := sonic.Unmarshal(data, &hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return hist, nil
}

// CurrentCard returns the active model card, or ErrNoActiveModel.
func (s *Store) CurrentCard() (*ModelCard, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentCardFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoActiveModel
		}
		return nil, fmt.Errorf("read current card: %w", err)
	}
	var card ModelCard
	if err := sonic.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode current card: %w", err)
	}
	return &card, nil
}

// SaveNewVersion appends the card to the history with the next version
// number, marks it active, and re-points the current card. It is called only
// after a run has fully succeeded.
func (s *Store) SaveNewVersion(card ModelCard) (*ModelCard, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	hist, err := s.History()
	if err != nil {
		return nil, err
	}
	for i := range hist {
		hist[i].IsActive = false
	}
	card.Version = len(hist) + 1
	card.IsActive = true
	card.ActivatedAt = time.Now().UTC()
	hist = append(hist, card)

	if err := s.writeBoth(hist, &card); err != nil {
		return nil, err
	}
	log.Info().Int("version", card.Version).Str("model_id", card.ModelID).Msg("registered new model version")
	return &card, nil
}

// SetActiveVersion flips which historical version is active. No artifacts
// are touched and nothing is retrained.
func (s *Store) SetActiveVersion(version int) (*ModelCard, error) {
	hist, err := s.History()
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, ErrNoModels
	}
	var target *ModelCard
	now := time.Now().UTC()
	for i := range hist {
		if hist[i].Version == version {
			hist[i].IsActive = true
			hist[i].ActivatedAt = now
			target = &hist[i]
		} else {
			hist[i].IsActive = false
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	if err := s.writeBoth(hist, target); err != nil {
		return nil, err
	}
	log.Info().Int("version", version).Msg("activated model version")
	return target, nil
}

func (s *Store) writeBoth(hist []ModelCard, current *ModelCard) error {
	histData, err := sonic.MarshalIndent(hist, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	cardData, err := sonic.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode current card: %w", err)
	}
	if err := atomicWrite(filepath.Join(s.dir, historyFile), histData); err != nil {
		return err
	}
	return atomicWrite(filepath.Join(s.dir, currentCardFile), cardData)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
