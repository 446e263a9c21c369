package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"github.com/gridwatch/fused/internal/features"
	"github.com/gridwatch/fused/internal/reduce"
)

// SaveArtifact persists a fitted artifact as gzip-compressed JSON at a path
// relative to the registry dir.
func (s *Store) SaveArtifact(relPath string, v any) error {
	full := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", relPath, err)
	}
	tmp := full + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create artifact %s: %w", relPath, err)
	}
	zw := gzip.NewWriter(fh)
	if _, err := zw.Write(data); err != nil {
		fh.Close()
		return fmt.Errorf("write artifact %s: %w", relPath, err)
	}
	if err := zw.Close(); err != nil {
		fh.Close()
		return fmt.Errorf("flush artifact %s: %w", relPath, err)
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

// LoadArtifact reads a gzip-compressed JSON artifact into out.
func (s *Store) LoadArtifact(relPath string, out any) error {
	fh, err := os.Open(filepath.Join(s.dir, relPath))
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", relPath, err)
	}
	defer fh.Close()
	zr, err := gzip.NewReader(fh)
	if err != nil {
		return fmt.Errorf("decompress artifact %s: %w", relPath, err)
	}
	defer zr.Close()
	buf, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", relPath, err)
	}
	if err := sonic.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode artifact %s: %w", relPath, err)
	}
	return nil
}

// Bundle is the immutable set of frozen artifacts behind one model version.
// Inference receives this value explicitly; there is no process-wide cache.
type Bundle struct {
	Card     *ModelCard
	Scaler   *reduce.RobustScaler
	Reducer  reduce.Reducer // nil when the version has none
	Residual *features.ResidualModel
}

// LoadActiveBundle loads the active card and rehydrates its artifacts.
func (s *Store) LoadActiveBundle() (*Bundle, error) {
	card, err := s.CurrentCard()
	if err != nil {
		return nil, err
	}
	return s.LoadBundle(card)
}

// LoadBundle rehydrates the artifacts referenced by a specific card.
func (s *Store) LoadBundle(card *ModelCard) (*Bundle, error) {
	b := &Bundle{Card: card}

	b.Scaler = &reduce.RobustScaler{}
	if err := s.LoadArtifact(card.Files.Scaler, b.Scaler); err != nil {
		return nil, err
	}
	if card.Files.Reducer != "" {
		var art reduce.Artifact
		if err := s.LoadArtifact(card.Files.Reducer, &art); err != nil {
			return nil, err
		}
		r, err := art.Reducer()
		if err != nil {
			return nil, err
		}
		b.Reducer = r
	}
	b.Residual = &features.ResidualModel{}
	if err := s.LoadArtifact(card.Files.ResidualModel, b.Residual); err != nil {
		return nil, err
	}
	return b, nil
}
