package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/fused/internal/reduce"
)

func newCard(id string) ModelCard {
	return ModelCard{
		ModelID:   id,
		TrainedAt: time.Now().UTC(),
		Mode:      "full",
		Data:      DataSummary{NSamples: 100, NFeatures: 10, Source: "test.csv"},
	}
}

func TestSaveNewVersionAssignsAndActivates(t *testing.T) {
	s := NewStore(t.TempDir())

	v1, err := s.SaveNewVersion(newCard("m1"))
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.IsActive)

	v2, err := s.SaveNewVersion(newCard("m2"))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	hist, err := s.History()
	require.NoError(t, err)
	require.Len(t, hist, 2)

	active := 0
	for _, c := range hist {
		if c.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one version active at a time")

	cur, err := s.CurrentCard()
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Version, "newest version becomes active")
}

func TestSetActiveVersion(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.SaveNewVersion(newCard("m1"))
	require.NoError(t, err)
	_, err = s.SaveNewVersion(newCard("m2"))
	require.NoError(t, err)

	card, err := s.SetActiveVersion(1)
	require.NoError(t, err)
	assert.Equal(t, 1, card.Version)
	assert.True(t, card.IsActive)
	assert.False(t, card.ActivatedAt.IsZero())

	cur, err := s.CurrentCard()
	require.NoError(t, err)
	assert.Equal(t, "m1", cur.ModelID)

	hist, err := s.History()
	require.NoError(t, err)
	for _, c := range hist {
		if c.Version == 2 {
			assert.False(t, c.IsActive, "rollback must deactivate the newer version")
		}
	}

	_, err = s.SetActiveVersion(99)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestEmptyRegistry(t *testing.T) {
	s := NewStore(t.TempDir())

	hist, err := s.History()
	require.NoError(t, err)
	assert.Empty(t, hist)

	_, err = s.CurrentCard()
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestArtifactRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	scaler := &reduce.RobustScaler{
		Center: []float64{1, 2, 3},
		Scale:  []float64{0.5, 1, 2},
	}
	require.NoError(t, s.SaveArtifact("m1/scaler.json.gz", scaler))

	back := &reduce.RobustScaler{}
	require.NoError(t, s.LoadArtifact("m1/scaler.json.gz", back))
	assert.Equal(t, scaler, back)

	err := s.LoadArtifact("m1/nope.json.gz", back)
	assert.Error(t, err)
}
