package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/fused/internal/config"
	"github.com/gridwatch/fused/internal/jobstore"
	"github.com/gridwatch/fused/internal/registry"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.AppConfig{
		EngineEnvConfig: config.EngineEnvConfig{
			DataDir:     t.TempDir(),
			RegistryDir: t.TempDir(),
		},
		ServerEnvConfig: config.ServerEnvConfig{
			Address:       "127.0.0.1",
			Port:          0,
			BodySizeLimit: 1 << 20,
			JobStore:      "memory",
		},
	}
	store := registry.NewStore(cfg.RegistryDir)
	return NewServer(cfg, store, jobstore.NewMemoryStore())
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	resp, err := s.App.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestListModelsEmpty(t *testing.T) {
	s := testServer(t)
	resp, err := s.App.Test(httptest.NewRequest("GET", "/api/models", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out StdResponse[[]registry.ModelCard]
	require.NoError(t, sonic.Unmarshal(body, &out))
	assert.Empty(t, out.Body)
	assert.Nil(t, out.Error)
}

func TestCurrentModelNotFound(t *testing.T) {
	s := testServer(t)
	resp, err := s.App.Test(httptest.NewRequest("GET", "/api/models/current", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestActivateUnknownVersion(t *testing.T) {
	s := testServer(t)
	resp, err := s.App.Test(httptest.NewRequest("POST", "/api/models/7/activate", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStartTrainValidation(t *testing.T) {
	s := testServer(t)

	t.Run("missing data_path", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/train", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("bad mode", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/train", strings.NewReader(`{"data_path":"x.csv","mode":"turbo"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestStartTrainMissingFileFailsJob(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("POST", "/api/train", strings.NewReader(`{"data_path":"absent.csv","mode":"fast"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, 202, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out StdResponse[TrainAccepted]
	require.NoError(t, sonic.Unmarshal(body, &out))
	require.NotEmpty(t, out.Body.JobID)

	// job runs in the background; poll until it settles
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := s.App.Test(httptest.NewRequest("GET", "/api/train/"+out.Body.JobID, nil))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var st StdResponse[jobstore.Status]
		require.NoError(t, sonic.Unmarshal(raw, &st))
		if st.Body.Status == jobstore.StatusFailed {
			assert.NotEmpty(t, st.Body.Error)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed, last status %q", st.Body.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTrainStatusNotFound(t *testing.T) {
	s := testServer(t)
	resp, err := s.App.Test(httptest.NewRequest("GET", "/api/train/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestScoreWithoutActiveModel(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("POST", "/api/score", strings.NewReader("fid,kwh_total\n1,100\n"))
	req.Header.Set("Content-Type", "text/csv")
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode, "scoring needs an active model")
}
