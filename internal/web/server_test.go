package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-optimizer-go/internal/config"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	log := logrus.New()
	log.SetOutput(bytes.NewBuffer(nil))

	s := NewServer(cfg, log)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func writeSourcePNG(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))))
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestOptimizeEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	dir := t.TempDir()
	writeSourcePNG(t, dir, "a.png", 40, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("corrupt"), 0644))

	resp, body := postJSON(t, ts.URL+"/api/optimize", map[string]interface{}{
		"source_directory": dir,
		"max_width":        20,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	s.runs.Wait()

	statusResp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()

	var status struct {
		Success bool `json:"success"`
		Data    struct {
			Running bool         `json:"running"`
			Results []FileResult `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	assert.False(t, status.Data.Running)
	require.Len(t, status.Data.Results, 2)

	assert.Equal(t, "succeeded", status.Data.Results[0].Status)
	assert.Equal(t, 20, status.Data.Results[0].Width)
	assert.Equal(t, 10, status.Data.Results[0].Height)
	assert.Equal(t, "failed", status.Data.Results[1].Status)
	assert.NotEmpty(t, status.Data.Results[1].Error)

	assert.FileExists(t, filepath.Join(dir, "optimizadas", "a.png"))
}

func TestOptimizeEndpointValidation(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/optimize", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := postJSON(t, ts.URL+"/api/optimize", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Source directory is required", body.Error)

	missing := filepath.Join(t.TempDir(), "missing")
	resp, body = postJSON(t, ts.URL+"/api/optimize", map[string]interface{}{"source_directory": missing})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Source directory does not exist", body.Error)
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr))

	s.operationMutex.Lock()
	s.isRunning = true
	s.operationMutex.Unlock()

	resp, body = postJSON(t, ts.URL+"/api/optimize", map[string]interface{}{"source_directory": t.TempDir()})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Operation already in progress", body.Error)
}

func TestStopEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/api/stop", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "No operation in progress", body.Error)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.operationMutex.Lock()
	s.isRunning = true
	s.cancelRun = cancel
	s.operationMutex.Unlock()

	resp, body = postJSON(t, ts.URL+"/api/stop", map[string]interface{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWebSocketProgress(t *testing.T) {
	s, ts := newTestServer(t)
	dir := t.TempDir()
	writeSourcePNG(t, dir, "one.png", 10, 10)
	writeSourcePNG(t, dir, "two.png", 10, 10)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		s.wsMutex.RLock()
		defer s.wsMutex.RUnlock()
		return len(s.wsClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := postJSON(t, ts.URL+"/api/optimize", map[string]interface{}{"source_directory": dir})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []string
	processed := 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "file_processed" {
			processed++
		}
		if msg.Type == "optimize_completed" || msg.Type == "optimize_error" {
			break
		}
	}

	assert.Equal(t, "optimize_started", types[0])
	assert.Equal(t, "optimize_completed", types[len(types)-1])
	assert.Equal(t, 2, processed)
}

func TestConfigEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 80, body.Data["quality"])
	assert.EqualValues(t, 1920, body.Data["max_width"])
	assert.Equal(t, "optimizadas", body.Data["output_dir_name"])
}

func TestInspectEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	dir := t.TempDir()
	writeSourcePNG(t, dir, "wide.png", 3840, 10)

	resp, body := postJSON(t, ts.URL+"/api/inspect", InspectRequest{Path: filepath.Join(dir, "wide.png")})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1920, data["target_width"])
	assert.EqualValues(t, 5, data["target_height"])
	assert.Equal(t, true, data["needs_normalization"])

	resp, _ = postJSON(t, ts.URL+"/api/inspect", InspectRequest{Path: filepath.Join(dir, "nope.png")})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListDirectories(t *testing.T) {
	_, ts := newTestServer(t)
	dir := t.TempDir()
	writeSourcePNG(t, dir, "a.png", 2, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644))

	resp, err := http.Get(ts.URL + "/api/directories?path=" + dir)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []DirectoryInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].IsCandidate)
	assert.False(t, body.Data[1].IsCandidate)
}
