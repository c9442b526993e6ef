package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/inspector"
	"image-optimizer-go/internal/optimizer"
	"image-optimizer-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	inspector  inspector.Inspector
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelRun      context.CancelFunc
	currentStats   *statistics.Statistics
	lastResults    []FileResult
	runs           sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type OptimizeRequest struct {
	SourceDirectory string `json:"source_directory"`
	Quality         *int   `json:"quality,omitempty"`
	MaxWidth        *int   `json:"max_width,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

type InspectRequest struct {
	Path string `json:"path"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	IsCandidate  bool   `json:"is_candidate"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// FileResult is the JSON form of optimizer.Result.
type FileResult struct {
	InputPath     string `json:"input_path"`
	OutputPath    string `json:"output_path,omitempty"`
	Status        string `json:"status"`
	Stage         string `json:"stage,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	Resized       bool   `json:"resized"`
	Normalized    bool   `json:"normalized"`
	OriginalSize  int64  `json:"original_size"`
	OptimizedSize int64  `json:"optimized_size"`
	Error         string `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		inspector: inspector.NewFileInspector(log, cfg.MaxWidth, cfg.SupportedExtensions),
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/optimize", s.handleOptimize).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/inspect", s.handleInspect).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels a running optimization, waits for it, and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()
	s.runs.Wait()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	results := s.lastResults
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files":   stats.Snapshot(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
			"results":    results,
		},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"output_dir_name":      s.cfg.OutputDirName,
			"quality":              s.cfg.Quality,
			"max_width":            s.cfg.MaxWidth,
			"supported_extensions": s.cfg.SupportedExtensions,
			"exclude_patterns":     s.cfg.ExcludePatterns,
			"workers":              s.cfg.Performance.Workers,
		},
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SourceDirectory == "" {
		s.writeError(w, "Source directory is required", http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(req.SourceDirectory); err != nil || !info.IsDir() {
		s.writeError(w, "Source directory does not exist", http.StatusBadRequest)
		return
	}

	params := optimizer.ParamsFromConfig(s.cfg, req.SourceDirectory)
	if req.Quality != nil {
		params.Quality = *req.Quality
	}
	if req.MaxWidth != nil && *req.MaxWidth > 0 {
		params.MaxWidth = *req.MaxWidth
	}
	params.DryRun = req.DryRun

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancelRun = cancel
	s.currentStats = statistics.NewStatistics()
	s.lastResults = nil
	stats := s.currentStats
	s.runs.Add(1)
	s.operationMutex.Unlock()

	go s.runOptimizeAsync(ctx, params, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Optimization started",
		Data: map[string]interface{}{
			"output_directory": optimizer.OutputDir(params.SourceDir, params.OutputDirName),
		},
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	if !s.isRunning || s.cancelRun == nil {
		s.operationMutex.Unlock()
		s.writeError(w, "No operation in progress", http.StatusConflict)
		return
	}
	s.cancelRun()
	s.operationMutex.Unlock()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req InspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	info, err := s.inspector.Inspect(req.Path)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    info,
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			IsCandidate:  !entry.IsDir() && optimizer.IsCandidate(entry.Name(), s.cfg.SupportedExtensions, s.cfg.ExcludePatterns),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) runOptimizeAsync(ctx context.Context, params optimizer.Params, stats *statistics.Statistics) {
	defer s.runs.Done()

	s.broadcastWSMessage("optimize_started", map[string]interface{}{
		"source_directory": params.SourceDir,
		"quality":          params.Quality,
		"max_width":        params.MaxWidth,
		"dry_run":          params.DryRun,
	})

	opt := optimizer.NewDefaultOptimizerWithProgress(s.log, stats, func(res optimizer.Result) {
		fr := toFileResult(res)
		s.operationMutex.Lock()
		s.lastResults = append(s.lastResults, fr)
		s.operationMutex.Unlock()
		s.broadcastWSMessage("file_processed", fr)
	})

	_, err := opt.Optimize(ctx, params)

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancelRun = nil
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage("optimize_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.broadcastWSMessage("optimize_completed", map[string]interface{}{
		"output_directory": optimizer.OutputDir(params.SourceDir, params.OutputDirName),
		"statistics":       stats.GetSummary(),
		"files":            stats.Snapshot(),
	})
}

func toFileResult(res optimizer.Result) FileResult {
	fr := FileResult{
		InputPath:     res.InputPath,
		OutputPath:    res.OutputPath,
		Status:        string(res.Status),
		Stage:         string(res.Stage),
		Width:         res.Width,
		Height:        res.Height,
		Resized:       res.Resized,
		Normalized:    res.Normalized,
		OriginalSize:  res.OriginalSize,
		OptimizedSize: res.OptimizedSize,
	}
	if res.Error != nil {
		fr.Error = res.Error.Error()
	}
	return fr
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Writes need the exclusive lock: a websocket.Conn allows only one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
