package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for an optimization run.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesOptimized      int64
	FilesPlanned        int64
	FilesWithErrors     int64
	FilesResized        int64
	FilesNormalized     int64

	BytesRead    int64
	BytesWritten int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	BytesSaved     int64
	PercentSaved   float64

	Errors []StatError

	FileTypeStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// AddFilesFound adds n discovered candidate files.
func (s *Statistics) AddFilesFound(n int) {
	atomic.AddInt64(&s.TotalFilesFound, int64(n))
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[strings.ToUpper(strings.TrimPrefix(fileType, "."))]++
}

// RecordOptimized counts a file that was written to the output directory.
func (s *Statistics) RecordOptimized(bytesIn, bytesOut int64, resized, normalized bool) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
	atomic.AddInt64(&s.FilesOptimized, 1)
	atomic.AddInt64(&s.BytesRead, bytesIn)
	atomic.AddInt64(&s.BytesWritten, bytesOut)
	s.recordTransform(resized, normalized)
}

// RecordPlanned counts a file that was measured in dry-run mode.
func (s *Statistics) RecordPlanned(resized, normalized bool) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
	atomic.AddInt64(&s.FilesPlanned, 1)
	s.recordTransform(resized, normalized)
}

func (s *Statistics) recordTransform(resized, normalized bool) {
	if resized {
		atomic.AddInt64(&s.FilesResized, 1)
	}
	if normalized {
		atomic.AddInt64(&s.FilesNormalized, 1)
	}
}

// RecordFailure counts a failed file and keeps its error.
func (s *Statistics) RecordFailure(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
	atomic.AddInt64(&s.FilesWithErrors, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration, throughput and savings.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}

	if atomic.LoadInt64(&s.FilesOptimized) > 0 {
		read := atomic.LoadInt64(&s.BytesRead)
		written := atomic.LoadInt64(&s.BytesWritten)
		s.BytesSaved = read - written
		if read > 0 {
			s.PercentSaved = float64(s.BytesSaved) * 100 / float64(read)
		}
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Image Optimizer Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Optimized: %d
		Planned (dry-run): %d
		Errors: %d

Transforms:
		Resized: %d
		Color Normalized: %d

Size:
		Bytes Read: %s
		Bytes Written: %s
		Saved: %s (%.1f%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesOptimized),
		atomic.LoadInt64(&s.FilesPlanned),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.FilesResized),
		atomic.LoadInt64(&s.FilesNormalized),
		formatBytes(atomic.LoadInt64(&s.BytesRead)),
		formatBytes(atomic.LoadInt64(&s.BytesWritten)),
		formatBytes(s.BytesSaved),
		s.PercentSaved,
		s.Duration,
		s.FilesPerSecond)
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed, sorted by type.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for fileType := range s.FileTypeStats {
		types = append(types, fileType)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, fileType := range types {
		result += fmt.Sprintf("  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Snapshot returns the counters as a map suitable for JSON responses.
func (s *Statistics) Snapshot() map[string]int64 {
	return map[string]int64{
		"total_found":     atomic.LoadInt64(&s.TotalFilesFound),
		"total_processed": atomic.LoadInt64(&s.TotalFilesProcessed),
		"optimized":       atomic.LoadInt64(&s.FilesOptimized),
		"planned":         atomic.LoadInt64(&s.FilesPlanned),
		"errors":          atomic.LoadInt64(&s.FilesWithErrors),
		"resized":         atomic.LoadInt64(&s.FilesResized),
		"normalized":      atomic.LoadInt64(&s.FilesNormalized),
		"bytes_read":      atomic.LoadInt64(&s.BytesRead),
		"bytes_written":   atomic.LoadInt64(&s.BytesWritten),
	}
}

// GetFilesWithErrors returns the total number of files with errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	return atomic.LoadInt64(&s.FilesWithErrors)
}

// GetFilesOptimized returns the total number of files written.
func (s *Statistics) GetFilesOptimized() int64 {
	return atomic.LoadInt64(&s.FilesOptimized)
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + formatBytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
