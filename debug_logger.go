package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DebugLogger provides unified debug message handling for console, files, and overlay
type DebugLogger struct {
	enabled        bool
	baseDir        string
	mu             sync.RWMutex
	sessionFiles   map[string]*os.File // sessionID -> file handle
	overlayHistory []DebugMessage      // For overlay terminal
	maxOverlayMsgs int
	writeQueue     chan DebugWriteTask
	stopWorker     chan bool
	workerStopped  sync.WaitGroup
	closed         bool

	// Per-session message counts, written as a summary when the session closes
	sessionStats map[string]*sessionSummary

	now func() time.Time
}

type DebugMessage struct {
	Timestamp time.Time
	Component string
	Message   string
	SessionID string
}

type DebugWriteTask struct {
	file    *os.File
	content string

	// closeFile closes file after writing content and then closes done
	closeFile bool
	done      chan struct{}
}

type sessionSummary struct {
	start           time.Time
	end             time.Time
	messages        int
	componentCounts map[string]int
}

// NewDebugLogger creates a unified debug logger. File output is only active when enabled.
func NewDebugLogger(enabled bool, baseDir string) *DebugLogger {
	if enabled {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			fmt.Printf("[DEBUG_LOGGER] Failed to create debug directory: %v\n", err)
			enabled = false
		}
	}

	dl := &DebugLogger{
		enabled:        enabled,
		baseDir:        baseDir,
		sessionFiles:   make(map[string]*os.File),
		overlayHistory: make([]DebugMessage, 0),
		maxOverlayMsgs: 50, // Keep last 50 messages for overlay
		writeQueue:     make(chan DebugWriteTask, 100),
		stopWorker:     make(chan bool, 1),
		sessionStats:   make(map[string]*sessionSummary),
		now:            time.Now,
	}

	if enabled {
		dl.workerStopped.Add(1)
		go dl.fileWriteWorker()
	}

	return dl
}

// debugMsg is the main unified debug function
func (dl *DebugLogger) debugMsg(component, message string, sessionID ...string) {
	timestamp := dl.now()

	fmt.Printf("[%s][%s] %s\n", timestamp.Format("15:04:05.000"), component, message)

	currentSession := ""
	if len(sessionID) > 0 && sessionID[0] != "" {
		currentSession = sessionID[0]
	}

	msg := DebugMessage{
		Timestamp: timestamp,
		Component: component,
		Message:   message,
		SessionID: currentSession,
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	// Overlay history works independently of debug mode
	dl.overlayHistory = append(dl.overlayHistory, msg)
	if len(dl.overlayHistory) > dl.maxOverlayMsgs {
		dl.overlayHistory = dl.overlayHistory[1:]
	}

	if !dl.enabled || dl.closed || currentSession == "" {
		return
	}

	summary := dl.sessionStats[currentSession]
	if summary == nil {
		summary = &sessionSummary{start: timestamp, componentCounts: make(map[string]int)}
		dl.sessionStats[currentSession] = summary
	}
	summary.end = timestamp
	summary.messages++
	summary.componentCounts[component]++

	file := dl.getOrCreateSessionFile(currentSession)
	if file == nil {
		return
	}
	content := fmt.Sprintf("[%s][%s] %s\n", timestamp.Format("15:04:05.000"), component, message)

	select {
	case dl.writeQueue <- DebugWriteTask{file: file, content: content}:
	default:
		// Queue full, drop message to prevent blocking
	}
}

// getOrCreateSessionFile opens <baseDir>/<sessionID>.txt in append mode. Caller holds dl.mu.
func (dl *DebugLogger) getOrCreateSessionFile(sessionID string) *os.File {
	if file, exists := dl.sessionFiles[sessionID]; exists {
		return file
	}

	path := filepath.Join(dl.baseDir, sessionID+".txt")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Printf("[DEBUG_LOGGER] Failed to open session log %s: %v\n", path, err)
		return nil
	}

	if info, err := file.Stat(); err == nil && info.Size() == 0 {
		header := fmt.Sprintf("=== SESSION LOG: %s ===\n", sessionID)
		header += fmt.Sprintf("Started: %s\n", dl.now().Format("2006-01-02 15:04:05"))
		header += "========================================\n\n"
		file.WriteString(header)
	}

	dl.sessionFiles[sessionID] = file
	return file
}

// fileWriteWorker handles async file writing
func (dl *DebugLogger) fileWriteWorker() {
	defer dl.workerStopped.Done()

	for {
		select {
		case task := <-dl.writeQueue:
			runWriteTask(task)

		case <-dl.stopWorker:
			for len(dl.writeQueue) > 0 {
				runWriteTask(<-dl.writeQueue)
			}
			return
		}
	}
}

func runWriteTask(task DebugWriteTask) {
	if task.content != "" {
		task.file.WriteString(task.content)
	}
	if task.closeFile {
		task.file.Sync()
		task.file.Close()
		close(task.done)
	}
}

// GetOverlayHistory returns recent messages for the terminal overlay
func (dl *DebugLogger) GetOverlayHistory() []string {
	dl.mu.RLock()
	defer dl.mu.RUnlock()

	history := make([]string, len(dl.overlayHistory))
	for i, msg := range dl.overlayHistory {
		line := fmt.Sprintf("[%s] %s", msg.Component, msg.Message)
		if msg.SessionID != "" {
			short := msg.SessionID
			if len(short) > 8 {
				short = short[:8]
			}
			line = fmt.Sprintf("(%s) %s", short, line)
		}
		history[i] = line
	}
	return history
}

// CloseSession appends a summary to the session log and closes it. Later
// messages for the same session reopen the file in append mode.
func (dl *DebugLogger) CloseSession(sessionID string) {
	if !dl.enabled || sessionID == "" {
		return
	}

	dl.mu.Lock()
	summary := dl.sessionStats[sessionID]
	delete(dl.sessionStats, sessionID)
	file := dl.sessionFiles[sessionID]
	delete(dl.sessionFiles, sessionID)
	dl.mu.Unlock()

	if file == nil {
		return
	}

	// Summary and close share the queue with earlier lines for this file
	task := DebugWriteTask{file: file, closeFile: true, done: make(chan struct{})}
	if summary != nil {
		task.content = formatSummary(sessionID, summary)
	}
	dl.writeQueue <- task
	<-task.done
}

func formatSummary(sessionID string, s *sessionSummary) string {
	components := make([]string, 0, len(s.componentCounts))
	for c := range s.componentCounts {
		components = append(components, c)
	}
	sort.Strings(components)

	out := fmt.Sprintf("\n=== SESSION SUMMARY: %s ===\n", sessionID)
	out += fmt.Sprintf("Start Time: %s\n", s.start.Format("2006-01-02 15:04:05.000"))
	out += fmt.Sprintf("End Time: %s\n", s.end.Format("2006-01-02 15:04:05.000"))
	out += fmt.Sprintf("Duration: %v\n", s.end.Sub(s.start).Round(time.Millisecond))
	out += fmt.Sprintf("Messages: %d\n", s.messages)
	for _, c := range components {
		out += fmt.Sprintf("  %s: %d\n", c, s.componentCounts[c])
	}
	return out
}

// Close stops the writer and closes every open session file
func (dl *DebugLogger) Close() {
	dl.mu.Lock()
	if dl.closed {
		dl.mu.Unlock()
		return
	}
	dl.closed = true
	sessions := make([]string, 0, len(dl.sessionFiles))
	for id := range dl.sessionFiles {
		sessions = append(sessions, id)
	}
	dl.mu.Unlock()

	for _, id := range sessions {
		dl.CloseSession(id)
	}

	if dl.enabled {
		dl.stopWorker <- true
		dl.workerStopped.Wait()
	}
}
