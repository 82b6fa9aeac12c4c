// SPDX-License-Identifier: MIT
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingFile is an io.Writer that rotates to a timestamped sibling file
// once it exceeds maxSize bytes. Adapted from the teacher's
// src/server/service/logging/logging.go RotatingFile, trimmed to
// size-based rotation only (the coordinator logs at a bounded, low rate;
// time-based rotation and gzip compression of rotated files belong to the
// web-app log volume the teacher was sized for, not here).
type RotatingFile struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	maxSize     int64
	currentSize int64
}

func NewRotatingFile(path string, maxSize int64) (*RotatingFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	rf := &RotatingFile{path: path, file: f, maxSize: maxSize}
	if info, err := f.Stat(); err == nil {
		rf.currentSize = info.Size()
	}
	return rf, nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.maxSize > 0 && rf.currentSize >= rf.maxSize {
		if err := rf.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "logging: rotation error: %v\n", err)
		}
	}

	n, err := rf.file.Write(p)
	rf.currentSize += int64(n)
	return n, err
}

func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		rf.file.Close()
	}
	rotated := rf.path + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(rf.path, rotated); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, err := os.OpenFile(rf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	rf.file = f
	rf.currentSize = 0
	return nil
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Close()
}
