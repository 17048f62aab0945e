package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ───────── CSV sink (single file, header once, cross-process lock) ─────────

const lockTTL = 10 * time.Minute

// csvSink holds the output file open for the life of the run and writes one
// record per event. A sidecar lock file with a TTL and an mtime heartbeat
// keeps a second run from interleaving rows into the same file.
type csvSink struct {
	path     string
	lockPath string

	f   *os.File
	buf *bufio.Writer
	w   *csv.Writer

	stopHeartbeat chan struct{}
	closed        bool
}

// newCSVSink truncates (or creates) the output file, writes the header row,
// and acquires the lock. The output directory must exist before the lock file
// can be created inside it. The caller must Close the sink.
func newCSVSink(path string) (*csvSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	s := &csvSink{
		path:          path,
		lockPath:      path + ".lock",
		stopHeartbeat: make(chan struct{}),
	}
	if err := acquireLock(s.lockPath, lockTTL); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		releaseLock(s.lockPath)
		return nil, err
	}
	s.f = f
	s.buf = bufio.NewWriterSize(f, 1<<20)
	s.w = csv.NewWriter(s.buf)

	if err := s.w.Write(csvHeader); err != nil {
		s.abort()
		return nil, err
	}
	if err := s.Flush(); err != nil {
		s.abort()
		return nil, err
	}

	go s.heartbeat()
	return s, nil
}

func (s *csvSink) WriteRow(r Row) error {
	return s.w.Write(r.record())
}

// Flush pushes buffered records down to the OS. Called after every page so a
// fatal error later in the run leaves prior pages on disk.
func (s *csvSink) Flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}

func (s *csvSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopHeartbeat)
	defer releaseLock(s.lockPath)

	if err := s.Flush(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// abort tears down a partially constructed sink.
func (s *csvSink) abort() {
	close(s.stopHeartbeat)
	s.f.Close()
	releaseLock(s.lockPath)
}

func (s *csvSink) heartbeat() {
	t := time.NewTicker(60 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			_ = os.Chtimes(s.lockPath, now, now)
		case <-s.stopHeartbeat:
			return
		}
	}
}

// ───────── Lock file (with TTL) ─────────

// acquireLock creates the lock file exclusively, taking over a stale one whose
// mtime is older than ttl. Anything other than "already exists" is a real
// filesystem problem and is returned rather than retried.
func acquireLock(lockPath string, ttl time.Duration) error {
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = f.WriteString(fmt.Sprintf(`{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix()))
			_ = f.Close()
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lock %s: %w", lockPath, err)
		}
		fi, err := os.Stat(lockPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Holder released between our open and stat; try again.
				continue
			}
			return fmt.Errorf("stat lock %s: %w", lockPath, err)
		}
		if time.Since(fi.ModTime()) >= ttl {
			_ = os.Remove(lockPath)
			continue
		}
		return fmt.Errorf("another writer holds %s", lockPath)
	}
}

func releaseLock(lockPath string) {
	if lockPath == "" {
		return
	}
	_ = os.Remove(lockPath)
}
