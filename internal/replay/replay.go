// Package replay feeds recorded execution updates into the session
// pipeline. A recording is a JSONL file: one raw update message per
// line, in the order the transport delivered them. The source loads
// existing lines on start and then tails the files with fsnotify, so a
// recording being appended to behaves exactly like a live stream.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	// Update messages can carry full task outputs.
	lineBufferInitial = 64 * 1024
	lineBufferMax     = 8 * 1024 * 1024
)

// Config holds configuration for a replay source.
type Config struct {
	Directory string // directory of *.jsonl recordings
	Verbose   bool
}

// Source reads recordings from a directory and hands each line to the
// dispatch function in file order. It remembers per-file offsets so a
// watch event only replays the appended tail.
type Source struct {
	directory string
	dispatch  func([]byte) error
	verbose   bool

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	offsets map[string]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a replay source over the given directory.
func New(cfg Config, dispatch func([]byte) error) (*Source, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("replay: directory is required")
	}
	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("replay: cannot access %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("replay: %s is not a directory", cfg.Directory)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("replay: create watcher: %w", err)
	}

	return &Source{
		directory: cfg.Directory,
		dispatch:  dispatch,
		verbose:   cfg.Verbose,
		watcher:   watcher,
		offsets:   make(map[string]int64),
	}, nil
}

// Start performs the initial load and begins watching for appends. It
// returns once the initial load is complete; tailing continues in the
// background until Stop or context cancellation.
func (s *Source) Start(ctx context.Context) error {
	if err := s.watcher.Add(s.directory); err != nil {
		return fmt.Errorf("replay: watch %s: %w", s.directory, err)
	}

	files, err := s.listRecordings()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.readNewLines(f); err != nil {
			log.Printf("replay: initial load of %s: %v", f, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.watchLoop(watchCtx)
	return nil
}

// Stop ends the background tail and releases the watcher.
func (s *Source) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	_ = s.watcher.Close()
}

// listRecordings returns the .jsonl files in the directory, sorted by
// name so multi-file replays load in a stable order.
func (s *Source) listRecordings() ([]string, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", s.directory, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(s.directory, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// readNewLines dispatches every line past the remembered offset.
func (s *Source) readNewLines(path string) error {
	s.mu.Lock()
	offset := s.offsets[path]
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, lineBufferInitial), lineBufferMax)

	read := offset
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		// Dispatch owns error handling; a bad line must not stop the
		// rest of the recording.
		payload := append([]byte(nil), line...)
		if err := s.dispatch(payload); err != nil {
			log.Printf("replay: %s: dropped line: %v", filepath.Base(path), err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.offsets[path] = read
	s.mu.Unlock()

	if s.verbose && count > 0 {
		log.Printf("replay: %s: dispatched %d updates", filepath.Base(path), count)
	}
	return nil
}

func (s *Source) watchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			if err := s.readNewLines(event.Name); err != nil {
				log.Printf("replay: tail %s: %v", event.Name, err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("replay: watcher: %v", err)
		}
	}
}
