// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// watcher.go - Keeps the index in sync with externally changed files.
//
// Conversation files can change outside the running client (another
// instance, a sync tool, manual edits). The watcher reindexes changed
// files with a debounce so bursts of writes coalesce into one update.
package history

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces rapid successive writes to one reindex.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reindexes conversation files as they change on disk.
type Watcher struct {
	idx      *Index
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Watch starts watching the store directory, keeping the index current.
func (idx *Index) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(idx.store.Dir()); err != nil {
		fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		idx:      idx,
		watcher:  fsw,
		debounce: DefaultDebounce,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}

	idx.mu.Lock()
	if idx.watcher != nil {
		idx.watcher.Close()
	}
	idx.watcher = w
	idx.mu.Unlock()

	go w.processEvents()
	go w.processPending()
	return nil
}

// processEvents routes filesystem events into the pending set.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			id, ok := conversationID(event.Name)
			if !ok {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.mu.Lock()
				w.pending[id] = time.Now()
				w.mu.Unlock()
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.idx.RemoveConversation(id)
				w.mu.Lock()
				delete(w.pending, id)
				w.mu.Unlock()
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; a manual Reindex recovers.
		}
	}
}

// processPending flushes debounced updates.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var due []string
			for id, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					due = append(due, id)
					delete(w.pending, id)
				}
			}
			w.mu.Unlock()

			for _, id := range due {
				w.idx.UpdateConversation(id)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}

// conversationID extracts the conversation id from a store file path.
// Temp files from atomic writes are ignored.
func conversationID(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".tmp-") || !strings.HasSuffix(base, ".json") {
		return "", false
	}
	return strings.TrimSuffix(base, ".json"), true
}
