package watcher

import (
	"context"
	"os"
	"sync"
	"time"

	"predeval/internal/csvsource"
	"predeval/pkg/logger"
)

// Update signals that a miner's history file changed on disk.
type Update struct {
	Miner   string
	ModTime time.Time
	Size    int64
}

type fileState struct {
	size  int64
	mtime time.Time
}

// Watcher polls miner history files by mtime and size and invokes a
// callback when one changes. Watch failures are logged and never touch the
// reconciliation path.
type Watcher struct {
	source   *csvsource.Source
	interval time.Duration
	onUpdate func(Update)
	log      *logger.Logger

	mu    sync.Mutex
	state map[string]fileState
}

// New creates a watcher over the CSV source's data directory.
func New(source *csvsource.Source, interval time.Duration, onUpdate func(Update), log *logger.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		source:   source,
		interval: interval,
		onUpdate: onUpdate,
		log:      log,
		state:    make(map[string]fileState),
	}
}

// Run polls until ctx is done. The first sweep primes the state without
// firing updates so startup does not look like a burst of changes.
func (w *Watcher) Run(ctx context.Context) {
	w.sweep(ctx, false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, true)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context, notify bool) {
	miners, err := w.source.Miners(ctx)
	if err != nil {
		if w.log != nil {
			w.log.Warn("watcher sweep failed", logger.Error(err))
		}
		return
	}

	for _, miner := range miners {
		info, err := os.Stat(w.source.FilePath(miner))
		if err != nil {
			continue
		}

		cur := fileState{size: info.Size(), mtime: info.ModTime()}
		w.mu.Lock()
		prev, known := w.state[miner]
		w.state[miner] = cur
		w.mu.Unlock()

		if !notify || (known && prev == cur) {
			continue
		}

		if w.log != nil {
			w.log.Debug("miner history changed",
				logger.String("miner", miner),
				logger.Int64("size", cur.size),
			)
		}
		if w.onUpdate != nil {
			w.onUpdate(Update{Miner: miner, ModTime: cur.mtime, Size: cur.size})
		}
	}
}
