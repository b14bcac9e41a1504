package library

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"LocalSpot/logger"
	"LocalSpot/metrics"

	"golang.org/x/sync/singleflight"
)

// AudioExtensions is the set of file extensions the scanner indexes.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".wma":  true,
}

// IsAudioFile reports whether name carries a recognized audio extension.
func IsAudioFile(name string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Snapshot is an immutable identifier → absolute path mapping produced by one scan.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time

	paths map[string]string
	ids   []string // walk order
}

// Len returns the number of tracks.
func (s *Snapshot) Len() int {
	return len(s.paths)
}

// Lookup returns the absolute path for id.
func (s *Snapshot) Lookup(id string) (string, bool) {
	p, ok := s.paths[id]
	return p, ok
}

// IDs returns the identifiers in depth-first walk order.
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Each calls fn for every track in walk order.
func (s *Snapshot) Each(fn func(id, path string)) {
	for _, id := range s.ids {
		fn(id, s.paths[id])
	}
}

// indexState pairs the published snapshot with the invalidation epoch it
// belongs to, so both change in a single atomic swap.
type indexState struct {
	epoch uint64
	snap  *Snapshot
}

// Library owns the current snapshot. Readers never lock: the snapshot pointer is
// swapped atomically and snapshots are never edited after publication.
type Library struct {
	codec *Codec

	state      atomic.Pointer[indexState]
	generation atomic.Uint64
	group      singleflight.Group

	subMu     sync.Mutex
	subs      map[int]func()
	nextSubID int
}

// New returns a library that lazily scans codec.Root().
func New(codec *Codec) *Library {
	l := &Library{
		codec: codec,
		subs:  make(map[int]func()),
	}
	l.state.Store(&indexState{})
	return l
}

// Root returns the library root.
func (l *Library) Root() string {
	return l.codec.Root()
}

// Codec returns the identifier codec bound to the library root.
func (l *Library) Codec() *Codec {
	return l.codec
}

// Scan walks the root depth-first and builds a new snapshot without publishing it.
// Unreadable directories are logged and skipped. Only context cancellation fails a scan.
func (l *Library) Scan(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	root := l.codec.Root()
	snap := &Snapshot{paths: make(map[string]string)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logger.Warn("skipping unreadable library path",
				logger.String("path", path),
				logger.ErrorField(err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsAudioFile(d.Name()) {
			return nil
		}

		id, encErr := l.codec.EncodePath(path)
		if encErr != nil {
			logger.Warn("skipping track outside library root",
				logger.String("path", path),
				logger.ErrorField(encErr))
			return nil
		}
		if _, dup := snap.paths[id]; !dup {
			snap.ids = append(snap.ids, id)
		}
		snap.paths[id] = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap.Generation = l.generation.Add(1)
	snap.BuiltAt = time.Now()

	elapsed := time.Since(start)
	metrics.LibraryScanDuration.Observe(elapsed.Seconds())
	logger.Info("library scan complete",
		logger.String("root", root),
		logger.Int("tracks", snap.Len()),
		logger.Uint64("generation", snap.Generation),
		logger.Duration("elapsed", elapsed))
	return snap, nil
}

// Get returns the current snapshot, scanning first if there is none.
// Concurrent callers share one scan per invalidation epoch.
func (l *Library) Get(ctx context.Context) (*Snapshot, error) {
	st := l.state.Load()
	if st.snap != nil {
		return st.snap, nil
	}

	epoch := st.epoch
	ch := l.group.DoChan(strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		// Detached so one impatient caller can't fail the scan for the others.
		snap, err := l.Scan(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.publish(epoch, snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

// publish installs snap unless an Invalidate happened since the scan began;
// a stale result still goes to the callers that asked for it, just not to later ones.
func (l *Library) publish(epoch uint64, snap *Snapshot) {
	for {
		cur := l.state.Load()
		if cur.epoch != epoch || cur.snap != nil {
			return
		}
		if l.state.CompareAndSwap(cur, &indexState{epoch: epoch, snap: snap}) {
			metrics.LibraryTracks.Set(float64(snap.Len()))
			return
		}
	}
}

// Current returns the published snapshot without scanning, or nil.
func (l *Library) Current() *Snapshot {
	return l.state.Load().snap
}

// Invalidate drops the published snapshot; the next Get rescans. Callers holding
// an older snapshot keep using it unchanged.
func (l *Library) Invalidate() {
	for {
		cur := l.state.Load()
		if l.state.CompareAndSwap(cur, &indexState{epoch: cur.epoch + 1}) {
			break
		}
	}
	metrics.LibraryInvalidationsTotal.Inc()
	logger.Info("library index invalidated", logger.String("root", l.Root()))

	l.subMu.Lock()
	subs := make([]func(), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Resolve maps id to an absolute path via the current snapshot.
func (l *Library) Resolve(ctx context.Context, id string) (string, error) {
	snap, err := l.Get(ctx)
	if err != nil {
		return "", err
	}
	p, ok := snap.Lookup(id)
	if !ok {
		return "", ErrNotFound
	}
	return p, nil
}

// Subscribe registers fn to run after every Invalidate. The returned func removes it.
func (l *Library) Subscribe(fn func()) func() {
	l.subMu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

// SortedIDs returns the snapshot's identifiers ordered by relative path.
func (l *Library) SortedIDs(snap *Snapshot) []string {
	ids := snap.IDs()
	sort.Slice(ids, func(i, j int) bool {
		return l.codec.Relative(snap.paths[ids[i]]) < l.codec.Relative(snap.paths[ids[j]])
	})
	return ids
}

// IsNotFound reports whether err should be treated as "no such track" externally.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrMalformed)
}
