package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"LocalSpot/core/library"
	"LocalSpot/core/metadata"
	"LocalSpot/logger"
	"LocalSpot/model"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const defaultParseConcurrency = 8

type songEntry struct {
	snap  *library.Snapshot
	songs []model.Song
}

// SongListCache keeps the parsed song list for the most recent library snapshot.
// A new snapshot (after an invalidation) makes the cached list stale.
type SongListCache struct {
	lib         *library.Library
	extractor   *metadata.Extractor
	concurrency int64

	entry atomic.Pointer[songEntry]
	group singleflight.Group
}

// NewSongListCache returns a cache over lib. concurrency <= 0 picks a default.
func NewSongListCache(lib *library.Library, extractor *metadata.Extractor, concurrency int) *SongListCache {
	if concurrency <= 0 {
		concurrency = defaultParseConcurrency
	}
	return &SongListCache{lib: lib, extractor: extractor, concurrency: int64(concurrency)}
}

// Songs returns every track sorted by title.
func (c *SongListCache) Songs(ctx context.Context) ([]model.Song, error) {
	snap, err := c.lib.Get(ctx)
	if err != nil {
		return nil, err
	}
	if e := c.entry.Load(); e != nil && e.snap == snap {
		return e.songs, nil
	}

	ch := c.group.DoChan(strconv.FormatUint(snap.Generation, 10), func() (interface{}, error) {
		songs, err := c.build(context.WithoutCancel(ctx), snap)
		if err != nil {
			return nil, err
		}
		c.entry.Store(&songEntry{snap: snap, songs: songs})
		return songs, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Song), nil
	}
}

func (c *SongListCache) build(ctx context.Context, snap *library.Snapshot) ([]model.Song, error) {
	start := time.Now()
	songs := make([]model.Song, snap.Len())
	sem := semaphore.NewWeighted(c.concurrency)
	var wg sync.WaitGroup

	i := 0
	var acquireErr error
	snap.Each(func(id, path string) {
		if acquireErr != nil {
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			return
		}
		wg.Add(1)
		go func(i int, id, path string) {
			defer wg.Done()
			defer sem.Release(1)
			song := c.extractor.Extract(ctx, path)
			song.ID = id
			songs[i] = song
		}(i, id, path)
		i++
	})
	wg.Wait()
	if acquireErr != nil {
		return nil, acquireErr
	}

	SortSongs(songs)
	logger.Info("song list built",
		logger.Int("songs", len(songs)),
		logger.Uint64("generation", snap.Generation),
		logger.Duration("elapsed", time.Since(start)))
	return songs, nil
}

// SortSongs orders songs by case-insensitive title, then by id.
func SortSongs(songs []model.Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		a, b := strings.ToLower(songs[i].Title), strings.ToLower(songs[j].Title)
		if a != b {
			return a < b
		}
		return songs[i].ID < songs[j].ID
	})
}
