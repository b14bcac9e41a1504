package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"LocalSpot/logger"
	"LocalSpot/model"

	"github.com/dhowden/tag"
)

const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"

	defaultArtworkMime = "image/jpeg"
)

// ErrNoArtwork means the file carries no embedded picture.
var ErrNoArtwork = errors.New("no embedded artwork")

var listingMimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg; codecs=opus",
	".wma":  "audio/x-ms-wma",
}

// Tags is the cacheable result of parsing one file.
type Tags struct {
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Duration   float64 `json:"duration"`
	HasArtwork bool    `json:"hasArtwork"`
}

// TagStore caches parsed tags between scans. Implementations must tolerate
// their backend being unavailable; a miss just means the file is parsed again.
type TagStore interface {
	Get(ctx context.Context, key string) (Tags, bool)
	Set(ctx context.Context, key string, tags Tags)
}

// IDFunc computes the track identifier for an absolute path.
type IDFunc func(absPath string) (string, error)

// Extractor reads tags from audio files. It never fails: anything it can't
// parse falls back to defaults derived from the file name.
type Extractor struct {
	id        IDFunc
	store     TagStore
	durations DurationSource
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithDurationSource makes p the primary duration source. Container headers
// are still read when p fails or reports nothing.
func WithDurationSource(p DurationSource) Option {
	return func(e *Extractor) { e.durations = p }
}

// NewExtractor returns an extractor. store may be nil.
func NewExtractor(id IDFunc, store TagStore, opts ...Option) *Extractor {
	e := &Extractor{id: id, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CacheKey identifies one version of a file on disk.
func CacheKey(path string, info os.FileInfo) string {
	return fmt.Sprintf("tags:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
}

// MimeType returns the listing MIME type for path.
func MimeType(path string) string {
	if mt, ok := listingMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "audio/mpeg"
}

// Defaults returns the filename-derived tags used when parsing fails.
func Defaults(path string) Tags {
	return Tags{
		Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist: UnknownArtist,
		Album:  UnknownAlbum,
	}
}

// Extract returns the song for path.
func (e *Extractor) Extract(ctx context.Context, path string) model.Song {
	song := model.Song{FilePath: path, MimeType: MimeType(path)}
	if e.id != nil {
		if id, err := e.id(path); err == nil {
			song.ID = id
		}
	}

	tags := e.tags(ctx, path)
	song.Title = tags.Title
	song.Artist = tags.Artist
	song.Album = tags.Album
	song.Duration = tags.Duration
	song.HasArtwork = tags.HasArtwork
	return song
}

func (e *Extractor) tags(ctx context.Context, path string) Tags {
	info, statErr := os.Stat(path)
	var key string
	if statErr == nil && e.store != nil {
		key = CacheKey(path, info)
		if cached, ok := e.store.Get(ctx, key); ok {
			return cached
		}
	}

	tags, err := e.parse(ctx, path)
	if err != nil {
		logger.Debug("tag parsing failed, using file name",
			logger.String("path", path),
			logger.ErrorField(err))
		// Failures aren't cached so a fixed file gets another try next scan.
		return tags
	}
	if key != "" {
		e.store.Set(ctx, key, tags)
	}
	return tags
}

// parse always returns usable tags, plus the parse error if any.
func (e *Extractor) parse(ctx context.Context, path string) (Tags, error) {
	tags := Defaults(path)

	f, err := os.Open(path)
	if err != nil {
		return tags, err
	}
	defer f.Close()

	tags.Duration = e.duration(ctx, path, f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return tags, err
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		return tags, err
	}

	if t := strings.TrimSpace(m.Title()); t != "" {
		tags.Title = t
	}
	if a := strings.TrimSpace(m.Artist()); a != "" {
		tags.Artist = a
	} else if aa := strings.TrimSpace(m.AlbumArtist()); aa != "" {
		tags.Artist = aa
	}
	if al := strings.TrimSpace(m.Album()); al != "" {
		tags.Album = al
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		tags.HasArtwork = true
	}
	return tags, nil
}

func (e *Extractor) duration(ctx context.Context, path string, f io.ReadSeeker) float64 {
	if e.durations != nil {
		d, err := e.durations.Duration(ctx, path)
		if err == nil && d > 0 {
			return d
		}
		if err != nil && !errors.Is(err, ErrFFprobeUnavailable) {
			logger.Debug("duration lookup failed, reading container header",
				logger.String("path", path),
				logger.ErrorField(err))
		}
	}
	return estimateDuration(f, strings.ToLower(filepath.Ext(path)))
}

// Artwork returns the first embedded picture in path.
func (e *Extractor) Artwork(path string) (model.Artwork, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Artwork{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return model.Artwork{}, fmt.Errorf("read tags: %w", err)
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return model.Artwork{}, ErrNoArtwork
	}
	mime := pic.MIMEType
	if mime == "" {
		mime = defaultArtworkMime
	}
	return model.Artwork{Data: pic.Data, MimeType: mime}, nil
}
