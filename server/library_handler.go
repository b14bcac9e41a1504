package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"LocalSpot/cache"
	"LocalSpot/core/library"
	"LocalSpot/core/metadata"
	"LocalSpot/logger"

	"github.com/gorilla/mux"
)

const artworkCacheControl = "public, max-age=86400, immutable"

// LibraryHandler serves the song listing, embedded artwork and rescans.
type LibraryHandler struct {
	lib       *library.Library
	songs     *cache.SongListCache
	extractor *metadata.Extractor
}

func NewLibraryHandler(lib *library.Library, songs *cache.SongListCache, extractor *metadata.Extractor) *LibraryHandler {
	return &LibraryHandler{lib: lib, songs: songs, extractor: extractor}
}

// GetSongsHandler handles GET /api/songs.
func (h *LibraryHandler) GetSongsHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.songs.Songs(r.Context())
	if err != nil {
		status := statusForError(err)
		if status >= 500 {
			logger.Error("list songs failed", logger.ErrorField(err))
		}
		writeError(w, status, http.StatusText(status))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, songs)
}

// GetArtworkHandler handles GET /api/artwork/{id}.
func (h *LibraryHandler) GetArtworkHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	path, err := h.lib.Codec().Decode(id)
	if err != nil {
		writeEmpty(w, statusForError(err))
		return
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		writeEmpty(w, http.StatusNotFound)
		return
	}

	art, err := h.extractor.Artwork(path)
	if err != nil {
		if !errors.Is(err, metadata.ErrNoArtwork) {
			logger.Debug("artwork extraction failed",
				logger.String("id", id),
				logger.ErrorField(err))
		}
		writeEmpty(w, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", art.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("Cache-Control", artworkCacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(art.Data)
	}
}

// RescanHandler handles POST /api/library/rescan.
func (h *LibraryHandler) RescanHandler(w http.ResponseWriter, r *http.Request) {
	h.lib.Invalidate()
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
