package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"LocalSpot/core/library"
	"LocalSpot/core/stream"
	"LocalSpot/logger"
	"LocalSpot/metrics"

	"github.com/gorilla/mux"
)

const streamCacheControl = "private, max-age=3600"

// StreamHandler 处理 GET /stream/{id}，支持单个 Range
type StreamHandler struct {
	codec *library.Codec
	opts  stream.Options
}

// NewStreamHandler 创建音频流处理器，id 通过 codec 解析
func NewStreamHandler(codec *library.Codec, opts stream.Options) *StreamHandler {
	return &StreamHandler{codec: codec, opts: opts}
}

// ServeHTTP 解析 id，检查文件，按 Range 头输出对应字节。
// 开始输出之前的所有错误响应都没有响应体
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	path, err := h.codec.Decode(id)
	if err != nil {
		h.reject(w, r, id, err)
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		h.reject(w, r, id, library.ErrNotFound)
		return
	}
	size := info.Size()

	rng, partial, err := stream.ParseRange(r.Header.Get("Range"), size)
	if err != nil {
		metrics.StreamOutcomesTotal.WithLabelValues("unsatisfiable").Inc()
		logger.Debug("unsatisfiable range",
			logger.String("id", id),
			logger.String("range", r.Header.Get("Range")),
			logger.Int64("size", size))
		w.Header().Set("Content-Range", stream.UnsatisfiedContentRange(size))
		writeEmpty(w, statusForError(err))
		return
	}

	var sess *stream.Session
	if r.Method != http.MethodHead {
		sess, err = stream.Open(r.Context(), path, rng, h.opts)
		if err != nil {
			logger.Warn("open track failed",
				logger.String("id", id),
				logger.ErrorField(err))
			h.reject(w, r, id, library.ErrNotFound)
			return
		}
		defer sess.Close()
	}

	hdr := w.Header()
	hdr.Set("Accept-Ranges", "bytes")
	hdr.Set("Content-Type", stream.ContentType(path))
	hdr.Set("Cache-Control", streamCacheControl)
	hdr.Set("Content-Length", strconv.FormatInt(rng.Len(), 10))
	status := http.StatusOK
	outcome := "full"
	if partial {
		hdr.Set("Content-Range", rng.ContentRange(size))
		status = http.StatusPartialContent
		outcome = "partial"
	}
	w.WriteHeader(status)
	if sess == nil {
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()
	start := time.Now()

	n, err := sess.WriteTo(w)
	metrics.StreamedBytesTotal.Add(float64(n))

	switch {
	case err == nil:
		metrics.StreamOutcomesTotal.WithLabelValues(outcome).Inc()
	case errors.Is(err, stream.ErrStreamIO):
		metrics.StreamOutcomesTotal.WithLabelValues("io_error").Inc()
		logger.Error("stream aborted by read error",
			logger.String("id", id),
			logger.String("path", path),
			logger.Int64("delivered", n),
			logger.Int64("expected", rng.Len()),
			logger.ErrorField(err))
	default:
		metrics.StreamOutcomesTotal.WithLabelValues("aborted").Inc()
		logger.Debug("client stopped stream",
			logger.String("id", id),
			logger.Int64("delivered", n),
			logger.Int64("expected", rng.Len()),
			logger.Duration("elapsed", time.Since(start)),
			logger.ErrorField(err))
	}
}

func (h *StreamHandler) reject(w http.ResponseWriter, r *http.Request, id string, err error) {
	metrics.StreamOutcomesTotal.WithLabelValues("not_found").Inc()
	if errors.Is(err, library.ErrForbidden) {
		logger.Warn("rejected id outside library root",
			logger.String("id", id),
			logger.String("remoteAddr", clientIP(r)))
	}
	writeEmpty(w, statusForError(err))
}
