package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LocalSpot/cache"
	"LocalSpot/config"
	"LocalSpot/core/auth"
	"LocalSpot/core/library"
	"LocalSpot/core/metadata"
	"LocalSpot/core/stream"
	"LocalSpot/logger"
	"LocalSpot/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server 音乐库的 HTTP 服务
type Server struct {
	hub         *EventHub
	handler     http.Handler
	unsubscribe func()
}

// New 创建处理器和中间件，调用 Close 释放事件中心
func New(cfg *config.Config, lib *library.Library, songs *cache.SongListCache, extractor *metadata.Extractor, streamOpts stream.Options) (*Server, error) {
	verifier, err := auth.NewVerifier(cfg.AuthPassword, cfg.AuthPasswordHash)
	if err != nil {
		return nil, fmt.Errorf("init password verifier: %w", err)
	}
	sessions := auth.NewSessionManager(cfg.AuthSecret, cfg.SessionTTL)

	// 初始化处理器
	authHandler := NewAuthHandler(verifier, sessions, cfg.LoginRatePerMinute)
	libraryHandler := NewLibraryHandler(lib, songs, extractor)
	streamHandler := NewStreamHandler(lib.Codec(), streamOpts)

	// 曲库失效时推送给 websocket 客户端
	hub := NewEventHub()
	go hub.Run()
	unsubscribe := lib.Subscribe(func() { hub.Publish(EventLibraryInvalidated) })

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()
	router.Handle("/stream/{id}", streamHandler).Methods(http.MethodGet, http.MethodHead)
	router.PathPrefix("/stream/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmpty(w, http.StatusNotFound)
	})

	// 曲库相关的API端点
	router.HandleFunc("/api/songs", libraryHandler.GetSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/artwork/{id}", libraryHandler.GetArtworkHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/library/rescan", libraryHandler.RescanHandler).Methods(http.MethodPost)
	router.Handle("/api/events", hub).Methods(http.MethodGet)

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", authHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", authHandler.LogoutHandler).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Frontend UI serving
	router.PathPrefix("/").Handler(NewStaticHandler(cfg.WebAppDir))

	handler := requestIDMiddleware(recoveryMiddleware(loggingMiddleware(metricsMiddleware(corsMiddleware(authHandler.Middleware(router))))))

	return &Server{hub: hub, handler: handler, unsubscribe: unsubscribe}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close 断开所有事件订阅者
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

// Start 根据配置初始化所有组件并启动 HTTP 服务，收到 SIGINT 或 SIGTERM 后退出
func Start(cfg *config.Config) error {
	metrics.Register(prometheus.DefaultRegisterer, stream.OpenFiles)

	codec := library.NewCodec(cfg.LibraryRoot)
	lib := library.New(codec)

	// Redis 标签缓存，连接失败时不启用
	var store metadata.TagStore
	if cfg.RedisEnabled() {
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("tag cache disabled", logger.ErrorField(err))
		} else {
			defer client.Close()
			store = cache.NewTagCache(client, cfg.TagCacheTTL)
			logger.Info("tag cache connected",
				logger.String("host", cfg.RedisHost),
				logger.Int("db", cfg.RedisDB))
		}
	}
	ffprobe := metadata.NewFFprobe(cfg.FFprobePath)
	if !ffprobe.Available() {
		logger.Warn("ffprobe not found, durations come from container headers",
			logger.String("ffprobe", cfg.FFprobePath))
	}
	extractor := metadata.NewExtractor(codec.EncodePath, store, metadata.WithDurationSource(ffprobe))
	songs := cache.NewSongListCache(lib, extractor, 0)

	srv, err := New(cfg, lib, songs, extractor, stream.Options{})
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchLibrary {
		watcher, err := library.NewWatcher(lib, cfg.WatchDebounce)
		if err != nil {
			logger.Warn("library watcher disabled", logger.ErrorField(err))
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Warn("library watcher stopped", logger.ErrorField(err))
				}
			}()
		}
	}

	// 预先扫描曲库，第一次请求列表时不用等待
	go func() {
		if _, err := lib.Get(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial library scan failed", logger.ErrorField(err))
		}
	}()

	// 设置服务器超时，不设 WriteTimeout，暂停的播放器会一直保持连接
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 在 goroutine 中启动服务器
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logger.String("addr", cfg.ListenAddr),
			logger.String("libraryRoot", cfg.LibraryRoot),
			logger.Bool("auth", cfg.AuthEnabled()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	// 优雅关闭
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		// 暂停中的音频流不会自己结束，强制关闭
		logger.Warn("forcing open connections closed", logger.ErrorField(err))
		_ = httpServer.Close()
	}
	logger.Info("server stopped")
	return nil
}
