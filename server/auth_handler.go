package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"LocalSpot/core/auth"
	"LocalSpot/logger"

	"golang.org/x/time/rate"
)

const maxLoginBody = 4 << 10

// LoginRequest 登录请求体
type LoginRequest struct {
	Password string `json:"password"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// AuthHandler 处理登录登出，并拦截未登录的请求
type AuthHandler struct {
	verifier *auth.Verifier
	sessions *auth.SessionManager
	limiter  *ipLimiter
}

func NewAuthHandler(verifier *auth.Verifier, sessions *auth.SessionManager, perMinute int) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		sessions: sessions,
		limiter:  newIPLimiter(perMinute),
	}
}

// LoginHandler 处理用户登录
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	ip := clientIP(r)
	if !h.limiter.allow(ip) {
		logger.Warn("login rate limited", logger.String("clientIP", ip))
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	// 请求体缺失或格式错误时按空密码处理
	var req LoginRequest
	_ = json.NewDecoder(io.LimitReader(r.Body, maxLoginBody)).Decode(&req)

	if h.verifier.Enabled() && !h.verifier.Check(req.Password) {
		logger.Warn("login failed", logger.String("clientIP", ip))
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, err := h.sessions.Issue()
	if err != nil {
		logger.Error("issue session failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	logger.Info("login succeeded", logger.String("clientIP", ip))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// LogoutHandler 处理用户登出
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Middleware 配置了密码时要求有效的会话 cookie。
// API 和音频流请求返回 401，页面请求重定向到 /login
func (h *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.verifier.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if c, err := r.Cookie(auth.CookieName); err == nil {
			if err := h.sessions.Verify(c.Value); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/stream/") {
			writeEmpty(w, http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func isPublicPath(path string) bool {
	return path == "/login" || strings.HasPrefix(path, "/api/auth/") || path == "/metrics" || path == "/favicon.ico"
}

// ipLimiter 每个客户端地址一个令牌桶
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return &ipLimiter{limit: rate.Inf}
	}
	return &ipLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > 10*time.Minute {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > 10*time.Minute {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
