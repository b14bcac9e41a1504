package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置，启动时读取一次，之后 LibraryRoot 不再改变
type Config struct {
	LibraryRoot string // 音乐目录的绝对路径（已解析符号链接）
	ListenAddr  string
	WebAppDir   string // 前端静态文件目录
	FFprobePath string // ffprobe 可执行文件，用于读取音频时长

	// 登录配置，AuthPassword 和 AuthPasswordHash 都为空时不启用登录
	AuthPassword     string
	AuthPasswordHash string // bcrypt 哈希，优先于 AuthPassword
	AuthSecret       string
	SessionTTL       time.Duration

	LoginRatePerMinute int

	// 目录监听
	WatchLibrary  bool
	WatchDebounce time.Duration

	// Redis配置，RedisHost 为空时不启用标签缓存
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TagCacheTTL   time.Duration

	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt 获取整数类型的环境变量，不存在或无法解析时返回默认值
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// defaultLibraryRoot 默认为 ~/Music，取不到用户目录时为 ./Music
func defaultLibraryRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "Music"
	}
	return filepath.Join(home, "Music")
}

// CanonicalRoot 转为绝对路径，目录存在时解析符号链接
func CanonicalRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Load 从环境变量（包括 .env 文件）加载配置
func Load() *Config {
	// godotenv.Load() 不会覆盖已有的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv 只从当前环境变量构建配置，不读取 .env 文件
func FromEnv() *Config {
	return &Config{
		LibraryRoot: CanonicalRoot(getEnv("LIBRARY_ROOT", defaultLibraryRoot())),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		WebAppDir:   getEnv("WEB_APP_DIR", filepath.Join("web", "ui")),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		AuthPassword:     os.Getenv("AUTH_PASSWORD"),
		AuthPasswordHash: os.Getenv("AUTH_PASSWORD_HASH"),
		AuthSecret:       getEnv("AUTH_SECRET", "local-spotify-default-secret-change-me"),
		SessionTTL:       getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),

		WatchLibrary:  getEnvBool("WATCH_LIBRARY", true),
		WatchDebounce: getEnvDuration("WATCH_DEBOUNCE", 2*time.Second),

		RedisHost:     getEnv("REDIS_HOST", ""), // 为空则不启用缓存
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		TagCacheTTL:   getEnvDuration("TAG_CACHE_TTL", 24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// AuthEnabled 是否配置了登录密码
func (c *Config) AuthEnabled() bool {
	return c.AuthPassword != "" || c.AuthPasswordHash != ""
}

// RedisEnabled 是否需要连接 Redis 标签缓存
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
