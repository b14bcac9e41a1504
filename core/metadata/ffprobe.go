package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrFFprobeUnavailable 表示找不到 ffprobe 可执行文件
var ErrFFprobeUnavailable = errors.New("ffprobe not available")

const ffprobeTimeout = 10 * time.Second

// DurationSource 返回音频文件的时长（秒）
type DurationSource interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ffprobeOutput ffprobe -of json 输出中我们关心的部分
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// FFprobe 通过 ffprobe 读取时长
type FFprobe struct {
	binary string
	err    error
}

// NewFFprobe 创建 ffprobe 时长探测器，binary 为空时使用 PATH 中的 ffprobe
func NewFFprobe(binary string) *FFprobe {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return &FFprobe{binary: bin, err: fmt.Errorf("%w: %s", ErrFFprobeUnavailable, bin)}
	}
	return &FFprobe{binary: resolved}
}

// Available 报告 ffprobe 是否可用
func (p *FFprobe) Available() bool {
	return p.err == nil
}

// Duration 使用 ffprobe 获取音频时长
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ffprobeTimeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
		}
		return 0, fmt.Errorf("ffprobe failed for %s: %w: %s", path, err, msg)
	}
	return parseFFprobeDuration(out.Bytes())
}

func parseFFprobeDuration(data []byte) (float64, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return 0, fmt.Errorf("unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, errors.New("duration not found in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probeData.Format.Duration, err)
	}
	return duration, nil
}
