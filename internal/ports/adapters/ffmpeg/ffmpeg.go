// Package ffmpeg shells out to ffmpeg/ffprobe for probing, frame extraction
// and the re-encode operations the alignment pipeline needs.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

var _ ports.MediaTool = (*Adapter)(nil)

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe reads container and first-video-stream parameters. Frame count comes
// from the stream when the muxer recorded it and is otherwise derived as
// round(duration * rate). Degenerate frame-rate metadata probes as rate 0;
// callers substitute a fallback rate instead of failing the whole run.
func (a *Adapter) Probe(ctx context.Context, path string) (types.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe %s: %w\n%s", path, err, string(b))
	}

	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.VideoInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	return infoFromProbe(path, out)
}

func infoFromProbe(path string, out probeOutput) (types.VideoInfo, error) {
	info := types.VideoInfo{Path: path}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return types.VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}

	info.Width = video.Width
	info.Height = video.Height
	info.PixFmt = video.PixFmt
	info.FrameRate = parseRate(video.AvgFrameRate)
	if info.FrameRate <= 0 {
		info.FrameRate = parseRate(video.RFrameRate)
	}

	if n, err := strconv.Atoi(video.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.Duration > 0 && info.FrameRate > 0 {
		info.FrameCount = int(info.Duration*info.FrameRate + 0.5)
	}

	if info.FrameCount <= 0 {
		return types.VideoInfo{}, fmt.Errorf("cannot determine frame count for %s", path)
	}
	return info, nil
}

// parseRate decodes an ffprobe rational like "30000/1001". Returns 0 for
// missing or zero-denominator values.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// ExtractFrames decodes the frames at the given indices into a temp dir as
// PNG and loads them back. One ffmpeg invocation regardless of count.
func (a *Adapter) ExtractFrames(ctx context.Context, path string, indices []int) ([]image.Image, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	terms := make([]string, 0, len(sorted))
	for _, idx := range sorted {
		if idx < 0 {
			continue
		}
		terms = append(terms, fmt.Sprintf("eq(n\\,%d)", idx))
	}
	if len(terms) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "valign-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", path,
		"-vf", "select='"+strings.Join(terms, "+")+"'",
		"-vsync", "0",
		filepath.Join(dir, "frame_%06d.png"),
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extract frames: %w\n%s", err, string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	imgs := make([]image.Image, 0, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

// TrimFrames re-encodes exactly [startFrame, startFrame+frameCount) with
// timestamps rebuilt from zero so the cut is frame-accurate.
func (a *Adapter) TrimFrames(ctx context.Context, inPath, outPath string, startFrame, frameCount int, frameRate float64) error {
	end := startFrame + frameCount - 1
	filter := fmt.Sprintf("select='between(n\\,%d\\,%d)',setpts=N/FR/TB", startFrame, end)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vf", filter,
		"-vsync", "0",
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "slow",
		"-an",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg trim frames: %w\n%s", err, string(b))
	}
	return nil
}

// ForceFrameCount re-encodes with a hard output frame cap and forced rate.
// Second pass after TrimFrames when timebase rounding drops or adds a frame.
func (a *Adapter) ForceFrameCount(ctx context.Context, inPath, outPath string, frames int, frameRate float64) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-frames:v", strconv.Itoa(frames),
		"-r", fmtRate(frameRate),
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "slow",
		"-an",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg force frame count: %w\n%s", err, string(b))
	}
	return nil
}

// Normalize re-encodes to the target rate and resolution with lanczos
// scaling and yuv420p output.
func (a *Adapter) Normalize(ctx context.Context, inPath, outPath string, frameRate float64, width, height int) error {
	filter := fmt.Sprintf("fps=%s,scale=%dx%d:flags=lanczos", fmtRate(frameRate), width, height)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vf", filter,
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "fast",
		"-an",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg normalize: %w\n%s", err, string(b))
	}
	return nil
}

// TrimSeconds cuts by wall-clock time. duration <= 0 keeps the remainder.
func (a *Adapter) TrimSeconds(ctx context.Context, inPath, outPath string, startSec, duration float64) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(startSec),
		"-i", inPath,
	}
	if duration > 0 {
		args = append(args, "-t", fmtSeconds(duration))
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "fast",
		"-an",
		outPath,
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg trim seconds: %w\n%s", err, string(b))
	}
	return nil
}

// BurnTimestamps draws the presentation timestamp near the top-left corner,
// where the OCR crop expects it.
func (a *Adapter) BurnTimestamps(ctx context.Context, inPath, outPath string) error {
	filter := `drawtext=text='%{pts\:hms\:6}':x=10:y=40:fontsize=48:fontcolor=white:box=1:boxcolor=black@0.7:boxborderw=8`

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "fast",
		"-an",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg burn timestamps: %w\n%s", err, string(b))
	}
	return nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func fmtRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
