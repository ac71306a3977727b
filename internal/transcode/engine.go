package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sync/semaphore"

	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/media"
)

// Transcoder runs one re-encode pass per call. Satisfied by Engine;
// tests substitute fakes.
type Transcoder interface {
	CompressPass(ctx context.Context, inputPath, outputPath string, prof config.Profile) ([]byte, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Engine shells out to ffmpeg/ffprobe. A weighted semaphore caps
// concurrent encodes: encoding is CPU-bound and must not oversubscribe
// the host no matter how many downloads are admitted upstream.
type Engine struct {
	sem *semaphore.Weighted
}

func NewEngine(concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{sem: semaphore.NewWeighted(int64(concurrency))}
}

// CompressPass re-encodes inputPath into outputPath using the profile
// and returns the encoded bytes. The scale filter is skipped when the
// input's long edge already fits the profile target; videos are never
// upscaled.
func (e *Engine) CompressPass(ctx context.Context, inputPath, outputPath string, prof config.Profile) ([]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	applyScale := true
	if w, h, err := probeDimensions(ctx, inputPath); err == nil {
		long := w
		if h > long {
			long = h
		}
		applyScale = long > prof.Scale
		log.Printf("[Transcode] Input %dx%d, scale filter: %v", w, h, applyScale)
	} else {
		log.Printf("[Transcode] Dimension probe failed, scaling anyway: %v", err)
	}

	args := BuildCompressArgs(inputPath, outputPath, prof, applyScale)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errStr := stderr.String()
		if len(errStr) > 500 {
			errStr = errStr[len(errStr)-500:]
		}
		log.Printf("[Transcode] ffmpeg failed. Last 500 chars: %s", errStr)
		return nil, media.FailWrap(media.FailTranscode, err, "ffmpeg exit")
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, media.FailWrap(media.FailTranscode, err, "output file missing")
	}
	return data, nil
}

// BuildCompressArgs assembles the ffmpeg argument list for a single
// pass. Kept separate so the exact wire arguments stay testable.
func BuildCompressArgs(inputPath, outputPath string, prof config.Profile, applyScale bool) []string {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", prof.Preset,
		"-crf", strconv.Itoa(prof.CRF),
	}
	if applyScale {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2:flags=lanczos", prof.Scale))
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", prof.AudioBitrate),
		"-ac", "2",
		"-ar", "44100",
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}

// ProbeDuration reads the container duration in seconds. Callers treat
// failure as "unknown" and carry on.
func (e *Engine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	dur, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return dur, nil
}

func probeDimensions(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-select_streams", "v:0",
		"-print_format", "json",
		"-show_entries", "stream=width,height",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 || probe.Streams[0].Width == 0 {
		return 0, 0, fmt.Errorf("no video stream in %s", path)
	}
	return probe.Streams[0].Width, probe.Streams[0].Height, nil
}
