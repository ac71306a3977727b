package transcode

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/workspace"
)

// Limits bundles the size thresholds and pass profiles the policy
// works with, so tests can pin values without touching the env.
type Limits struct {
	DefaultThresholdMB float64
	MaxTelegramMB      float64
	MaxCompressMB      float64

	Default    config.Profile
	FirstPass  config.Profile
	SecondPass config.Profile
}

func LimitsFromConfig() Limits {
	return Limits{
		DefaultThresholdMB: config.DefaultCompressThresholdMB,
		MaxTelegramMB:      config.MaxTelegramSizeMB,
		MaxCompressMB:      config.MaxCompressSizeMB,
		Default:            config.DefaultProfile,
		FirstPass:          config.FirstPassProfile,
		SecondPass:         config.SecondPassProfile,
	}
}

// Policy decides per media item whether and how aggressively to
// re-encode, and owns the scratch-directory lifecycle around the
// engine passes.
type Policy struct {
	lim Limits
	eng Transcoder
	ws  *workspace.Manager
}

func NewPolicy(lim Limits, eng Transcoder, ws *workspace.Manager) *Policy {
	return &Policy{lim: lim, eng: eng, ws: ws}
}

// NeedsWork reports whether Process would attempt any compression for
// the item. The bot uses it to decide when to show a compressing
// status.
func (p *Policy) NeedsWork(it media.Item, force bool) bool {
	if it.Type != media.Video {
		return false
	}
	size := it.SizeMB()
	return force || size > p.lim.DefaultThresholdMB || size > p.lim.MaxTelegramMB
}

// Process runs the adaptation policy for one item and returns the item
// to deliver. Non-video items pass through untouched. Video over the
// hard ceiling is rejected outright. Each pass's output replaces its
// input only when strictly smaller, and anything still over the
// platform cap after all passes is dropped as insufficient.
func (p *Policy) Process(ctx context.Context, userID int64, it media.Item, force bool) (media.Item, error) {
	if it.Type != media.Video {
		return it, nil
	}

	size := it.SizeMB()
	if size > p.lim.MaxCompressMB {
		return media.Item{}, media.Fail(media.FailTooLarge, "video is %.1fMB, ceiling is %.0fMB", size, p.lim.MaxCompressMB)
	}

	if !p.NeedsWork(it, force) {
		return it, nil
	}

	dir, err := p.ws.CreateSessionDir(userID)
	if err != nil {
		return media.Item{}, media.FailWrap(media.FailTranscode, err, "scratch allocation")
	}
	defer p.ws.DestroySessionDir(dir)

	inputPath := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(inputPath, it.Data, 0644); err != nil {
		return media.Item{}, media.FailWrap(media.FailTranscode, err, "write input")
	}

	if dur, err := p.eng.ProbeDuration(ctx, inputPath); err == nil {
		log.Printf("[Policy] Compressing %.1fs video, %.2fMB", dur, size)
	}

	if size <= p.lim.MaxTelegramMB {
		return p.defaultPass(ctx, dir, inputPath, it), nil
	}
	return p.aggressivePasses(ctx, dir, inputPath, it)
}

// defaultPass is the cheap cleanup pass for videos that already fit
// the platform cap. A failed or inflating pass falls back to the
// original bytes.
func (p *Policy) defaultPass(ctx context.Context, dir, inputPath string, it media.Item) media.Item {
	out := filepath.Join(dir, "pass_default.mp4")
	data, err := p.eng.CompressPass(ctx, inputPath, out, p.lim.Default)
	if err != nil {
		log.Printf("[Policy] Default pass failed, keeping original: %v", err)
		return it
	}
	if len(data) < len(it.Data) {
		log.Printf("[Policy] Default pass %.2fMB -> %.2fMB", it.SizeMB(), mb(data))
		return it.WithData(data)
	}
	log.Printf("[Policy] Default pass did not shrink the file, keeping original")
	return it
}

func (p *Policy) aggressivePasses(ctx context.Context, dir, inputPath string, it media.Item) (media.Item, error) {
	firstOut := filepath.Join(dir, "pass_1.mp4")
	firstData, err := p.eng.CompressPass(ctx, inputPath, firstOut, p.lim.FirstPass)
	if err != nil {
		if ctx.Err() != nil {
			return media.Item{}, ctx.Err()
		}
		return media.Item{}, err
	}

	result := it.Data
	if len(firstData) < len(result) {
		result = firstData
	}
	log.Printf("[Policy] First pass %.2fMB -> %.2fMB", it.SizeMB(), mb(firstData))

	if mb(result) > p.lim.MaxTelegramMB {
		// Chained: the second pass re-encodes the first pass's output
		// file, not the original.
		secondOut := filepath.Join(dir, "pass_2.mp4")
		secondData, err := p.eng.CompressPass(ctx, firstOut, secondOut, p.lim.SecondPass)
		if err != nil {
			if ctx.Err() != nil {
				return media.Item{}, ctx.Err()
			}
			log.Printf("[Policy] Second pass failed: %v", err)
		} else {
			log.Printf("[Policy] Second pass %.2fMB -> %.2fMB", mb(firstData), mb(secondData))
			if len(secondData) < len(firstData) && len(secondData) < len(result) {
				result = secondData
			}
		}
	}

	if mb(result) > p.lim.MaxTelegramMB {
		return media.Item{}, media.Fail(media.FailCompressionInsufficient,
			"still %.1fMB after compression, cap is %.0fMB", mb(result), p.lim.MaxTelegramMB)
	}
	return it.WithData(result), nil
}

func mb(data []byte) float64 {
	return float64(len(data)) / (1 << 20)
}
