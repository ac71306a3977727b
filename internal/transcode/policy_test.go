package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/workspace"
)

type passCall struct {
	input   string
	output  string
	profile config.Profile
}

// fakeEngine replays scripted pass results so policy decisions can be
// tested without ffmpeg.
type fakeEngine struct {
	mu      sync.Mutex
	calls   []passCall
	results [][]byte
	errs    []error
}

func (f *fakeEngine) CompressPass(ctx context.Context, inputPath, outputPath string, prof config.Profile) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, passCall{inputPath, outputPath, prof})
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, errors.New("unscripted pass")
}

func (f *fakeEngine) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return 0, errors.New("no probe in tests")
}

func testLimits() Limits {
	return Limits{
		DefaultThresholdMB: 10,
		MaxTelegramMB:      45,
		MaxCompressMB:      200,
		Default:            config.Profile{CRF: 28, Scale: 1280, Preset: "veryfast", AudioBitrate: 128},
		FirstPass:          config.Profile{CRF: 30, Scale: 960, Preset: "fast", AudioBitrate: 96},
		SecondPass:         config.Profile{CRF: 34, Scale: 640, Preset: "fast", AudioBitrate: 64},
	}
}

func videoOfMB(mb int) media.Item {
	return media.Item{Data: make([]byte, mb<<20), Type: media.Video}
}

func bytesOfMB(mb int) []byte {
	return make([]byte, mb<<20)
}

func newTestPolicy(t *testing.T, eng Transcoder) (*Policy, *workspace.Manager) {
	t.Helper()
	ws := workspace.NewManager(t.TempDir())
	return NewPolicy(testLimits(), eng, ws), ws
}

func assertNoScratchLeft(t *testing.T, ws *workspace.Manager) {
	t.Helper()
	var sessions []string
	filepath.Walk(ws.Base(), func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != ws.Base() {
			rel, _ := filepath.Rel(ws.Base(), path)
			if filepath.Dir(rel) != "." {
				sessions = append(sessions, rel)
			}
		}
		return nil
	})
	assert.Empty(t, sessions, "session dirs left behind")
}

func TestProcessPassesThroughNonVideo(t *testing.T) {
	eng := &fakeEngine{}
	p, _ := newTestPolicy(t, eng)

	photo := media.Item{Data: make([]byte, 50<<20), Type: media.Photo}
	out, err := p.Process(context.Background(), 1, photo, false)
	require.NoError(t, err)
	assert.Equal(t, photo, out)
	assert.Empty(t, eng.calls)
}

func TestProcessLeavesSmallVideoAlone(t *testing.T) {
	eng := &fakeEngine{}
	p, _ := newTestPolicy(t, eng)

	small := videoOfMB(5)
	out, err := p.Process(context.Background(), 1, small, false)
	require.NoError(t, err)
	assert.Equal(t, small, out)
	assert.Empty(t, eng.calls)
}

func TestProcessRejectsOverCeilingWithoutEncoding(t *testing.T) {
	eng := &fakeEngine{}
	p, ws := newTestPolicy(t, eng)

	out, err := p.Process(context.Background(), 1, videoOfMB(201), false)
	require.Error(t, err)
	assert.Equal(t, media.FailTooLarge, media.KindOf(err))
	assert.Empty(t, out.Data)
	assert.Empty(t, eng.calls, "no pass may run for a rejected video")
	assertNoScratchLeft(t, ws)
}

func TestDefaultPassAcceptsSmallerOutput(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(8)}}
	p, ws := newTestPolicy(t, eng)

	out, err := p.Process(context.Background(), 1, videoOfMB(20), false)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, out.SizeMB(), 0.001)
	require.Len(t, eng.calls, 1)
	assert.Equal(t, testLimits().Default, eng.calls[0].profile)
	assertNoScratchLeft(t, ws)
}

func TestDefaultPassKeepsOriginalWhenOutputInflates(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(25)}}
	p, _ := newTestPolicy(t, eng)

	in := videoOfMB(20)
	out, err := p.Process(context.Background(), 1, in, false)
	require.NoError(t, err)
	assert.Equal(t, len(in.Data), len(out.Data))
}

func TestDefaultPassKeepsOriginalOnFailure(t *testing.T) {
	eng := &fakeEngine{errs: []error{media.Fail(media.FailTranscode, "boom")}}
	p, ws := newTestPolicy(t, eng)

	in := videoOfMB(20)
	out, err := p.Process(context.Background(), 1, in, false)
	require.NoError(t, err)
	assert.Equal(t, len(in.Data), len(out.Data))
	assertNoScratchLeft(t, ws)
}

func TestNeedsWorkHonoursForce(t *testing.T) {
	p, _ := newTestPolicy(t, &fakeEngine{})

	small := videoOfMB(5)
	assert.False(t, p.NeedsWork(small, false))
	assert.True(t, p.NeedsWork(small, true))

	// Force never applies to non-video items.
	photo := media.Item{Data: make([]byte, 5<<20), Type: media.Photo}
	assert.False(t, p.NeedsWork(photo, true))
}

func TestForceCompressesUnderThreshold(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(2)}}
	p, _ := newTestPolicy(t, eng)

	out, err := p.Process(context.Background(), 1, videoOfMB(5), true)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out.SizeMB(), 0.001)
	require.Len(t, eng.calls, 1)
}

func TestAggressivePassesChainSecondFromFirstOutput(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(50), bytesOfMB(40)}}
	p, ws := newTestPolicy(t, eng)

	out, err := p.Process(context.Background(), 1, videoOfMB(60), false)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, out.SizeMB(), 0.001)

	require.Len(t, eng.calls, 2)
	assert.Equal(t, testLimits().FirstPass, eng.calls[0].profile)
	assert.Equal(t, testLimits().SecondPass, eng.calls[1].profile)
	// The second pass re-encodes the first pass's output, not the original.
	assert.Equal(t, eng.calls[0].output, eng.calls[1].input)
	assertNoScratchLeft(t, ws)
}

func TestSecondPassSkippedWhenFirstFits(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(30)}}
	p, _ := newTestPolicy(t, eng)

	out, err := p.Process(context.Background(), 1, videoOfMB(60), false)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, out.SizeMB(), 0.001)
	assert.Len(t, eng.calls, 1)
}

func TestInflatingSecondPassIsDiscarded(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(50), bytesOfMB(55)}}
	p, _ := newTestPolicy(t, eng)

	_, err := p.Process(context.Background(), 1, videoOfMB(60), false)
	require.Error(t, err)
	assert.Equal(t, media.FailCompressionInsufficient, media.KindOf(err))
}

func TestStillOverCapAfterBothPasses(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(55), bytesOfMB(48)}}
	p, ws := newTestPolicy(t, eng)

	_, err := p.Process(context.Background(), 1, videoOfMB(60), false)
	require.Error(t, err)
	assert.Equal(t, media.FailCompressionInsufficient, media.KindOf(err))
	assertNoScratchLeft(t, ws)
}

func TestFirstPassErrorPropagates(t *testing.T) {
	eng := &fakeEngine{errs: []error{media.Fail(media.FailTranscode, "encoder died")}}
	p, ws := newTestPolicy(t, eng)

	_, err := p.Process(context.Background(), 1, videoOfMB(60), false)
	require.Error(t, err)
	assert.Equal(t, media.FailTranscode, media.KindOf(err))
	assertNoScratchLeft(t, ws)
}

func TestCancelledContextStopsProcessing(t *testing.T) {
	eng := &fakeEngine{results: [][]byte{bytesOfMB(50), bytesOfMB(40)}}
	p, ws := newTestPolicy(t, eng)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, 1, videoOfMB(60), false)
	require.ErrorIs(t, err, context.Canceled)
	assertNoScratchLeft(t, ws)
}
