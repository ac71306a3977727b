package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/ndmitry/grabit/internal/alerts"
	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/util"
	"github.com/ndmitry/grabit/internal/workspace"
)

var youtubeLinkRe = regexp.MustCompile(`https?://(?:www\.|m\.)?(?:youtube\.com/(?:shorts/|watch\?v=)|youtu\.be/)[\w-]+`)

// YouTube downloads short clips via yt-dlp. Anything longer than the
// short-form cutoff is rejected before the download starts.
type YouTube struct {
	ws *workspace.Manager
}

func NewYouTube(ws *workspace.Manager) *YouTube {
	return &YouTube{ws: ws}
}

func (y *YouTube) Name() string {
	return "youtube"
}

func (y *YouTube) CanHandle(url string) bool {
	return youtubeLinkRe.MatchString(url)
}

type ytdlpInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	IsLive   bool    `json:"is_live"`
}

func (y *YouTube) Download(ctx context.Context, url string) ([]media.DownloadResult, error) {
	info, err := y.probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.IsLive {
		return nil, media.Fail(media.FailFetch, "live streams are not downloadable")
	}
	if info.Duration > float64(config.MaxShortDurationSec) {
		return nil, media.Fail(media.FailFetch,
			"video is %.0fs long, only clips up to %ds are supported",
			info.Duration, config.MaxShortDurationSec)
	}

	dir, err := y.ws.CreateSessionDir(0)
	if err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "scratch allocation")
	}
	defer y.ws.DestroySessionDir(dir)

	outputPath := filepath.Join(dir, "clip.mp4")
	data, err := y.runYtdlp(ctx, url, outputPath, false)
	if err != nil {
		return nil, err
	}
	return []media.DownloadResult{{Data: data, Type: media.Video, Caption: info.Title}}, nil
}

func (y *YouTube) probe(ctx context.Context, url string) (*ytdlpInfo, error) {
	args := append([]string{}, util.GetCookiesArgs()...)
	args = append(args, util.GetProxyArgs()...)
	args = append(args, "-J", "--no-playlist", url)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logYtdlpTail("probe", stderr.String())
		return nil, media.FailWrap(media.FailFetch, err, "probe metadata")
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "parse metadata")
	}
	return &info, nil
}

func (y *YouTube) runYtdlp(ctx context.Context, url, outputPath string, useCookies bool) ([]byte, error) {
	var args []string
	if useCookies {
		args = append(args, util.GetCookiesArgs()...)
	}
	args = append(args, util.GetProxyArgs()...)
	args = append(args,
		"--no-playlist",
		"-f", "bv[vcodec^=avc]+ba[acodec^=mp4a]/bv+ba/b",
		"--merge-output-format", "mp4",
		"-o", outputPath,
		url,
	)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errStr := stderr.String()
		logYtdlpTail("download", errStr)
		if !useCookies && util.NeedsCookiesRetry(errStr) {
			if util.HasCookiesFile() {
				log.Printf("[YouTube] bot detection hit, retrying with cookies")
				return y.runYtdlp(ctx, url, outputPath, true)
			}
			alerts.CookieIssue("YouTube bot detection and no cookies.txt on disk")
		}
		return nil, media.FailWrap(media.FailFetch, err, "yt-dlp download")
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "read downloaded clip")
	}
	return data, nil
}

func logYtdlpTail(stage, stderr string) {
	if len(stderr) > 500 {
		stderr = stderr[len(stderr)-500:]
	}
	log.Printf("[YouTube] yt-dlp %s failed: %s", stage, stderr)
}
