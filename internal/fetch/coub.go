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

	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/workspace"
)

var coubLinkRe = regexp.MustCompile(`https?://coub\.com/view/(\w+)`)

// Coub pulls the loop's video and audio streams from the public API
// and merges them with ffmpeg, looping the video until the audio ends.
type Coub struct {
	ws *workspace.Manager
}

func NewCoub(ws *workspace.Manager) *Coub {
	return &Coub{ws: ws}
}

func (c *Coub) Name() string {
	return "coub"
}

func (c *Coub) CanHandle(url string) bool {
	return coubLinkRe.MatchString(url)
}

type coubInfo struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	FileVersions struct {
		HTML5 struct {
			Video struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"video"`
			Audio struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"audio"`
		} `json:"html5"`
	} `json:"file_versions"`
}

func (c *Coub) Download(ctx context.Context, url string) ([]media.DownloadResult, error) {
	m := coubLinkRe.FindStringSubmatch(url)
	if m == nil {
		return nil, media.Fail(media.FailFetch, "no coub id in %s", url)
	}

	raw, err := fetchBytes(ctx, "https://coub.com/api/v2/coubs/"+m[1], nil)
	if err != nil {
		return nil, err
	}
	var info coubInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "parse coub API response")
	}

	videoURL := info.FileVersions.HTML5.Video.High.URL
	audioURL := info.FileVersions.HTML5.Audio.High.URL
	if videoURL == "" {
		return nil, media.Fail(media.FailFetch, "coub %s has no video version", m[1])
	}

	videoData, err := fetchBytes(ctx, videoURL, nil)
	if err != nil {
		return nil, err
	}

	// Loops without a track are delivered as-is.
	if audioURL == "" {
		return []media.DownloadResult{{Data: videoData, Type: media.Video, Caption: info.Title}}, nil
	}

	audioData, err := fetchBytes(ctx, audioURL, nil)
	if err != nil {
		return nil, err
	}

	merged, err := c.mergeLoop(ctx, videoData, audioData)
	if err != nil {
		return nil, err
	}
	return []media.DownloadResult{{Data: merged, Type: media.Video, Caption: info.Title}}, nil
}

// mergeLoop loops the short video stream until the audio track ends.
func (c *Coub) mergeLoop(ctx context.Context, videoData, audioData []byte) ([]byte, error) {
	dir, err := c.ws.CreateSessionDir(0)
	if err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "scratch allocation")
	}
	defer c.ws.DestroySessionDir(dir)

	videoPath := filepath.Join(dir, "video.mp4")
	audioPath := filepath.Join(dir, "audio.mp3")
	outputPath := filepath.Join(dir, "merged.mp4")

	if err := os.WriteFile(videoPath, videoData, 0644); err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "write video stream")
	}
	if err := os.WriteFile(audioPath, audioData, 0644); err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "write audio stream")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-stream_loop", "-1",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errStr := stderr.String()
		if len(errStr) > 500 {
			errStr = errStr[len(errStr)-500:]
		}
		log.Printf("[Coub] ffmpeg merge failed: %s", errStr)
		return nil, media.FailWrap(media.FailFetch, err, "merge streams")
	}

	return os.ReadFile(outputPath)
}
