package fetch

import (
	"context"
	"net/http"
	"regexp"

	"github.com/ndmitry/grabit/internal/media"
)

var (
	tiktokLinkRe    = regexp.MustCompile(`https?://(?:vt\.)?(?:www\.)?tiktok\.com/[\w\-/.@]+`)
	tiktokShortHost = regexp.MustCompile(`https?://(?:v[mt]\.tiktok|[a-zA-Z0-9_-]+\.douyin)\.com/`)
	tiktokVideoIDRe = regexp.MustCompile(`/video/(\d+)`)
)

// TikTok downloads via the ssstik CDN mirror after resolving share
// links and extracting the numeric video id.
type TikTok struct{}

func NewTikTok() *TikTok {
	return &TikTok{}
}

func (t *TikTok) Name() string {
	return "tiktok"
}

func (t *TikTok) CanHandle(url string) bool {
	return tiktokLinkRe.MatchString(url) || tiktokShortHost.MatchString(url)
}

func (t *TikTok) Download(ctx context.Context, url string) ([]media.DownloadResult, error) {
	if tiktokShortHost.MatchString(url) && !tiktokVideoIDRe.MatchString(url) {
		resolved, err := resolveRedirect(ctx, url)
		if err != nil {
			return nil, media.FailWrap(media.FailFetch, err, "resolve short link")
		}
		url = resolved
	}

	m := tiktokVideoIDRe.FindStringSubmatch(url)
	if m == nil {
		return nil, media.Fail(media.FailFetch, "no video id in %s", url)
	}
	videoID := m[1]

	data, err := fetchBytes(ctx, "https://tikcdn.io/ssstik/"+videoID, map[string]string{
		"User-Agent": firefoxUA,
		"Referer":    "https://www.tiktok.com/",
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, media.Fail(media.FailFetch, "empty response for video %s", videoID)
	}

	return []media.DownloadResult{{Data: data, Type: media.Video}}, nil
}

// resolveRedirect follows share-link redirects and returns the final
// URL without downloading the body.
func resolveRedirect(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", firefoxUA)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return resp.Request.URL.String(), nil
}
