package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ndmitry/grabit/internal/media"
)

// Fetcher turns a URL it recognizes into raw media blobs. The
// dispatcher is oblivious to which concrete fetcher serves a request;
// new sources are added by appending an implementation to the list.
type Fetcher interface {
	Name() string
	CanHandle(url string) bool
	Download(ctx context.Context, url string) ([]media.DownloadResult, error)
}

// Select returns the first fetcher whose CanHandle matches, or nil.
// Order in the slice is priority order.
func Select(fetchers []Fetcher, url string) Fetcher {
	for _, f := range fetchers {
		if f.CanHandle(url) {
			return f
		}
	}
	return nil
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

const firefoxUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0"

// fetchBytes downloads a URL with optional headers and returns the
// body. Shared by the HTTP-based fetchers.
func fetchBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, media.Fail(media.FailFetch, "HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
