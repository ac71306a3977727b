package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ndmitry/grabit/internal/media"
)

var instagramLinkRe = regexp.MustCompile(`https?://(?:www\.)?instagram\.com/(?:[\w.]+/)?(?:p|reel|reels)/([A-Za-z0-9_-]+)`)

const instagramDocID = "8845758582119845"

// Instagram resolves posts and reels through the public GraphQL
// endpoint. Carousels expand into one result per slide.
type Instagram struct{}

func NewInstagram() *Instagram {
	return &Instagram{}
}

func (i *Instagram) Name() string {
	return "instagram"
}

func (i *Instagram) CanHandle(url string) bool {
	return instagramLinkRe.MatchString(url)
}

type instagramNode struct {
	IsVideo    bool   `json:"is_video"`
	VideoURL   string `json:"video_url"`
	DisplayURL string `json:"display_url"`
}

type instagramMedia struct {
	instagramNode
	EdgeMediaToCaption struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
	EdgeSidecarToChildren struct {
		Edges []struct {
			Node instagramNode `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

type instagramResponse struct {
	Data struct {
		ShortcodeMedia *instagramMedia `json:"xdt_shortcode_media"`
	} `json:"data"`
}

func (i *Instagram) Download(ctx context.Context, rawURL string) ([]media.DownloadResult, error) {
	m := instagramLinkRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, media.Fail(media.FailFetch, "no instagram shortcode in %s", rawURL)
	}

	post, err := i.lookup(ctx, m[1])
	if err != nil {
		return nil, err
	}

	caption := ""
	if len(post.EdgeMediaToCaption.Edges) > 0 {
		caption = post.EdgeMediaToCaption.Edges[0].Node.Text
	}

	nodes := []instagramNode{post.instagramNode}
	if children := post.EdgeSidecarToChildren.Edges; len(children) > 0 {
		nodes = nodes[:0]
		for _, child := range children {
			nodes = append(nodes, child.Node)
		}
	}

	var results []media.DownloadResult
	for _, node := range nodes {
		src := node.DisplayURL
		kind := media.Photo
		if node.IsVideo {
			src = node.VideoURL
			kind = media.Video
		}
		if src == "" {
			continue
		}
		data, err := fetchBytes(ctx, src, map[string]string{
			"User-Agent": firefoxUA,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, media.DownloadResult{Data: data, Type: kind})
	}
	if len(results) == 0 {
		return nil, media.Fail(media.FailFetch, "instagram post %s has no downloadable media", m[1])
	}
	// Caption rides on the first slide only.
	results[0].Caption = caption
	return results, nil
}

func (i *Instagram) lookup(ctx context.Context, shortcode string) (*instagramMedia, error) {
	variables, _ := json.Marshal(map[string]string{"shortcode": shortcode})
	form := url.Values{
		"doc_id":    {instagramDocID},
		"variables": {string(variables)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://www.instagram.com/graphql/query", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "build graphql request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", firefoxUA)
	req.Header.Set("X-IG-App-ID", "936619743392459")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "graphql request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, media.Fail(media.FailFetch, "instagram graphql returned %d", resp.StatusCode)
	}

	var parsed instagramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, media.FailWrap(media.FailFetch, err, "parse graphql response")
	}
	if parsed.Data.ShortcodeMedia == nil {
		return nil, media.Fail(media.FailFetch, "instagram post %s not found", shortcode)
	}
	return parsed.Data.ShortcodeMedia, nil
}
