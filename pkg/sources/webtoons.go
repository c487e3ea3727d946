package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
)

// episodePageSize asks the API for every episode in one response
const episodePageSize = 99999

type episode struct {
	EpisodeNo    int    `json:"episodeNo"`
	EpisodeTitle string `json:"episodeTitle"`
	ViewerLink   string `json:"viewerLink"`
}

type episodesResponse struct {
	Result struct {
		EpisodeList []episode `json:"episodeList"`
	} `json:"result"`
}

// Webtoons fetches from www.webtoons.com and its mobile episode API
type Webtoons struct {
	client  Getter
	apiBase string
	webBase string
	logger  *slog.Logger
}

// NewWebtoons creates a Fetcher using c for every request; logger may be nil
func NewWebtoons(c Getter, logger *slog.Logger) *Webtoons {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Webtoons{
		client:  c,
		apiBase: client.WebtoonMobileURL,
		webBase: client.WebtoonURL,
		logger:  logger,
	}
}

// WithAPIBase points episode list requests at another mobile API root
func (w *Webtoons) WithAPIBase(base string) *Webtoons {
	w.apiBase = strings.TrimSuffix(base, "/")
	return w
}

func (w *Webtoons) document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := w.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
}

func (w *Webtoons) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := w.client.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// cleanText joins an element's text the way it reads on the page
func cleanText(s *goquery.Selection) string {
	parts := s.Contents().Map(func(_ int, n *goquery.Selection) string {
		return n.Text()
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func (w *Webtoons) Series(ctx context.Context, seriesURL string) (SeriesInfo, error) {
	doc, err := w.document(ctx, seriesURL)
	if err != nil {
		return SeriesInfo{}, &FetchError{Kind: SeriesTitle, URL: seriesURL, Err: err}
	}

	subj := doc.Find(".subj").First()
	if subj.Length() == 0 {
		return SeriesInfo{}, &FetchError{Kind: SeriesTitle, URL: seriesURL, Err: errors.New("title element not found")}
	}

	return SeriesInfo{
		Title:   cleanText(subj),
		Summary: cleanText(doc.Find(".summary").First()),
	}, nil
}

// episodesURL maps a series URL to its mobile API endpoint
func (w *Webtoons) episodesURL(seriesURL string) (string, error) {
	u, err := url.Parse(seriesURL)
	if err != nil {
		return "", err
	}
	titleNo := u.Query().Get("title_no")
	if _, err := strconv.Atoi(titleNo); err != nil {
		return "", fmt.Errorf("missing or invalid title_no in %q", seriesURL)
	}

	kind := "webtoon"
	for _, segment := range strings.Split(strings.ToLower(u.Path), "/") {
		if segment == "challenge" || segment == "canvas" {
			kind = "canvas"
			break
		}
	}

	return fmt.Sprintf("%s/api/v1/%s/%s/episodes?pageSize=%d&cursor=0",
		w.apiBase, kind, titleNo, episodePageSize), nil
}

func (w *Webtoons) Chapters(ctx context.Context, seriesURL string, r data.Range) ([]data.ChapterInfo, error) {
	apiURL, err := w.episodesURL(seriesURL)
	if err != nil {
		return nil, &FetchError{Kind: ChapterList, URL: seriesURL, Err: err}
	}

	var resp episodesResponse
	if err := w.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, &FetchError{Kind: ChapterList, URL: seriesURL, Err: err}
	}
	episodes := resp.Result.EpisodeList
	w.logger.Debug("received episodes", "series", seriesURL, "count", len(episodes))

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].EpisodeNo < episodes[j].EpisodeNo
	})

	base, _ := url.Parse(w.webBase)
	all := make([]data.ChapterInfo, 0, len(episodes))
	for i, ep := range episodes {
		link, err := url.Parse(ep.ViewerLink)
		if err != nil || ep.ViewerLink == "" {
			return nil, &FetchError{Kind: ChapterURL, URL: seriesURL, Err: fmt.Errorf("episode %d has no viewer link", ep.EpisodeNo)}
		}
		all = append(all, data.ChapterInfo{
			Number:        i + 1,
			DataEpisodeNo: ep.EpisodeNo,
			Title:         ep.EpisodeTitle,
			ViewerURL:     base.ResolveReference(link).String(),
			TotalChapters: len(episodes),
		})
	}

	selected := data.SelectChapters(all, r)
	if len(selected) == 0 {
		return nil, &FetchError{Kind: ChapterList, URL: seriesURL, Err: ErrNoChaptersFound}
	}
	return selected, nil
}

func (w *Webtoons) Chapter(ctx context.Context, viewerURL string) (ChapterPage, error) {
	doc, err := w.document(ctx, viewerURL)
	if err != nil {
		return ChapterPage{}, &FetchError{Kind: ChapterViewer, URL: viewerURL, Err: err}
	}

	var page ChapterPage
	doc.Find("div.viewer_img._img_viewer_area img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("data-url"); ok && src != "" {
			page.ImageURLs = append(page.ImageURLs, strings.TrimSpace(src))
		}
	})
	page.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	page.Notes = strings.ReplaceAll(strings.TrimSpace(doc.Find(".author_text").First().Text()), "\r\n", "\n")

	return page, nil
}
