package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kerbaras/webtoons/pkg/client"
	"github.com/kerbaras/webtoons/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seriesHTML = `<html><body>
<div class="info">
  <h1 class="subj">Tower
	of God</h1>
  <p class="summary">What do you desire?
  Money and wealth?</p>
</div>
<a id="_btnEpisode" href="/en/fantasy/tower-of-god/ep-0/viewer?title_no=95&episode_no=1">First episode</a>
</body></html>`

const viewerHTML = `<html><body>
<h1 class="subj_episode">  Ep. 2 - The Floor  </h1>
<div class="viewer_img _img_viewer_area">
  <img src="bg.gif" data-url="https://cdn.test/2/001.jpg?type=q90">
  <img src="bg.gif" data-url="https://cdn.test/2/002.png?type=q90">
  <img src="bg.gif">
</div>
<div class="author_text">Thanks for reading!` + "\r\n" + `See you next week</div>
</body></html>`

const episodesJSON = `{"result":{"episodeList":[
  {"episodeNo":3,"episodeTitle":"Ep. 3","viewerLink":"/en/fantasy/tower-of-god/ep-3/viewer?title_no=95&episode_no=3"},
  {"episodeNo":1,"episodeTitle":"Ep. 1","viewerLink":"/en/fantasy/tower-of-god/ep-1/viewer?title_no=95&episode_no=1"},
  {"episodeNo":2,"episodeTitle":"Ep. 2","viewerLink":"https://www.webtoons.com/en/fantasy/tower-of-god/ep-2/viewer?title_no=95&episode_no=2"}
]}}`

func newTestServer(t *testing.T) (*httptest.Server, *Webtoons, *[]string) {
	t.Helper()
	var requested []string
	mux := http.NewServeMux()
	mux.HandleFunc("/en/fantasy/tower-of-god/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(seriesHTML))
	})
	mux.HandleFunc("/en/fantasy/tower-of-god/ep-2/viewer", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(viewerHTML))
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path+"?"+r.URL.RawQuery)
		switch r.URL.Path {
		case "/api/v1/webtoon/95/episodes", "/api/v1/canvas/7/episodes":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(episodesJSON))
		case "/api/v1/webtoon/429/episodes":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/api/v1/webtoon/0/episodes":
			w.Write([]byte(`{"result":{"episodeList":[]}}`))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	opts := client.DefaultOptions()
	opts.Retry = client.RetryNone
	opts.MaxRetries = 0
	c, err := client.New(opts)
	require.NoError(t, err)

	w := NewWebtoons(c, nil)
	w.apiBase = server.URL
	w.webBase = server.URL
	return server, w, &requested
}

func TestSeries(t *testing.T) {
	server, w, _ := newTestServer(t)

	info, err := w.Series(context.Background(), server.URL+"/en/fantasy/tower-of-god/list?title_no=95")
	require.NoError(t, err)
	assert.Equal(t, "Tower of God", info.Title)
	assert.Equal(t, "What do you desire? Money and wealth?", info.Summary)
}

func TestSeriesMissingTitle(t *testing.T) {
	server, w, _ := newTestServer(t)

	_, err := w.Series(context.Background(), server.URL+"/en/fantasy/tower-of-god/ep-2/viewer?title_no=95")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, SeriesTitle, fe.Kind)
}

func TestChapters(t *testing.T) {
	server, w, requested := newTestServer(t)

	chapters, err := w.Chapters(context.Background(), server.URL+"/en/fantasy/tower-of-god/list?title_no=95", data.Range{})
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	for i, ch := range chapters {
		assert.Equal(t, i+1, ch.Number)
		assert.Equal(t, i+1, ch.DataEpisodeNo)
		assert.Equal(t, 3, ch.TotalChapters)
	}
	assert.Equal(t, server.URL+"/en/fantasy/tower-of-god/ep-1/viewer?title_no=95&episode_no=1", chapters[0].ViewerURL)
	assert.Equal(t, "https://www.webtoons.com/en/fantasy/tower-of-god/ep-2/viewer?title_no=95&episode_no=2", chapters[1].ViewerURL)
	assert.Equal(t, "Ep. 3", chapters[2].Title)

	assert.Equal(t, []string{"/api/v1/webtoon/95/episodes?pageSize=99999&cursor=0"}, *requested)
}

func TestChaptersRange(t *testing.T) {
	server, w, _ := newTestServer(t)
	seriesURL := server.URL + "/en/fantasy/tower-of-god/list?title_no=95"

	chapters, err := w.Chapters(context.Background(), seriesURL, data.Range{Start: 2, End: 3})
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, 2, chapters[0].Number)
	assert.Equal(t, 3, chapters[0].TotalChapters, "total counts the whole series")

	latest, err := w.Chapters(context.Background(), seriesURL, data.Range{Latest: true})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 3, latest[0].Number)

	_, err = w.Chapters(context.Background(), seriesURL, data.Range{Start: 10})
	assert.ErrorIs(t, err, ErrNoChaptersFound)
}

func TestChaptersCanvas(t *testing.T) {
	server, w, requested := newTestServer(t)

	chapters, err := w.Chapters(context.Background(), server.URL+"/en/canvas/swords/list?title_no=7", data.Range{})
	require.NoError(t, err)
	assert.Len(t, chapters, 3)
	assert.Equal(t, "/api/v1/canvas/7/episodes?pageSize=99999&cursor=0", (*requested)[0])
}

func TestChaptersErrors(t *testing.T) {
	server, w, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("missing title_no", func(t *testing.T) {
		_, err := w.Chapters(ctx, server.URL+"/en/fantasy/tower-of-god/list", data.Range{})
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, ChapterList, fe.Kind)
	})

	t.Run("empty series", func(t *testing.T) {
		_, err := w.Chapters(ctx, server.URL+"/en/x/list?title_no=0", data.Range{})
		assert.ErrorIs(t, err, ErrNoChaptersFound)
	})

	t.Run("rate limited", func(t *testing.T) {
		_, err := w.Chapters(ctx, server.URL+"/en/x/list?title_no=429", data.Range{})
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.True(t, client.IsRateLimited(err))
		assert.False(t, errors.Is(err, ErrNoChaptersFound))
	})
}

func TestChapter(t *testing.T) {
	server, w, _ := newTestServer(t)

	page, err := w.Chapter(context.Background(), server.URL+"/en/fantasy/tower-of-god/ep-2/viewer?title_no=95&episode_no=2")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.test/2/001.jpg?type=q90",
		"https://cdn.test/2/002.png?type=q90",
	}, page.ImageURLs)
	assert.Equal(t, "Ep. 2 - The Floor", page.Title)
	assert.Equal(t, "Thanks for reading!\nSee you next week", page.Notes)
}

func TestChapterWithoutNotes(t *testing.T) {
	server, w, _ := newTestServer(t)

	page, err := w.Chapter(context.Background(), server.URL+"/en/fantasy/tower-of-god/list?title_no=95")
	require.NoError(t, err)
	assert.Empty(t, page.ImageURLs)
	assert.Empty(t, page.Notes)
}

func TestChapterFetchFailure(t *testing.T) {
	server, w, _ := newTestServer(t)

	_, err := w.Chapter(context.Background(), server.URL+"/missing")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ChapterViewer, fe.Kind)
}
