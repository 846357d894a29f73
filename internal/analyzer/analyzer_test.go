package analyzer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/internal/analyzer"
	"github.com/labai-app/tracking-agent/internal/network"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Pricing | Example  </title>
  <meta name="description" content="Simple pricing for everyone">
  <meta name="keywords" content="pricing,plans">
  <script src="/app.js"></script>
  <script>console.log("inline")</script>
</head>
<body>
  <a href="/">Home</a>
  <a href="/docs">Docs</a>
  <a href="/signup">Sign up</a>
  <img src="/hero.png">
  <form action="/subscribe" method="post">
    <input name="email" type="email">
  </form>
</body>
</html>`

func newTestAnalyzer(t *testing.T, handler http.Handler) (*analyzer.PageAnalyzer, string) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return analyzer.New(network.NewDefaultClientConfig(), zap.NewNop()), ts.URL
}

func TestAnalyze_SummarizesPage(t *testing.T) {
	a, url := newTestAnalyzer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))

	raw, err := a.Analyze(context.Background(), url)
	require.NoError(t, err)

	var result analyzer.Result
	require.NoError(t, json.Unmarshal(raw, &result))

	assert.Equal(t, url, result.URL)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "Pricing | Example", result.Title, "title is trimmed")
	assert.Equal(t, "Simple pricing for everyone", result.MetaDescription)
	assert.Equal(t, 3, result.Links)
	assert.Equal(t, 2, result.Scripts)
	assert.Equal(t, 1, result.Forms)
	assert.Equal(t, 1, result.Images)
}

func TestAnalyze_NonHTMLStillYieldsStatusFacts(t *testing.T) {
	a, url := newTestAnalyzer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not here"))
	}))

	raw, err := a.Analyze(context.Background(), url)
	require.NoError(t, err)

	var result analyzer.Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Empty(t, result.Title)
}

func TestAnalyze_UnreachableHost(t *testing.T) {
	a := analyzer.New(network.NewDefaultClientConfig(), zap.NewNop())

	_, err := a.Analyze(context.Background(), "http://127.0.0.1:1/none")
	assert.Error(t, err)
}
