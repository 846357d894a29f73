// Package analyzer produces the on-demand page analysis behind the
// analyzeWebsite action: a single fetch of the target page summarized into
// structural facts (title, meta description, element counts).
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/labai-app/tracking-agent/internal/network"
)

// maxBodyBytes caps how much of a page the analyzer will read.
const maxBodyBytes = 2 << 20

// Result is the analysis payload persisted to the API.
type Result struct {
	URL             string `json:"url"`
	StatusCode      int    `json:"statusCode"`
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	Links           int    `json:"links"`
	Scripts         int    `json:"scripts"`
	Forms           int    `json:"forms"`
	Images          int    `json:"images"`
}

// PageAnalyzer fetches and summarizes pages.
type PageAnalyzer struct {
	client *network.Client
	log    *zap.Logger
}

// New creates an analyzer with its own HTTP client.
func New(clientCfg *network.ClientConfig, logger *zap.Logger) *PageAnalyzer {
	return &PageAnalyzer{
		client: network.NewClient(clientCfg),
		log:    logger.Named("analyzer"),
	}
}

// Analyze fetches the page once and returns the summary as raw JSON, ready
// to forward to the API or back to the caller.
func (a *PageAnalyzer) Analyze(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	result := Result{URL: url, StatusCode: resp.StatusCode}
	if err := summarize(io.LimitReader(resp.Body, maxBodyBytes), &result); err != nil {
		// A page that fails to parse still yields status-level facts.
		a.log.Debug("Page parse incomplete", zap.String("url", url), zap.Error(err))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}
	return raw, nil
}

// summarize walks the HTML token stream and fills in structural counts.
func summarize(r io.Reader, result *Result) error {
	tokenizer := html.NewTokenizer(r)
	var inTitle bool

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return nil
			}
			return tokenizer.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "title":
				inTitle = true
			case "a":
				result.Links++
			case "script":
				result.Scripts++
			case "form":
				result.Forms++
			case "img":
				result.Images++
			case "meta":
				var name, content string
				for _, attr := range token.Attr {
					switch attr.Key {
					case "name":
						name = attr.Val
					case "content":
						content = attr.Val
					}
				}
				if strings.EqualFold(name, "description") {
					result.MetaDescription = content
				}
			}
		case html.EndTagToken:
			if tokenizer.Token().Data == "title" {
				inTitle = false
			}
		case html.TextToken:
			if inTitle && result.Title == "" {
				result.Title = strings.TrimSpace(tokenizer.Token().Data)
			}
		}
	}
}
