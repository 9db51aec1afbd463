package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "docset/1.0 (dataset builder)"
	DefaultMaxBytes  = 20 << 20
)

var (
	ErrNotFound     = errors.New("source: page not found")
	ErrInvalidRef   = errors.New("source: invalid source reference")
	ErrTooLarge     = errors.New("source: response exceeds size limit")
	ErrEmptyContent = errors.New("source: no content")
)

// FetchError describes a failed retrieval of a source URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherOptions configures a Fetcher. Zero values fall back to defaults.
type FetcherOptions struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64

	// WikipediaAPI replaces https://<lang>.wikipedia.org/w/api.php.
	WikipediaAPI string
}

// Fetcher resolves source references: upload refs from the upload store,
// Wikipedia article URLs through the MediaWiki API and everything else with
// a plain GET.
type Fetcher struct {
	client  *http.Client
	uploads *Uploads
	opts    FetcherOptions
}

func NewFetcher(uploads *Uploads, opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		uploads: uploads,
		opts:    opts,
	}
}

// Fetch retrieves the raw document behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Document, error) {
	if IsUpload(ref) {
		return f.fetchUpload(ref)
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{URL: ref, Err: ErrInvalidRef}
	}
	if lang, title, ok := wikipediaArticle(u); ok {
		return f.fetchWikipedia(ctx, ref, lang, title)
	}
	return f.fetchURL(ctx, ref)
}

func (f *Fetcher) fetchUpload(ref string) (*Document, error) {
	if f.uploads == nil {
		return nil, &FetchError{URL: ref, Err: ErrUploadNotFound}
	}
	up, err := f.uploads.Get(ref)
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}
	return &Document{
		Ref:      ref,
		Filename: up.Filename,
		Body:     up.Data,
	}, nil
}

var wikiHostRe = regexp.MustCompile(`^([a-z][a-z0-9-]*)\.(?:m\.)?wikipedia\.org$`)

// wikipediaArticle extracts the language and page title from an article URL.
func wikipediaArticle(u *url.URL) (lang, title string, ok bool) {
	m := wikiHostRe.FindStringSubmatch(strings.ToLower(u.Hostname()))
	if m == nil || !strings.HasPrefix(u.Path, "/wiki/") {
		return "", "", false
	}
	title = strings.TrimPrefix(u.Path, "/wiki/")
	if title == "" {
		return "", "", false
	}
	return m[1], title, true
}

type mediaWikiResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Missing bool   `json:"missing"`
			Invalid bool   `json:"invalid"`
		} `json:"pages"`
	} `json:"query"`
}

func (f *Fetcher) fetchWikipedia(ctx context.Context, ref, lang, title string) (*Document, error) {
	api := f.opts.WikipediaAPI
	if api == "" {
		api = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("prop", "extracts")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("redirects", "1")
	q.Set("exsectionformat", "wiki")
	q.Set("titles", title)

	body, _, err := f.get(ctx, api+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp mediaWikiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{URL: ref, Err: fmt.Errorf("decode mediawiki response: %w", err)}
	}
	if resp.Error != nil {
		return nil, &FetchError{URL: ref, Err: fmt.Errorf("mediawiki %s: %s", resp.Error.Code, resp.Error.Info)}
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing || resp.Query.Pages[0].Invalid {
		return nil, &FetchError{URL: ref, Err: ErrNotFound}
	}
	page := resp.Query.Pages[0]
	if strings.TrimSpace(page.Extract) == "" {
		return nil, &FetchError{URL: ref, Err: ErrEmptyContent}
	}

	return &Document{
		Ref:         ref,
		URL:         ref,
		Title:       page.Title,
		Lang:        lang,
		Filename:    page.Title + ".html",
		ContentType: "text/html",
		Body:        []byte(page.Extract),
	}, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, ref string) (*Document, error) {
	body, contentType, err := f.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Document{
		Ref:         ref,
		URL:         ref,
		Filename:    filenameFor(ref, contentType),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusNotFound {
			fe.Err = ErrNotFound
		}
		return nil, "", fe
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, "", &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, "", &FetchError{URL: rawURL, Err: ErrTooLarge}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// filenameFor picks a name whose extension selects the right parser. Pages
// without a recognizable extension are treated as HTML.
func filenameFor(rawURL, contentType string) string {
	name := "page"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			name = base
		}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		if ext := path.Ext(name); ext != ".html" && ext != ".htm" {
			name += ".html"
		}
	case "text/plain":
		if path.Ext(name) == "" {
			name += ".txt"
		}
	case "text/markdown":
		if path.Ext(name) == "" {
			name += ".md"
		}
	case "application/pdf":
		if path.Ext(name) == "" {
			name += ".pdf"
		}
	default:
		if path.Ext(name) == "" {
			name += ".html"
		}
	}
	return name
}
