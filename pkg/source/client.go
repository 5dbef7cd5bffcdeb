package source

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"flatwatch-go/pkg/logger"
)

// Client fetches listing pages with browser-like headers. The underlying
// fasthttp client is created on first use and dropped by Close, so a long
// idle period or a shutdown holds no connections; the next fetch rebuilds it.
type Client struct {
	timeout    time.Duration
	userAgents []string
	log        *logger.Logger

	mu     sync.Mutex
	client *fasthttp.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		timeout: timeout,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
		},
		log: logger.GetLogger().WithComponent("http_client"),
	}
}

// Fetch downloads one page and returns its body as UTF-8 text. Gzip bodies
// are decompressed and legacy Cyrillic encodings are converted, so callers
// always parse plain UTF-8 HTML.
func (c *Client) Fetch(ctx context.Context, targetURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	c.setRequestHeaders(req, targetURL)

	if err := c.httpClient().DoTimeout(req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
	}

	body := resp.Body()
	if string(resp.Header.Peek("Content-Encoding")) == "gzip" {
		unzipped, err := resp.BodyGunzip()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress body: %w", err)
		}
		body = unzipped
	}

	// The response buffer is pooled, copy before release
	out := make([]byte, len(body))
	copy(out, body)

	return decodeBody(out, string(resp.Header.ContentType())), nil
}

// Close drops the HTTP client and its idle connections. Safe to call at any
// time; the next Fetch recreates the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.CloseIdleConnections()
		c.client = nil
		c.log.Debug("HTTP client released")
	}
}

func (c *Client) httpClient() *fasthttp.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		c.client = &fasthttp.Client{
			ReadTimeout:         c.timeout,
			WriteTimeout:        c.timeout,
			MaxConnsPerHost:     8,
			MaxIdleConnDuration: 90 * time.Second,
		}
		c.log.Debug("HTTP client created")
	}
	return c.client
}

// setRequestHeaders adds browser-like headers to avoid bot detection.
func (c *Client) setRequestHeaders(req *fasthttp.Request, targetURL string) {
	// Rotate user agents deterministically per URL
	userAgent := c.userAgents[hash(targetURL)%uint32(len(c.userAgents))]
	req.Header.SetUserAgent(userAgent)

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")

	if parsedURL, err := url.Parse(targetURL); err == nil {
		req.Header.Set("Referer", fmt.Sprintf("%s://%s/", parsedURL.Scheme, parsedURL.Host))
	}
}

func hash(s string) uint32 {
	h := uint32(0)
	for _, c := range s {
		h = h*31 + uint32(c)
	}
	return h
}

// decodeBody converts legacy-encoded pages to UTF-8. The charset comes from
// the Content-Type header, falling back to a scan of the document head for
// a meta charset declaration.
func decodeBody(body []byte, contentType string) []byte {
	charset := charsetFromContentType(contentType)
	if charset == "" {
		charset = sniffCharset(body)
	}

	enc := encodingFor(charset)
	if enc == nil {
		return body
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

func sniffCharset(body []byte) string {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := strings.ToLower(string(head))

	idx := strings.Index(lower, "charset=")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimLeft(lower[idx+len("charset="):], `"'`)
	if end := strings.IndexAny(rest, `"' />;`); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func encodingFor(charset string) encoding.Encoding {
	switch charset {
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "windows-1251", "cp1251":
		return charmap.Windows1251
	default:
		return nil
	}
}
