package analytics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/session"
)

// resultCountID is the element id the search page gives its result
// counter.
const resultCountID = "result-count"

// resultCountAttr is the machine-readable attribute some page revisions
// carry instead of (or in addition to) the counter element.
const resultCountAttr = "data-result-count"

// CountFromSearchPage is the fallback acquisition tier: it fetches the
// human search page and extracts the result total from the HTML. Used
// when the count endpoint has terminally failed for a query.
//
// Design decision: We parse with golang.org/x/net/html rather than
// regex over the raw body because:
//  1. It correctly handles malformed HTML
//  2. The counter may be nested inside formatting elements
//  3. Attribute lookups stay exact instead of approximate
func (c *Client) CountFromSearchPage(ctx context.Context, sess session.Session, term string, r model.Range) (int, error) {
	query := url.Values{}
	query.Set("q", term)
	query.Set("from", r.Start.Format(time.RFC3339))
	query.Set("to", r.End.Format(time.RFC3339))

	req, err := c.newRequest(ctx, http.MethodGet, searchPagePath, query, sess, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("search page request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, classifyStatus(resp)
	}

	count, err := resultCountFromHTML(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, err
	}
	return count, nil
}

// resultCountFromHTML walks the parsed document looking for the result
// counter: first a data-result-count attribute anywhere, then the text
// of the element with id "result-count".
func resultCountFromHTML(body io.Reader) (int, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable search page: %v", ErrMalformedResponse, err)
	}

	var raw string
	var found bool

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode {
			if v := getAttr(n, resultCountAttr); v != "" {
				raw = v
				found = true
				return
			}
			if getAttr(n, "id") == resultCountID {
				raw = textContent(n)
				found = true
				return
			}
		}
		for child := n.FirstChild; child != nil && !found; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if !found {
		return 0, fmt.Errorf("%w: search page has no result counter", ErrMalformedResponse)
	}

	count, err := parseCount(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: result counter %q: %v", ErrMalformedResponse, strings.TrimSpace(raw), err)
	}
	return count, nil
}

// countPattern matches the first integer in counter text, tolerating
// comma, space, or non-breaking-space thousands grouping. Matches
// grouped forms like "12,345" before falling back to a plain digit run,
// so "About 12,345 results" yields the whole number.
var countPattern = regexp.MustCompile(`[0-9]{1,3}(?:[,\x{00a0} ][0-9]{3})+|[0-9]+`)

// parseCount extracts the integer from counter text such as "12,345" or
// "About 12 345 results".
func parseCount(text string) (int, error) {
	match := countPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no number in counter text")
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)

	count, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("counter out of range: %v", err)
	}
	return count, nil
}

// textContent concatenates all text nodes under n. The counter element
// often nests its number inside formatting children.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
