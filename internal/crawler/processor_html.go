package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// HTMLLinkProcessor is the default PageProcessor. It parses the response body,
// extracts anchor links resolved against the final URL, and produces a small
// JSON record with the page title and link count.
type HTMLLinkProcessor struct {
	seedDomains     []string
	allowSubdomains bool
}

// NewHTMLLinkProcessor builds a processor that classifies links as internal
// when their host matches one of the seed domains.
func NewHTMLLinkProcessor(seedDomains []string, allowSubdomains bool) *HTMLLinkProcessor {
	return &HTMLLinkProcessor{
		seedDomains:     seedDomains,
		allowSubdomains: allowSubdomains,
	}
}

type pageSummary struct {
	Title     string `json:"title,omitempty"`
	LinkCount int    `json:"link_count"`
}

// Process extracts links and the title from an HTML response.
func (p *HTMLLinkProcessor) Process(_ context.Context, resp FetchResponse) (ProcessResult, error) {
	root, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse base url: %w", err)
	}

	var links []Link
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if link, ok := p.linkFrom(n, base); ok {
					links = append(links, link)
				}
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	record, err := json.Marshal(pageSummary{Title: title, LinkCount: len(links)})
	if err != nil {
		return ProcessResult{}, fmt.Errorf("marshal page summary: %w", err)
	}
	return ProcessResult{Links: links, Record: record}, nil
}

func (p *HTMLLinkProcessor) linkFrom(n *html.Node, base *url.URL) (Link, bool) {
	var href string
	var nofollow bool
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "rel":
			for _, rel := range strings.Fields(strings.ToLower(attr.Val)) {
				if rel == "nofollow" {
					nofollow = true
				}
			}
		}
	}
	if href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return Link{}, false
	}

	return Link{
		URL:        resolved.String(),
		IsInternal: p.isInternal(resolved.Hostname()),
		AnchorText: strings.TrimSpace(anchorText(n)),
		Nofollow:   nofollow,
	}, true
}

func (p *HTMLLinkProcessor) isInternal(host string) bool {
	host = strings.ToLower(host)
	for _, domain := range p.seedDomains {
		if host == domain {
			return true
		}
		if p.allowSubdomains && sameOrSubdomain(host, domain) {
			return true
		}
	}
	return false
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
