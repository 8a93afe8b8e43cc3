// Package sitemap renders the storefront's sitemap.xml.
package sitemap

import (
	"encoding/xml"
	"net/url"
	"strings"
	"time"
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Entry is one page to list. LastModified may be zero.
type Entry struct {
	Path         string
	LastModified time.Time
	ChangeFreq   string
	Priority     float64
}

type urlset struct {
	XMLName xml.Name  `xml:"urlset"`
	Xmlns   string    `xml:"xmlns,attr"`
	URLs    []urlNode `xml:"url"`
}

type urlNode struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// StaticPages are listed ahead of any product pages.
var StaticPages = []Entry{
	{Path: "/", ChangeFreq: "daily", Priority: 1},
	{Path: "/phones", ChangeFreq: "daily", Priority: 0.9},
	{Path: "/cart", ChangeFreq: "monthly", Priority: 0.3},
}

// PhonePath is the product page for a phone slug.
func PhonePath(slug string) string {
	return "/phones/" + url.PathEscape(slug)
}

// Build renders the static pages followed by entries, each resolved against baseURL.
func Build(baseURL string, entries []Entry) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	set := urlset{Xmlns: xmlns}
	for _, e := range append(append([]Entry(nil), StaticPages...), entries...) {
		node := urlNode{Loc: base + e.Path, ChangeFreq: e.ChangeFreq, Priority: e.Priority}
		if !e.LastModified.IsZero() {
			node.LastMod = e.LastModified.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, node)
	}
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
