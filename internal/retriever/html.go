package retriever

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Script is one <script src=...> element observed in the delivered HTML,
// used by the subresource-integrity test.
type Script struct {
	Src       string
	Integrity string
	CrossOrigin string
}

// MetaCSP returns the content of the first
// <meta http-equiv="Content-Security-Policy" content="..."> element, or ""
// if none is present. Parsing is bounded to the already-capped body.
func MetaCSP(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var httpEquiv, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "http-equiv":
					httpEquiv = a.Val
				case "content":
					content = a.Val
				}
			}
			if strings.EqualFold(httpEquiv, "Content-Security-Policy") {
				found = content
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// MetaReferrer returns the content of the first <meta name="referrer">
// element, or "" if none is present.
func MetaReferrer(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					name = a.Val
				case "content":
					content = a.Val
				}
			}
			if strings.EqualFold(name, "referrer") {
				found = content
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// Scripts returns every <script src=...> element in the delivered HTML.
// Inline scripts (no src) are not relevant to the SRI test and are skipped.
func Scripts(body []byte) []Script {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []Script
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			var s Script
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "src":
					s.Src = a.Val
				case "integrity":
					s.Integrity = a.Val
				case "crossorigin":
					s.CrossOrigin = a.Val
				}
			}
			if s.Src != "" {
				out = append(out, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}
