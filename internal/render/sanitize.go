/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// elements dropped together with their content
var droppedElements = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "embed": true,
	"frame": true, "frameset": true, "link": true, "meta": true, "base": true,
	"form": true, "input": true, "button": true, "textarea": true, "select": true,
	"template": true, "noscript": true,
}

var urlAttrs = map[string]bool{"href": true, "src": true, "action": true, "formaction": true, "xlink:href": true}

// Sanitize parses an HTML fragment from the rich-text surface and renders it
// back without active content: script-like elements, event handler attributes
// and javascript: or non-image data: URLs are removed.
func Sanitize(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return html.EscapeString(fragment)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		clean(n)
		if n.Type == html.CommentNode || (n.Type == html.ElementNode && droppedElements[n.Data]) {
			continue
		}
		_ = html.Render(&buf, n)
	}
	return buf.String()
}

func clean(n *html.Node) {
	if n.Type == html.ElementNode {
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if strings.HasPrefix(key, "on") || key == "srcdoc" {
				continue
			}
			if urlAttrs[key] && !safeURL(a.Val) {
				continue
			}
			attrs = append(attrs, a)
		}
		n.Attr = attrs
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode || (c.Type == html.ElementNode && droppedElements[c.Data]) {
			n.RemoveChild(c)
		} else {
			clean(c)
		}
		c = next
	}
}

func safeURL(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	s = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	switch {
	case strings.HasPrefix(s, "javascript:"), strings.HasPrefix(s, "vbscript:"):
		return false
	case strings.HasPrefix(s, "data:"):
		return strings.HasPrefix(s, "data:image/") && !strings.HasPrefix(s, "data:image/svg")
	}
	return true
}

// BlockKind classifies a text block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
)

// Block is a paragraph-level run of plain text.
type Block struct {
	Kind BlockKind
	// Level is the heading level (1-6) or list nesting depth (1-based).
	Level   int
	Ordered bool
	Index   int
	Text    string
}

// Blocks extracts the paragraph structure of sanitized HTML.
func Blocks(fragment string) []Block {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return []Block{{Kind: BlockParagraph, Text: fragment}}
	}
	w := &blockWalker{}
	for _, n := range nodes {
		w.walk(n, 0, false)
	}
	w.flush()
	return w.out
}

type blockWalker struct {
	out    []Block
	inline strings.Builder
}

func (w *blockWalker) flush() {
	if t := collapse(w.inline.String()); t != "" {
		w.out = append(w.out, Block{Kind: BlockParagraph, Text: t})
	}
	w.inline.Reset()
}

func (w *blockWalker) walk(n *html.Node, depth int, ordered bool) {
	switch n.Type {
	case html.TextNode:
		w.inline.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, depth, ordered)
		}
		return
	}
	if droppedElements[n.Data] {
		return
	}
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.flush()
		if t := collapse(textContent(n)); t != "" {
			w.out = append(w.out, Block{Kind: BlockHeading, Level: int(n.Data[1] - '0'), Text: t})
		}
	case "ul", "ol":
		w.flush()
		idx := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				idx++
				w.listItem(c, depth+1, n.Data == "ol", idx)
			}
		}
	case "br":
		w.flush()
	case "p", "div", "blockquote", "pre", "section", "article", "table", "tr":
		w.flush()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, depth, ordered)
		}
		w.flush()
	case "td", "th":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, depth, ordered)
		}
		w.inline.WriteString(" ")
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, depth, ordered)
		}
	}
}

func (w *blockWalker) listItem(li *html.Node, depth int, ordered bool, idx int) {
	var text strings.Builder
	var nested []*html.Node
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
			nested = append(nested, c)
			continue
		}
		text.WriteString(textContent(c))
	}
	if t := collapse(text.String()); t != "" {
		w.out = append(w.out, Block{Kind: BlockListItem, Level: depth, Ordered: ordered, Index: idx, Text: t})
	}
	for _, n := range nested {
		w.walk(n, depth, ordered)
	}
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && droppedElements[n.Data] {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "br" {
			sb.WriteString(" ")
			continue
		}
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
