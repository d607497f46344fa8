// Package policy implements the Sanitizer & Policy Gate: strict HTML
// sanitization for DOM ops and capability/scheme/method decisions for
// api.call dispatch.
package policy

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// attrKeyFold case-folds attribute keys via Unicode case folding rather
// than strings.ToLower, so a byte-for-byte match against allowedAttrs
// isn't fooled by locale-dependent casing rules.
var attrKeyFold = cases.Fold()

// SafeHtml marks a string that has passed SanitizeHtmlStrict. It is
// the only string form DOM ops accept.
type SafeHtml string

// allowedTags is the DOM-op tag allowlist. Anything else is unwrapped:
// its sanitized children are kept, the tag itself is dropped.
var allowedTags = map[atom.Atom]bool{
	atom.Div: true, atom.Span: true, atom.P: true, atom.A: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Table: true, atom.Thead: true, atom.Tbody: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Strong: true, atom.Em: true, atom.B: true, atom.I: true, atom.Br: true, atom.Hr: true,
	atom.Textarea: true, atom.Input: true, atom.Button: true, atom.Label: true, atom.Form: true,
	atom.Select: true, atom.Option: true, atom.Img: true, atom.Pre: true, atom.Code: true,
}

var allowedAttrs = map[string]bool{
	"id": true, "class": true, "style": true, "href": true, "src": true, "alt": true,
	"title": true, "type": true, "value": true, "placeholder": true, "name": true,
	"for": true, "disabled": true, "checked": true, "selected": true, "rows": true, "cols": true,
	"width": true, "height": true, "colspan": true, "rowspan": true, "target": true,
	"data-uicp-id": true,
}

// SanitizeHtmlStrict strips <script>/<style>, on* attributes,
// javascript: (and similarly dangerous) URLs, and any non-allowlisted
// tag, returning the result marked SafeHtml.
func SanitizeHtmlStrict(input string) (SafeHtml, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(input), context)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for _, n := range nodes {
		sanitizeChildren(n)
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return SafeHtml(buf.String()), nil
}

// sanitizeChildren mutates n's child list in place: script/style are
// dropped entirely, disallowed elements are unwrapped (children kept,
// tag dropped), and surviving elements have their attributes filtered.
func sanitizeChildren(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type != html.ElementNode {
			child = next
			continue
		}
		if child.DataAtom == atom.Script || child.DataAtom == atom.Style {
			n.RemoveChild(child)
			child = next
			continue
		}
		sanitizeChildren(child)
		if !allowedTags[child.DataAtom] {
			for gc := child.FirstChild; gc != nil; {
				gcNext := gc.NextSibling
				child.RemoveChild(gc)
				n.InsertBefore(gc, child)
				gc = gcNext
			}
			n.RemoveChild(child)
			child = next
			continue
		}
		child.Attr = sanitizeAttrs(child.Attr)
		child = next
	}
}

func sanitizeAttrs(attrs []html.Attribute) []html.Attribute {
	out := make([]html.Attribute, 0, len(attrs))
	for _, a := range attrs {
		key := attrKeyFold.String(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if !allowedAttrs[key] {
			continue
		}
		if (key == "href" || key == "src") && isDangerousURL(a.Val) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// isDangerousURL checks a scheme prefix against the dangerous-scheme
// list. The value is run through NFKC normalization first: compatibility
// characters (fullwidth colons, lookalike letters) can otherwise spell
// "javascript:" in a form a plain strings.HasPrefix check would miss.
func isDangerousURL(v string) bool {
	normalized := norm.NFKC.String(v)
	trimmed := attrKeyFold.String(strings.TrimSpace(normalized))
	return strings.HasPrefix(trimmed, "javascript:") ||
		strings.HasPrefix(trimmed, "vbscript:") ||
		strings.HasPrefix(trimmed, "data:text/html")
}
