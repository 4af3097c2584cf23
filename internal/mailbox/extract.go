// File: internal/mailbox/extract.go
package mailbox

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// exactCode matches a bare 6-character alphanumeric code.
var exactCode = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// classKeywords are class-attribute fragments commonly used by mail templates
// to tag the verification code element.
var classKeywords = []string{"verification-code", "verification_code", "code", "otp", "pin"}

// emphasisTags are elements mail templates use to render the code prominently.
var emphasisTags = map[string]bool{
	"strong": true, "b": true, "h1": true, "h2": true, "h3": true,
	"span": true, "div": true, "p": true, "td": true,
}

// codePatterns are tried in priority order against the rendered plain text.
// A keyworded match beats a bare digit run beats a bare alphanumeric run.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:code|Code|CODE|verification)[:\s]+([A-Za-z0-9]{6})\b`),
	regexp.MustCompile(`\b([0-9]{6})\b`),
	regexp.MustCompile(`\b([A-Z0-9]{6})\b`),
	regexp.MustCompile(`\b([A-Za-z0-9]{6})\b`),
}

// ExtractCode pulls a 6-character verification code out of an email body,
// HTML or plaintext. Extraction is idempotent and pattern-priority
// deterministic: class-tagged elements win over emphasis elements, which win
// over the plain-text regexes.
func ExtractCode(content string) (string, bool) {
	if strings.TrimSpace(content) == "" {
		return "", false
	}

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// html.Parse is tolerant of arbitrary text; a parse failure leaves
		// only the raw regex path.
		return matchPatterns(content)
	}

	if code, ok := findByClass(root); ok {
		return code, true
	}
	if code, ok := findByEmphasis(root); ok {
		return code, true
	}
	return matchPatterns(nodeText(root))
}

func findByClass(root *html.Node) (string, bool) {
	for _, keyword := range classKeywords {
		if code, ok := walkFind(root, func(n *html.Node) (string, bool) {
			if n.Type != html.ElementNode {
				return "", false
			}
			class := strings.ToLower(attrValue(n, "class"))
			if class == "" || !strings.Contains(class, keyword) {
				return "", false
			}
			text := strings.TrimSpace(nodeText(n))
			if exactCode.MatchString(text) {
				return text, true
			}
			return "", false
		}); ok {
			return code, true
		}
	}
	return "", false
}

func findByEmphasis(root *html.Node) (string, bool) {
	return walkFind(root, func(n *html.Node) (string, bool) {
		if n.Type != html.ElementNode || !emphasisTags[n.Data] {
			return "", false
		}
		text := strings.TrimSpace(nodeText(n))
		if exactCode.MatchString(text) {
			return text, true
		}
		return "", false
	})
}

func matchPatterns(text string) (string, bool) {
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// walkFind runs visit over the tree depth-first and returns the first hit.
func walkFind(n *html.Node, visit func(*html.Node) (string, bool)) (string, bool) {
	if code, ok := visit(n); ok {
		return code, true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if code, ok := walkFind(c, visit); ok {
			return code, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
