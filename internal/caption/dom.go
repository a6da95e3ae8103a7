package caption

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
)

var errMalformedContext = errors.New("malformed DOM context")

const (
	maxAncestorDepth = 4
	maxSiblingScan   = 10
)

// DOMContext points at the element a caption fragment was rendered in
type DOMContext struct {
	Node *html.Node
}

// Observation is one caption fragment found in a DOM snapshot
type Observation struct {
	Text    string
	Context DOMContext
}

// DOMClassifier attributes fragments by walking an html.Node tree
type DOMClassifier struct {
	dom
}

// NewDOMClassifier creates the production DOM classifier
func NewDOMClassifier() *DOMClassifier {
	return &DOMClassifier{}
}

// Name returns the classifier name
func (c *DOMClassifier) Name() string { return "dom" }

// CanHandle accepts DOMContext values and pointers
func (c *DOMClassifier) CanHandle(domCtx any) bool {
	switch domCtx.(type) {
	case DOMContext, *DOMContext:
		return true
	}
	return false
}

// Attribute resolves handles at increasing scope around the fragment element
func (c *DOMClassifier) Attribute(fragment string, domCtx any) (Attribution, error) {
	var node *html.Node
	switch v := domCtx.(type) {
	case DOMContext:
		node = v.Node
	case *DOMContext:
		if v != nil {
			node = v.Node
		}
	}
	if node == nil {
		return Attribution{}, errMalformedContext
	}
	if node.Type == html.TextNode {
		node = node.Parent
	}
	if node == nil || node.Type != html.ElementNode {
		return Attribution{}, errMalformedContext
	}

	var a Attribution
	container := node.Parent
	if container == nil {
		container = node
	}

	a.Immediate = c.findHandle(container)
	a.SpeakerMeta = c.isSpeakerMeta(node)

	// Climb until the caption list boundary; block is the list item holding the fragment
	block := container
	for depth, cur := 0, container.Parent; cur != nil && depth < maxAncestorDepth; depth, cur = depth+1, cur.Parent {
		if c.isListBoundary(cur) {
			break
		}
		block = cur
		if a.Immediate == "" && a.Ancestor == "" {
			a.Ancestor = c.findHandle(cur)
		}
	}

	if a.Immediate == "" && a.Ancestor == "" {
		scanned := 0
		for sib := block.PrevSibling; sib != nil && scanned < maxSiblingScan; sib = sib.PrevSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			scanned++
			if h := c.findHandle(sib); h != "" {
				a.Sibling = h
				break
			}
		}
	}

	a.DisplayName = c.findDisplayName(block, fragment)
	return a, nil
}

// Observations returns caption fragments found in a snapshot, in document order
func (c *DOMClassifier) Observations(doc *html.Node) []Observation {
	var out []Observation
	regions := c.FindAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && c.isCaptionRegion(n)
	})
	if len(regions) == 0 {
		regions = []*html.Node{doc}
	}
	for _, region := range regions {
		for _, tn := range c.FindAll(region, func(n *html.Node) bool {
			return n.Type == html.TextNode && strings.TrimSpace(n.Data) != ""
		}) {
			if tn.Parent == nil || c.skipElement(tn.Parent) {
				continue
			}
			out = append(out, Observation{
				Text:    Normalize(tn.Data),
				Context: DOMContext{Node: tn.Parent},
			})
		}
	}
	return out
}

// ParseSnapshot parses an HTML snapshot of the caption area
func ParseSnapshot(markup string) (*html.Node, error) {
	return html.Parse(strings.NewReader(markup))
}

func (c *DOMClassifier) findHandle(n *html.Node) string {
	if n == nil {
		return ""
	}
	if h := handleOrEmpty(c.GetAttribute(n, "data-handle")); h != "" {
		return h
	}
	found := c.FindFirst(n, func(x *html.Node) bool {
		if x.Type == html.TextNode {
			return IsHandle(Normalize(x.Data))
		}
		return x.Type == html.ElementNode && handleOrEmpty(c.GetAttribute(x, "data-handle")) != ""
	})
	if found == nil {
		return ""
	}
	if found.Type == html.TextNode {
		return Normalize(found.Data)
	}
	return handleOrEmpty(c.GetAttribute(found, "data-handle"))
}

func (c *DOMClassifier) findDisplayName(n *html.Node, fragment string) string {
	found := c.FindFirst(n, func(x *html.Node) bool {
		if x.Type != html.TextNode {
			return false
		}
		t := Normalize(x.Data)
		return t != "" && t != fragment && !IsNoise(t) && x.Parent != nil && c.isSpeakerMeta(x.Parent)
	})
	if found == nil {
		return ""
	}
	return Normalize(found.Data)
}

func (c *DOMClassifier) isSpeakerMeta(n *html.Node) bool {
	for cur, depth := n, 0; cur != nil && depth < 3; cur, depth = cur.Parent, depth+1 {
		id := strings.ToLower(c.GetAttribute(cur, "data-testid"))
		class := strings.ToLower(c.GetAttribute(cur, "class"))
		if strings.Contains(id, "username") || strings.Contains(id, "user-name") ||
			strings.Contains(class, "display-name") || strings.Contains(class, "username") {
			return true
		}
	}
	return false
}

func (c *DOMClassifier) isListBoundary(n *html.Node) bool {
	role := c.GetAttribute(n, "role")
	if role == "list" || role == "log" {
		return true
	}
	return c.isCaptionRegion(n) || n.Data == "body"
}

func (c *DOMClassifier) isCaptionRegion(n *html.Node) bool {
	id := strings.ToLower(c.GetAttribute(n, "data-testid"))
	return id == "captions" || id == "caption-list" || c.HasClass(n, "captions")
}

func (c *DOMClassifier) skipElement(n *html.Node) bool {
	switch n.Data {
	case "script", "style", "noscript", "button", "svg":
		return true
	}
	return false
}

// dom provides common html.Node helpers
type dom struct{}

// HasClass checks if a node has a specific CSS class
func (dom) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, class := range strings.Fields(attr.Val) {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (dom) GetAttribute(n *html.Node, attrKey string) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// FindAll finds all nodes matching a predicate
func (dom) FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func (dom) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}
