package tgrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ImageHost is the hosted-article boundary: an external collaborator that
// stores image artifacts and publishes composed markup.
type ImageHost interface {
	// UploadImage stores an image and returns its public URL.
	UploadImage(ctx context.Context, data []byte) (string, error)

	// Publish posts the composed HTML markup and returns the article URL.
	Publish(ctx context.Context, title, markup string) (string, error)
}

// Telegraph endpoints.
const (
	telegraphUploadURL = "https://telegra.ph/upload"
	telegraphAPIURL    = "https://api.telegra.ph"
	telegraphFileBase  = "https://telegra.ph"
)

// TelegraphHost implements ImageHost against the telegra.ph API.
type TelegraphHost struct {
	// AccessToken authenticates createPage calls. Account management is
	// the caller's concern; the token arrives ready to use.
	AccessToken string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (h *TelegraphHost) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

// UploadImage posts a PNG to the telegra.ph upload endpoint.
func (h *TelegraphHost) UploadImage(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "artifact.png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, telegraphUploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrImageUpload, resp.StatusCode)
	}

	var result []struct {
		Src string `json:"src"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrImageUpload, err)
	}
	if len(result) == 0 || result[0].Src == "" {
		return "", fmt.Errorf("%w: empty response", ErrImageUpload)
	}
	return telegraphFileBase + result[0].Src, nil
}

// Publish converts the markup to telegraph's node format and creates a
// page, returning the article URL.
func (h *TelegraphHost) Publish(ctx context.Context, title, markup string) (string, error) {
	nodes, err := markupToNodes(markup)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArticlePublish, err)
	}
	content, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArticlePublish, err)
	}
	if title == "" {
		title = "Document"
	}

	form := url.Values{
		"access_token": {h.AccessToken},
		"title":        {title},
		"content":      {string(content)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		telegraphAPIURL+"/createPage", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArticlePublish, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArticlePublish, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrArticlePublish, err)
	}
	if !result.OK {
		return "", fmt.Errorf("%w: %s", ErrArticlePublish, result.Error)
	}
	return result.Result.URL, nil
}

// telegraphNode is one element of telegraph's DOM-like content format.
// Children holds strings (text) and nested nodes.
type telegraphNode struct {
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}

// telegraphTags is the tag subset telegra.ph accepts; anything else is
// flattened into its children.
var telegraphTags = map[string]bool{
	"a": true, "aside": true, "b": true, "blockquote": true, "br": true,
	"code": true, "em": true, "figcaption": true, "figure": true,
	"h3": true, "h4": true, "hr": true, "i": true, "iframe": true,
	"img": true, "li": true, "ol": true, "p": true, "pre": true,
	"s": true, "strong": true, "u": true, "ul": true, "video": true,
}

// headingDowngrade maps heading levels telegraph lacks onto the two it has.
var headingDowngrade = map[string]string{
	"h1": "h3", "h2": "h3", "h5": "h4", "h6": "h4",
}

// markupToNodes parses an HTML fragment and maps it onto telegraph nodes.
func markupToNodes(markup string) ([]any, error) {
	fragment, err := xhtml.ParseFragment(strings.NewReader(markup), &xhtml.Node{
		Type:     xhtml.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return nil, err
	}
	var nodes []any
	for _, n := range fragment {
		nodes = append(nodes, domToNodes(n)...)
	}
	return nodes, nil
}

func domToNodes(n *xhtml.Node) []any {
	switch n.Type {
	case xhtml.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []any{n.Data}
	case xhtml.ElementNode:
		tag := n.Data
		if mapped, ok := headingDowngrade[tag]; ok {
			tag = mapped
		}

		var children []any
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, domToNodes(c)...)
		}

		if !telegraphTags[tag] {
			return children
		}

		node := telegraphNode{Tag: tag, Children: children}
		for _, attr := range n.Attr {
			if attr.Key == "href" || attr.Key == "src" {
				if node.Attrs == nil {
					node.Attrs = make(map[string]string)
				}
				node.Attrs[attr.Key] = attr.Val
			}
		}
		return []any{node}
	default:
		return nil
	}
}
