package tgrender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// roundTripFunc rewires the host client to a test server regardless of
// the request URL.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testHostClient(t *testing.T, handler http.HandlerFunc) *http.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			redirected := srv.URL + req.URL.Path
			nr, err := http.NewRequestWithContext(req.Context(), req.Method, redirected, req.Body)
			if err != nil {
				return nil, err
			}
			nr.Header = req.Header
			return http.DefaultTransport.RoundTrip(nr)
		}),
	}
}

func TestTelegraphHostUploadImage(t *testing.T) {
	t.Parallel()

	var gotContentType string
	client := testHostClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing upload: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "png-bytes" {
				t.Errorf("uploaded %q", data)
			}
		}
		w.Write([]byte(`[{"src":"/file/abc.png"}]`))
	})

	h := &TelegraphHost{Client: client}
	url, err := h.UploadImage(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}
	if url != "https://telegra.ph/file/abc.png" {
		t.Errorf("UploadImage() = %q", url)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestTelegraphHostUploadImageBadResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
		},
		{
			name: "empty array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &TelegraphHost{Client: testHostClient(t, tt.handler)}
			if _, err := h.UploadImage(context.Background(), []byte("x")); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestTelegraphHostPublish(t *testing.T) {
	t.Parallel()

	var gotContent string
	var gotToken string
	client := testHostClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createPage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		gotContent = r.PostFormValue("content")
		gotToken = r.PostFormValue("access_token")
		w.Write([]byte(`{"ok":true,"result":{"url":"https://telegra.ph/My-Doc"}}`))
	})

	h := &TelegraphHost{AccessToken: "tok", Client: client}
	url, err := h.Publish(context.Background(), "My Doc", `<h1>Title</h1><p>Hello <b>world</b></p><img src="https://e/p.png"/>`)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if url != "https://telegra.ph/My-Doc" {
		t.Errorf("Publish() = %q", url)
	}
	if gotToken != "tok" {
		t.Errorf("access_token = %q", gotToken)
	}

	var nodes []any
	if err := json.Unmarshal([]byte(gotContent), &nodes); err != nil {
		t.Fatalf("content is not a node array: %v", err)
	}
	// h1 is downgraded to h3; img keeps only its src attribute.
	if !strings.Contains(gotContent, `"tag":"h3"`) {
		t.Errorf("content missing downgraded heading: %s", gotContent)
	}
	if !strings.Contains(gotContent, `"tag":"img"`) || !strings.Contains(gotContent, `"src":"https://e/p.png"`) {
		t.Errorf("content missing image node: %s", gotContent)
	}
}

func TestTelegraphHostPublishAPIError(t *testing.T) {
	t.Parallel()

	client := testHostClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"CONTENT_TOO_BIG"}`))
	})

	h := &TelegraphHost{Client: client}
	_, err := h.Publish(context.Background(), "t", "<p>x</p>")
	if err == nil || !strings.Contains(err.Error(), "CONTENT_TOO_BIG") {
		t.Errorf("Publish() error = %v, want the API error surfaced", err)
	}
}

func TestMarkupToNodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		check  func(t *testing.T, nodes []any)
	}{
		{
			name:   "plain paragraph",
			markup: "<p>hi</p>",
			check: func(t *testing.T, nodes []any) {
				if len(nodes) != 1 {
					t.Fatalf("nodes = %d, want 1", len(nodes))
				}
				n := nodes[0].(telegraphNode)
				if n.Tag != "p" || len(n.Children) != 1 || n.Children[0] != "hi" {
					t.Errorf("node = %+v", n)
				}
			},
		},
		{
			name:   "unsupported tag flattened",
			markup: "<div><p>inner</p></div>",
			check: func(t *testing.T, nodes []any) {
				if len(nodes) != 1 {
					t.Fatalf("nodes = %d, want 1", len(nodes))
				}
				if nodes[0].(telegraphNode).Tag != "p" {
					t.Errorf("div should flatten to its children: %+v", nodes[0])
				}
			},
		},
		{
			name:   "heading downgrades",
			markup: "<h2>t</h2><h6>s</h6>",
			check: func(t *testing.T, nodes []any) {
				if nodes[0].(telegraphNode).Tag != "h3" || nodes[1].(telegraphNode).Tag != "h4" {
					t.Errorf("nodes = %+v", nodes)
				}
			},
		},
		{
			name:   "disallowed attributes dropped",
			markup: `<a href="https://e" onclick="x()">link</a>`,
			check: func(t *testing.T, nodes []any) {
				n := nodes[0].(telegraphNode)
				if n.Attrs["href"] != "https://e" {
					t.Errorf("href lost: %+v", n)
				}
				if _, ok := n.Attrs["onclick"]; ok {
					t.Error("onclick should be dropped")
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			nodes, err := markupToNodes(tt.markup)
			if err != nil {
				t.Fatalf("markupToNodes() error = %v", err)
			}
			tt.check(t, nodes)
		})
	}
}
