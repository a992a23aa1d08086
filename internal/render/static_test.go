package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shield4u/pagescope/internal/scope"
)

func TestStaticRendererSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Server", "test")
		fmt.Fprint(w, "<html><head><title>Welcome Page</title></head><body><h1>Hello</h1></body></html>")
	}))
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, server.URL, page.URL)
	assert.Equal(t, server.URL, page.FinalURL)
	assert.Equal(t, "Welcome Page", page.Title)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.Contains(t, page.HTML, "<h1>Hello</h1>")
	assert.False(t, page.FetchedAt.IsZero())

	assert.Equal(t, map[string]string{
		"x-frame-options":         "DENY",
		"content-security-policy": "default-src 'self'",
	}, page.SecurityHeaders)

	require.Len(t, page.Network, 1)
	entry := page.Network[0]
	assert.Equal(t, server.URL, entry.URL)
	assert.Equal(t, http.MethodGet, entry.Method)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "text/html; charset=utf-8", entry.MIMEType)
	assert.False(t, entry.CORS)
	assert.Contains(t, entry.BodySample, "Welcome Page")
}

func TestStaticRendererSendsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		cookie, err := r.Cookie("sid")
		if err != nil {
			fmt.Fprint(w, "<html><body>no cookie</body></html>")
			return
		}
		fmt.Fprintf(w, "<html><body>cookie received: %s</body></html>", cookie.Value)
	}))
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL, map[string]string{"sid": "abc123"})

	require.NoError(t, err)
	assert.Contains(t, page.HTML, "cookie received: abc123")
}

func TestStaticRendererMasksBodySample(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><form><input type="password" name="pass"></form></body></html>`)
	}))
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL, nil)

	require.NoError(t, err)
	require.Len(t, page.Network, 1)
	// The sample is redacted wholesale, but the DOM itself is kept for
	// extraction.
	assert.Equal(t, scope.DefaultPolicy().MaskReplacement, page.Network[0].BodySample)
	assert.Contains(t, page.HTML, `type="password"`)
}

func TestStaticRendererFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Landed</title></head><body></body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL+"/start", nil)

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/start", page.URL)
	assert.Equal(t, server.URL+"/final", page.FinalURL)
	assert.Equal(t, "Landed", page.Title)
	require.Len(t, page.Network, 1)
	assert.Equal(t, server.URL+"/final", page.Network[0].URL)
}

func TestStaticRendererKeepsErrorPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html><head><title>Missing</title></head><body>nothing here</body></html>")
	}))
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, page.Status)
	assert.Equal(t, "Missing", page.Title)
}

func TestStaticRendererRejectsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.Nil(t, page)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "navigate", renderErr.Stage)
	assert.Equal(t, server.URL, renderErr.URL)
	assert.Contains(t, renderErr.Error(), "image/png")
}

func TestStaticRendererCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	renderer := NewStaticRenderer(nil, nil)
	page, err := renderer.Render(ctx, "https://example.com/", nil)

	require.Error(t, err)
	assert.Nil(t, page)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "session", renderErr.Stage)
	assert.ErrorIs(t, err, context.Canceled)
}
