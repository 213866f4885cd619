package httpcap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectBackend_SimpleGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	b := NewDirectBackend(DirectConfig{})
	resp, err := b.Do(context.Background(), Request{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestDirectBackend_CapsResponseSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	b := NewDirectBackend(DirectConfig{MaxResponseSize: 10})
	_, err := b.Do(context.Background(), Request{Method: "GET", URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestDirectBackend_CapsRedirects(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})

	b := NewDirectBackend(DirectConfig{MaxRedirects: 2})
	_, err := b.Do(context.Background(), Request{Method: "GET", URL: srv.URL + "/a"})
	require.Error(t, err)
}

func TestDirectBackend_NamedJarPersistsCookiesAcrossCalls(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
	})
	var gotCookie string
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
	})

	b := NewDirectBackend(DirectConfig{})
	_, err := b.Do(context.Background(), Request{Method: "GET", URL: srv.URL + "/set", CookieJarID: "user-1"})
	require.NoError(t, err)
	_, err = b.Do(context.Background(), Request{Method: "GET", URL: srv.URL + "/check", CookieJarID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", gotCookie)
}

func TestDirectBackend_WithoutJarIDDoesNotPersistCookies(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
	})
	var gotCookie string
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
	})

	b := NewDirectBackend(DirectConfig{})
	_, err := b.Do(context.Background(), Request{Method: "GET", URL: srv.URL + "/set"})
	require.NoError(t, err)
	_, err = b.Do(context.Background(), Request{Method: "GET", URL: srv.URL + "/check"})
	require.NoError(t, err)
	assert.Empty(t, gotCookie)
}

func TestDirectBackend_FormEncodedBody(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		r.ParseForm()
		gotBody = r.Form.Get("key")
	}))
	defer srv.Close()

	b := NewDirectBackend(DirectConfig{})
	form := map[string][]string{"key": {"value"}}
	_, err := b.Do(context.Background(), Request{Method: "POST", URL: srv.URL, Form: form})
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "value", gotBody)
}
