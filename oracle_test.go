package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pastePage renders the HTML shell the paste service wraps its payload in
func pastePage(payload string) string {
	return fmt.Sprintf(
		`<html><head><script>window._feInjection = JSON.parse(decodeURIComponent("%s"));window._feConfigVersion = 1;</script></head><body></body></html>`,
		url.QueryEscape(payload))
}

func newOracleAgainst(t *testing.T, handler http.HandlerFunc) *LuoguOracle {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o := NewLuoguOracle("snake-arena", 2*time.Second, zap.NewNop())
	o.baseURL = srv.URL
	return o
}

func TestOracleVerifyAcceptsMatchingPaste(t *testing.T) {
	payload := `{"currentData":{"paste":{"id":"abc123","data":"my proof: snake-arena","user":{"uid":12345}}}}`
	o := newOracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paste/abc123", r.URL.Path)
		fmt.Fprint(w, pastePage(payload))
	})
	assert.True(t, o.Verify(context.Background(), "12345", "abc123"))
}

func TestOracleVerifyAcceptsPasteListPage(t *testing.T) {
	payload := `{"currentData":{"pastes":{"result":[` +
		`{"id":"other","data":"x","user":{"uid":1}},` +
		`{"id":"abc123","data":"snake-arena","user":{"uid":12345}}]}}}`
	o := newOracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pastePage(payload))
	})
	assert.True(t, o.Verify(context.Background(), "12345", "abc123"))
}

func TestOracleVerifyRejections(t *testing.T) {
	goodPayload := `{"currentData":{"paste":{"id":"abc123","data":"snake-arena","user":{"uid":12345}}}}`

	tests := []struct {
		name  string
		uid   string
		paste string
		body  string
		code  int
	}{
		{"author mismatch", "99999", "abc123", pastePage(goodPayload), 200},
		{"missing validation text", "12345", "abc123",
			pastePage(`{"currentData":{"paste":{"id":"abc123","data":"something else","user":{"uid":12345}}}}`), 200},
		{"no injection marker", "12345", "abc123", "<html>challenge page</html>", 200},
		{"broken payload json", "12345", "abc123", pastePage(`{"currentData":`), 200},
		{"http error", "12345", "abc123", "", 404},
		{"uid not numeric", "12a45", "abc123", pastePage(goodPayload), 200},
		{"uid too long", "12345678901", "abc123", pastePage(goodPayload), 200},
		{"empty paste", "12345", "", pastePage(goodPayload), 200},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newOracleAgainst(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.code != 200 {
					w.WriteHeader(tc.code)
					return
				}
				fmt.Fprint(w, tc.body)
			})
			assert.False(t, o.Verify(context.Background(), tc.uid, tc.paste))
		})
	}
}

func TestExtractPasteDataTerminators(t *testing.T) {
	payload := `{"currentData":{"paste":{"id":"p1","data":"d","user":{"uid":7}}}}`
	encoded := url.QueryEscape(payload)

	// The assignment tail varies across page versions
	tails := []string{
		`"));window._feConfigVersion = 2;`,
		`"));window.something = 1;`,
		`"))`,
	}
	for _, tail := range tails {
		html := `window._feInjection = JSON.parse(decodeURIComponent("` + encoded + tail
		data, ok := extractPasteData(html, "p1")
		require.True(t, ok, "tail %q", tail)
		assert.Equal(t, 7, data.User.UID)
	}

	_, ok := extractPasteData(`window._feInjection = JSON.parse(decodeURIComponent("`+encoded, "p1")
	assert.False(t, ok, "unterminated assignment must reject")
}
