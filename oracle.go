package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PasteOracle attests that a paste proof belongs to an account UID.
// Implementations answer yes or no; any doubt is a no.
type PasteOracle interface {
	Verify(ctx context.Context, uid, paste string) bool
}

// LuoguOracle validates proofs against the Luogu paste service. The paste
// page embeds its JSON payload in a JavaScript assignment inside the HTML;
// that contract is fragile, so every parsing step that fails rejects the
// proof instead of erroring out.
type LuoguOracle struct {
	client         *http.Client
	baseURL        string
	validationText string
	logger         *zap.Logger
}

// NewLuoguOracle builds the oracle with a bounded request timeout.
// Login is explicitly allowed to be slow; timeout bounds it anyway.
func NewLuoguOracle(validationText string, timeout time.Duration, logger *zap.Logger) *LuoguOracle {
	return &LuoguOracle{
		client:         &http.Client{Timeout: timeout},
		baseURL:        "https://www.luogu.com",
		validationText: validationText,
		logger:         logger,
	}
}

// pasteData is the slice of the embedded payload the oracle cares about
type pasteData struct {
	ID   string `json:"id"`
	Data string `json:"data"`
	User struct {
		UID int `json:"uid"`
	} `json:"user"`
}

type pasteInjection struct {
	CurrentData struct {
		Paste  *pasteData `json:"paste"`
		Pastes *struct {
			Result []pasteData `json:"result"`
		} `json:"pastes"`
	} `json:"currentData"`
}

// Verify fetches the paste page and checks that the paste was published by
// uid and contains the configured validation text
func (o *LuoguOracle) Verify(ctx context.Context, uid, paste string) bool {
	if !isValidUID(uid) {
		o.logger.Warn("invalid uid format", zap.String("uid", uid))
		return false
	}
	if paste == "" || len(paste) > 50 {
		o.logger.Warn("invalid paste format")
		return false
	}

	html, err := o.fetchPastePage(ctx, paste)
	if err != nil {
		o.logger.Warn("paste fetch failed", zap.Error(err))
		return false
	}

	data, ok := extractPasteData(html, paste)
	if !ok {
		o.logger.Warn("paste page format not recognized", zap.String("paste", paste))
		return false
	}

	if fmt.Sprintf("%d", data.User.UID) != uid {
		o.logger.Warn("paste author mismatch",
			zap.Int("author_uid", data.User.UID),
			zap.String("claimed_uid", uid))
		return false
	}
	if !strings.Contains(data.Data, o.validationText) {
		o.logger.Warn("paste missing validation text", zap.String("uid", uid))
		return false
	}

	o.logger.Info("paste validated", zap.String("uid", uid))
	return true
}

func (o *LuoguOracle) fetchPastePage(ctx context.Context, paste string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/paste/"+url.PathEscape(paste), nil)
	if err != nil {
		return "", err
	}
	// The page serves a challenge to clients that do not look like browsers
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// extractPasteData digs the URL-encoded JSON payload out of the
// window._feInjection assignment. Both the single-paste page and the paste
// list page are handled; format drift returns ok=false.
func extractPasteData(html, pasteID string) (pasteData, bool) {
	const marker = `window._feInjection = JSON.parse(decodeURIComponent("`
	start := strings.Index(html, marker)
	if start < 0 {
		return pasteData{}, false
	}
	start += len(marker)

	end := -1
	for _, terminator := range []string{`"));window._feConfigVersion`, `"));window`, `"))`} {
		if i := strings.Index(html[start:], terminator); i >= 0 {
			end = start + i
			break
		}
	}
	if end < 0 {
		return pasteData{}, false
	}

	decoded, err := url.QueryUnescape(html[start:end])
	if err != nil {
		return pasteData{}, false
	}

	var injection pasteInjection
	if err := json.Unmarshal([]byte(decoded), &injection); err != nil {
		return pasteData{}, false
	}

	if injection.CurrentData.Paste != nil {
		return *injection.CurrentData.Paste, true
	}
	if injection.CurrentData.Pastes != nil {
		for _, item := range injection.CurrentData.Pastes.Result {
			if item.ID == pasteID {
				return item, true
			}
		}
	}
	return pasteData{}, false
}

// isValidUID accepts 1..10 decimal digits
func isValidUID(uid string) bool {
	if uid == "" || len(uid) > 10 {
		return false
	}
	for _, r := range uid {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
