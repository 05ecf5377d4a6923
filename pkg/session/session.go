// Package session captures and restores authenticated browser state so a
// login performed once can be reused across replay runs. Captured state is
// serialized encrypted; plaintext session data never touches disk.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/getvergo/vergo-agent/pkg/browser"
)

// Cookie is one captured browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	SameSite string  `json:"sameSite,omitempty"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Data is the authenticated state captured from one browser session.
type Data struct {
	// LocalStorage is the origin's local storage at capture time.
	LocalStorage map[string]string `json:"localStorage,omitempty"`

	// Origin is the page origin the storage belongs to.
	Origin string `json:"origin"`

	// Cookies are the context's cookies at capture time.
	Cookies []Cookie `json:"cookies"`

	// CapturedAt is when the state was captured.
	CapturedAt time.Time `json:"capturedAt"`
}

// Capture reads the session's cookies and the current origin's local
// storage.
func Capture(sess *browser.Session) (*Data, error) {
	raw, err := sess.Context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	data := &Data{
		Origin:     sess.CurrentURL(),
		CapturedAt: time.Now(),
	}
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		data.Cookies = append(data.Cookies, cookie)
	}

	storage, err := captureLocalStorage(sess)
	if err != nil {
		// Storage is best-effort: some origins (about:blank) have none.
		storage = nil
	}
	data.LocalStorage = storage
	return data, nil
}

// captureLocalStorage snapshots the page's localStorage as a string map.
func captureLocalStorage(sess *browser.Session) (map[string]string, error) {
	result, err := sess.Page.Evaluate(`() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const key = localStorage.key(i);
			out[key] = localStorage.getItem(key);
		}
		return out;
	}`)
	if err != nil {
		return nil, err
	}

	raw, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected localStorage shape %T", result)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// Apply restores captured state onto a session: cookies into the context,
// local storage into the current page's origin. The page should already be
// on the target origin before storage is applied.
func Apply(ctx context.Context, sess *browser.Session, data *Data) error {
	if data == nil {
		return fmt.Errorf("no session data to apply")
	}

	cookies := make([]playwright.OptionalCookie, 0, len(data.Cookies))
	for _, c := range data.Cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires != 0 {
			cookie.Expires = playwright.Float(c.Expires)
		}
		cookies = append(cookies, cookie)
	}
	if err := sess.Context.AddCookies(cookies); err != nil {
		return fmt.Errorf("applying cookies: %w", err)
	}

	if len(data.LocalStorage) > 0 {
		payload, err := json.Marshal(data.LocalStorage)
		if err != nil {
			return fmt.Errorf("encoding local storage: %w", err)
		}
		script := fmt.Sprintf(`(() => {
			const entries = %s;
			for (const [key, value] of Object.entries(entries)) {
				localStorage.setItem(key, value);
			}
		})()`, string(payload))
		if _, err := sess.Page.Evaluate(script); err != nil {
			return fmt.Errorf("applying local storage: %w", err)
		}
	}
	return nil
}

// Validate judges whether captured state is still plausibly live: it must
// carry at least one cookie that has not expired.
func Validate(data *Data) error {
	if data == nil || len(data.Cookies) == 0 {
		return fmt.Errorf("session data carries no cookies")
	}

	now := float64(time.Now().Unix())
	for _, c := range data.Cookies {
		// Expires <= 0 marks a session cookie with no fixed expiry.
		if c.Expires <= 0 || c.Expires > now {
			return nil
		}
	}
	return fmt.Errorf("every cookie in the session data has expired")
}
