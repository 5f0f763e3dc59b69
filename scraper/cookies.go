package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Cookie is one entry of the on-disk cookie snapshot.
// The JSON layout matches the array written by Playwright's context.cookies().
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieStore persists the cookie snapshot to a single JSON file.
type CookieStore struct {
	path string
}

// NewCookieStore creates a store backed by path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Path returns the snapshot location
func (cs *CookieStore) Path() string {
	return cs.path
}

// Load reads the snapshot. A missing file yields no cookies and no error.
func (cs *CookieStore) Load() ([]Cookie, error) {
	data, err := os.ReadFile(cs.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookies %s: %w", cs.path, err)
	}
	return cookies, nil
}

// Save overwrites the snapshot with cookies.
func (cs *CookieStore) Save(cookies []Cookie) error {
	if cookies == nil {
		cookies = []Cookie{}
	}

	data, err := json.MarshalIndent(cookies, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if dir := filepath.Dir(cs.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cookies dir: %w", err)
		}
	}

	tmp := cs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := os.Rename(tmp, cs.path); err != nil {
		return fmt.Errorf("failed to replace cookies: %w", err)
	}
	return nil
}
