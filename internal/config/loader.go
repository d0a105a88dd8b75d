package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the name of the site config file looked up in the
// working and home directories.
const DefaultConfigFile = ".sitemirror"

// xdgConfigFile is the site config file name inside XDGConfigDir.
const xdgConfigFile = "config.yaml"

var (
	// ErrConfigNotFound is returned by LoadConfigFile for a missing file.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidSiteConfig is returned for a site entry that cannot be
	// applied, such as a negative limit or a malformed pattern.
	ErrInvalidSiteConfig = errors.New("invalid site configuration")
)

// LoadConfigFile reads and checks a site config file.
//
// Unknown fields are rejected so that a misspelled "maxpages" fails loudly
// instead of silently mirroring with the global limit. Host keys are
// lowercased, and a key written as a URL ("https://example.com/") is
// reduced to its host. An empty file yields an empty File.
func LoadConfigFile(name string) (*File, error) {
	data, err := os.ReadFile(name) //nolint:gosec // name comes from the user or a fixed lookup
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cf := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for key, site := range cf.Sites {
		host := siteHost(key)
		if host == "" {
			return nil, fmt.Errorf("%w: empty host in key %q", ErrInvalidSiteConfig, key)
		}
		if err := checkSite(site); err != nil {
			return nil, fmt.Errorf("site %s: %w", host, err)
		}
		sites[host] = site
	}
	if err := checkSite(cf.Defaults); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	cf.Sites = sites

	return cf, nil
}

// siteHost normalizes a sites key to a lowercase host[:port].
func siteHost(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	if i := strings.IndexAny(key, "/?#"); i >= 0 {
		key = key[:i]
	}
	return key
}

func checkSite(s SiteConfig) error {
	switch {
	case s.Depth < 0:
		return fmt.Errorf("%w: depth must not be negative", ErrInvalidSiteConfig)
	case s.MaxPages < 0:
		return fmt.Errorf("%w: maxPages must not be negative", ErrInvalidSiteConfig)
	case s.Delay < 0:
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidSiteConfig)
	}
	for _, p := range append(append([]string{}, s.IgnorePatterns...), s.FollowPatterns...) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidSiteConfig, p, err)
		}
	}
	return nil
}

// FindConfigFile returns the site config file to load, or "" when there
// is none. An explicit configPath is returned only if it exists. Otherwise
// the candidates are tried in order:
//
//	./.sitemirror
//	$XDG_CONFIG_HOME/sitemirror/config.yaml
//	~/.sitemirror
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if isFile(configPath) {
			return configPath
		}
		return ""
	}

	for _, candidate := range configCandidates() {
		if isFile(candidate) {
			return candidate
		}
	}
	return ""
}

func configCandidates() []string {
	var out []string
	if cwd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(cwd, DefaultConfigFile))
	}
	out = append(out, filepath.Join(XDGConfigDir(), xdgConfigFile))
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, DefaultConfigFile))
	}
	return out
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
