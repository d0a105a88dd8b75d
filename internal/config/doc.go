// Package config provides the configuration of a mirror run: defaults,
// validation, XDG directories and the per-site .sitemirror YAML file.
package config
