package urlpath

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// AssetType is the category an asset is stored under in the mirror.
// The string value doubles as the directory name below outputRoot/assets.
type AssetType string

const (
	// AssetCSS is a stylesheet.
	AssetCSS AssetType = "css"
	// AssetJS is a script.
	AssetJS AssetType = "js"
	// AssetImage is an image, including icons.
	AssetImage AssetType = "images"
	// AssetFont is a web font.
	AssetFont AssetType = "fonts"
	// AssetMedia is audio or video.
	AssetMedia AssetType = "media"
	// AssetOther is anything that does not fit the categories above.
	AssetOther AssetType = "other"
)

// AssetsDir is the directory below the output root that holds all assets.
const AssetsDir = "assets"

// hashLength is the number of hex characters of the URL digest appended
// to asset file names.
const hashLength = 8

// maxStemLength caps the file name stem so that deeply encoded names
// stay under common filesystem limits.
const maxStemLength = 100

// rejectedPrefixes are reference forms that can never be fetched.
var rejectedPrefixes = []string{"javascript:", "data:", "mailto:", "tel:"}

// extensionTypes maps a lower-cased file extension to its asset type.
var extensionTypes = map[string]AssetType{
	".css": AssetCSS,

	".js":  AssetJS,
	".mjs": AssetJS,

	".png":  AssetImage,
	".jpg":  AssetImage,
	".jpeg": AssetImage,
	".gif":  AssetImage,
	".svg":  AssetImage,
	".webp": AssetImage,
	".ico":  AssetImage,
	".bmp":  AssetImage,
	".avif": AssetImage,

	".woff":  AssetFont,
	".woff2": AssetFont,
	".ttf":   AssetFont,
	".otf":   AssetFont,
	".eot":   AssetFont,

	".mp4":  AssetMedia,
	".webm": AssetMedia,
	".ogg":  AssetMedia,
	".mp3":  AssetMedia,
	".wav":  AssetMedia,
	".m4a":  AssetMedia,
	".m4v":  AssetMedia,
	".avi":  AssetMedia,
	".mov":  AssetMedia,
}

// defaultExtensions is appended to asset names that carry no extension.
var defaultExtensions = map[AssetType]string{
	AssetCSS:   ".css",
	AssetJS:    ".js",
	AssetImage: ".png",
	AssetFont:  ".woff2",
	AssetMedia: ".mp4",
}

// unsafeChars are replaced in derived file names.
var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "|", "_", "?", "_", "*", "_", `\`, "_",
)

// Normalize converts a raw reference into a canonical absolute URL.
//
// The reference is resolved against base when it is relative; a
// protocol-relative reference takes the scheme of base (https when base is
// empty). Scheme and host are lower-cased, the fragment is dropped, an empty
// path becomes "/" and trailing slashes are trimmed from any other path.
// An empty string is returned for references that cannot be fetched:
// javascript:, data:, mailto:, tel:, bare fragments, non-http(s) schemes and
// unparsable input.
//
// Normalize is idempotent: Normalize(Normalize(u, b), "") == Normalize(u, b).
func Normalize(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}

	lower := strings.ToLower(raw)
	for _, prefix := range rejectedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	var baseURL *url.URL
	if base != "" {
		b, err := url.Parse(base)
		if err == nil {
			baseURL = b
		}
	}

	if strings.HasPrefix(raw, "//") {
		scheme := "https"
		if baseURL != nil && baseURL.Scheme != "" {
			scheme = baseURL.Scheme
		}
		raw = scheme + ":" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if baseURL == nil {
			return ""
		}
		u = baseURL.ResolveReference(u)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false

	u.Path = trimTrailingSlashes(u.Path)
	if u.RawPath != "" {
		u.RawPath = trimTrailingSlashes(u.RawPath)
	}

	return u.String()
}

// trimTrailingSlashes trims every trailing slash except the root one.
func trimTrailingSlashes(p string) string {
	if p == "" {
		return "/"
	}
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// Hostname returns the lower-cased host name of u without port, or an
// empty string when u cannot be parsed.
func Hostname(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SameDomain reports whether a and b share a host name once a leading
// "www." is removed from both.
func SameDomain(a, b string) bool {
	ha := strings.TrimPrefix(Hostname(a), "www.")
	hb := strings.TrimPrefix(Hostname(b), "www.")
	if ha == "" || hb == "" {
		return false
	}
	return ha == hb
}

// ClassifyAssetType returns the storage category of an asset URL.
// The file extension decides first; "/css/" and "/js/" path segments are
// consulted only when the extension is missing or unknown.
func ClassifyAssetType(u string) AssetType {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	p = strings.ToLower(p)

	if t, ok := extensionTypes[path.Ext(p)]; ok {
		return t
	}

	switch {
	case strings.Contains(p, "/css/"):
		return AssetCSS
	case strings.Contains(p, "/js/"):
		return AssetJS
	default:
		return AssetOther
	}
}

// DefaultExtension returns the extension appended to extensionless assets
// of type t, or an empty string for AssetOther.
func DefaultExtension(t AssetType) string {
	return defaultExtensions[t]
}

// AssetLocalPath derives the file an asset is stored at:
//
//	outputRoot/assets/<type>/<stem>_<hash><ext>
//
// The hash is the first eight hex characters of the SHA-256 digest of the
// full URL, so assets sharing a base name never collide.
func AssetLocalPath(u string, t AssetType, outputRoot string) string {
	name := ""
	if parsed, err := url.Parse(u); err == nil {
		name = path.Base(parsed.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "asset"
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = DefaultExtension(t)
	}
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}

	file := unsafeChars.Replace(stem + "_" + shortHash(u) + ext)
	return filepath.Join(outputRoot, AssetsDir, string(t), file)
}

// PageLocalPath derives the HTML file a page is stored at.
//
// The root path maps to index.html; a path whose last segment carries no
// extension is treated as a directory and gets index.html appended; any
// other path is mirrored as is. Pages that differ only by query string get
// a digest of the query folded into the file name.
func PageLocalPath(u, outputRoot string) string {
	p := ""
	query := ""
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
		query = parsed.RawQuery
	}

	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		p = "index.html"
	} else {
		last := path.Base(p)
		lowerLast := strings.ToLower(last)
		isHTML := strings.HasSuffix(lowerLast, ".html") || strings.HasSuffix(lowerLast, ".htm")
		if !isHTML && !strings.Contains(last, ".") {
			p += "/index.html"
		}
	}

	if query != "" {
		ext := path.Ext(p)
		p = strings.TrimSuffix(p, ext) + "_" + shortHash(query) + ext
	}

	return filepath.Join(outputRoot, filepath.FromSlash(unsafeChars.Replace(p)))
}

// RelativePath returns the slash-separated path from the directory of
// fromFile to toFile.
func RelativePath(fromFile, toFile string) string {
	rel, err := filepath.Rel(filepath.Dir(fromFile), toFile)
	if err != nil {
		return filepath.ToSlash(toFile)
	}
	return filepath.ToSlash(rel)
}

// shortHash returns the first hashLength hex characters of sha256(s).
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLength]
}
