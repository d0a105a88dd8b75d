package downloader

import "fmt"

// Kind classifies how a download ended.
type Kind string

const (
	// KindOK means the asset was stored.
	KindOK Kind = "ok"

	// KindStatus means the server answered with a status of 400 or above.
	KindStatus Kind = "status"

	// KindTransport means the request failed or the body could not be read.
	KindTransport Kind = "transport"

	// KindWrite means the asset could not be written to disk.
	KindWrite Kind = "write"

	// KindCanceled means the context ended before the download finished.
	KindCanceled Kind = "canceled"
)

// Outcome is the result of one download.
type Outcome struct {
	URL  string
	Kind Kind

	// LocalPath is where the asset was stored. Set for KindOK only.
	LocalPath string

	// StatusCode is the HTTP status. Set for KindOK and KindStatus.
	StatusCode int

	// Size is the number of bytes written.
	Size int

	// Err is the cause for KindTransport, KindWrite and KindCanceled.
	Err error

	// Discovered are the URLs referenced by a stylesheet.
	Discovered []string
}

// OK reports whether the asset was stored.
func (o Outcome) OK() bool {
	return o.Kind == KindOK
}

// Message describes a failed outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindOK:
		return ""
	case KindStatus:
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return string(o.Kind)
	}
}
