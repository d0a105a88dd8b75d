package model

// Phase is the state of a mirror run.
//
//	Idle -> LoadingPolicy -> Crawling -> Downloading -> Rewriting -> Done
//
// Any state may move to Failed on an unrecoverable setup error.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseLoadingPolicy Phase = "loading_policy"
	PhaseCrawling      Phase = "crawling"
	PhaseDownloading   Phase = "downloading"
	PhaseRewriting     Phase = "rewriting"
	PhaseDone          Phase = "done"
	PhaseFailed        Phase = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}
