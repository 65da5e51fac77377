package discovery

import (
	"github.com/mrz1836/sompi/internal/keys"
)

// State is the lifecycle state of a chain scan.
type State string

// Scan states. Aborted is reached only on a fatal error.
const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// ScanSession is the transient per-chain state of one scan.
type ScanSession struct {
	Chain         keys.Chain
	GapLimit      int
	MaxIndexBound uint32

	ConsecutiveEmpty         int
	ConsecutiveNetworkErrors int
	NetworkErrorCount        int

	// countErrorsAsEmpty makes failed probes advance ConsecutiveEmpty.
	countErrorsAsEmpty bool
	maxNetworkErrors   int

	State State
	Err   error
}

func newScanSession(chain keys.Chain, opts *Options) *ScanSession {
	return &ScanSession{
		Chain:              chain,
		GapLimit:           opts.GapLimit,
		MaxIndexBound:      opts.IndexBound(),
		countErrorsAsEmpty: opts.CountNetworkErrorsAsEmpty,
		maxNetworkErrors:   opts.MaxConsecutiveNetworkErrors,
		State:              StateIdle,
	}
}

func (s *ScanSession) begin() {
	s.State = StateScanning
}

// shouldProbe reports whether index should be probed next.
func (s *ScanSession) shouldProbe(index uint32) bool {
	if s.State != StateScanning {
		return false
	}
	return s.ConsecutiveEmpty < s.GapLimit && index < s.MaxIndexBound && !s.networkBoundHit()
}

func (s *ScanSession) networkBoundHit() bool {
	return s.maxNetworkErrors > 0 && s.ConsecutiveNetworkErrors >= s.maxNetworkErrors
}

func (s *ScanSession) recordFunded() {
	s.ConsecutiveEmpty = 0
	s.ConsecutiveNetworkErrors = 0
}

func (s *ScanSession) recordEmpty() {
	s.ConsecutiveEmpty++
	s.ConsecutiveNetworkErrors = 0
}

func (s *ScanSession) recordNetworkError() {
	s.NetworkErrorCount++
	s.ConsecutiveNetworkErrors++
	if s.countErrorsAsEmpty {
		s.ConsecutiveEmpty++
	}
}

func (s *ScanSession) complete() {
	if s.State == StateScanning {
		s.State = StateCompleted
	}
}

func (s *ScanSession) abort(err error) {
	s.State = StateAborted
	s.Err = err
}
