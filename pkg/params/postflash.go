package params

import "strings"

// PostflashFlag is the FLSHCORR header value of an exposure.
type PostflashFlag int

const (
	PostflashUnknown PostflashFlag = iota
	PostflashOmit
	PostflashComplete
)

func (f PostflashFlag) String() string {
	switch f {
	case PostflashOmit:
		return "OMIT"
	case PostflashComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ParsePostflash maps a FLSHCORR value to a flag. Anything other than
// OMIT or COMPLETE (including an empty string for a missing keyword) is
// PostflashUnknown.
func ParsePostflash(v string) PostflashFlag {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "OMIT":
		return PostflashOmit
	case "COMPLETE":
		return PostflashComplete
	default:
		return PostflashUnknown
	}
}

// EffectiveSigclip picks the detection threshold for an exposure.
// Post-flashed exposures have a raised background, so they get the
// (higher) post-flash threshold. An unknown flag falls back to the
// nominal threshold and sets needsReview, so the exposure can be flagged
// for an operator to look at.
func EffectiveSigclip(p FilterParameters, flag PostflashFlag) (sigclip float64, needsReview bool) {
	switch {
	case p.SigclipPostflash == 0.0 || flag == PostflashOmit:
		return p.Sigclip, false
	case flag == PostflashComplete:
		return p.SigclipPostflash, false
	default:
		return p.Sigclip, true
	}
}
