package oomscore

// Verdict is the outcome of classifying one command line.
type Verdict int

const (
	// MarkedForDeath biases the OOM killer towards the process.
	MarkedForDeath Verdict = iota
	// Protected shields the process from the OOM killer.
	Protected
)

func (v Verdict) String() string {
	if v == Protected {
		return "protected"
	}
	return "marked_for_death"
}

// Default scores: the two extremes of oom_score_adj.
const (
	DefaultProtectedScore = -1000
	DefaultMarkedScore    = 1000
)

// Scores maps verdicts to oom_score_adj values.
type Scores struct {
	Protected int
	Marked    int
}

// DefaultScores returns the extremes used unless configured otherwise.
func DefaultScores() Scores {
	return Scores{Protected: DefaultProtectedScore, Marked: DefaultMarkedScore}
}

// For returns the score written for v.
func (s Scores) For(v Verdict) int {
	if v == Protected {
		return s.Protected
	}
	return s.Marked
}

// Outcome says how far an assignment went.
type Outcome int

const (
	// OutcomeExited: the priority attribute was gone at probe time.
	OutcomeExited Outcome = iota
	// OutcomeNoCmdline: the invocation record was gone at probe time.
	OutcomeNoCmdline
	// OutcomeWritten: the score was committed.
	OutcomeWritten
	// OutcomeWriteFailed: the write was attempted and refused.
	OutcomeWriteFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExited:
		return "exited"
	case OutcomeNoCmdline:
		return "no_cmdline"
	case OutcomeWritten:
		return "written"
	case OutcomeWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Result describes one assignment attempt.
type Result struct {
	PID     int
	Outcome Outcome
	// Verdict and Score are meaningful only when a write was attempted.
	Verdict Verdict
	Score   int
	// Basename is the identity the process was classified under.
	Basename string
	// MatchedName is the candidate that hit the exemption list, if any.
	MatchedName string
	// Err holds the absorbed write error for OutcomeWriteFailed.
	Err error
}

// Attempted reports whether a score write was tried.
func (r Result) Attempted() bool {
	return r.Outcome == OutcomeWritten || r.Outcome == OutcomeWriteFailed
}
