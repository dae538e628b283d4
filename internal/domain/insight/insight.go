package insight

// Status reports whether insight enrichment succeeded for a candidate.
type Status string

const (
	// StatusOK indicates generated insight content is present.
	StatusOK Status = "ok"
	// StatusDegraded indicates the summarization collaborator failed for
	// this candidate; ranking is intact, insight fields are absent.
	StatusDegraded Status = "degraded"
	// StatusSkipped indicates insights were not requested for this candidate.
	StatusSkipped Status = "skipped"
)

// Insight is AI-generated learning commentary for one candidate. Fields
// are either all present (StatusOK) or all absent — never faked.
type Insight struct {
	status             Status
	summary            string
	keyFeatures        []string
	learningInsights   []string
	implementationTips []string
}

// New creates a present insight.
func New(summary string, keyFeatures, learningInsights, implementationTips []string) Insight {
	return Insight{
		status:             StatusOK,
		summary:            summary,
		keyFeatures:        keyFeatures,
		learningInsights:   learningInsights,
		implementationTips: implementationTips,
	}
}

// Degraded marks insight generation as failed for a candidate.
func Degraded() Insight { return Insight{status: StatusDegraded} }

// Skipped marks insight generation as not attempted.
func Skipped() Insight { return Insight{status: StatusSkipped} }

// Status returns the enrichment outcome.
func (i *Insight) Status() Status { return i.status }

// Present reports whether insight content exists.
func (i *Insight) Present() bool { return i.status == StatusOK }

// Summary returns the generated prose summary.
func (i *Insight) Summary() string { return i.summary }

// KeyFeatures returns the ordered key-feature list.
func (i *Insight) KeyFeatures() []string { return i.keyFeatures }

// LearningInsights returns the ordered learning-insight list.
func (i *Insight) LearningInsights() []string { return i.learningInsights }

// ImplementationTips returns the ordered implementation-tip list.
func (i *Insight) ImplementationTips() []string { return i.implementationTips }
