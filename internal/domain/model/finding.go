package model

import "time"

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Finding is one structured observation produced by a module.
type Finding struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Severity        Severity       `json:"severity"`
	Confidence      int            `json:"confidence"`
	Source          string         `json:"source"`
	Evidence        map[string]any `json:"evidence,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	References      []string       `json:"references,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// ModuleResult is what a module runner returns for one invocation.
type ModuleResult struct {
	ModuleName   string
	Findings     []Finding
	Succeeded    bool
	Cancelled    bool
	Blocking     bool
	Crashed      bool
	ErrorKind    ErrorKind
	ErrorMessage string
}

// ModuleFindings is the per-module entry appended to a job record.
type ModuleFindings struct {
	ModuleName   string    `json:"module"`
	Succeeded    bool      `json:"succeeded"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Findings     []Finding `json:"findings"`
}

// Entry converts the result into the record entry.
func (m ModuleResult) Entry() ModuleFindings {
	findings := m.Findings
	if findings == nil {
		findings = []Finding{}
	}
	return ModuleFindings{
		ModuleName:   m.ModuleName,
		Succeeded:    m.Succeeded,
		ErrorKind:    m.ErrorKind,
		ErrorMessage: m.ErrorMessage,
		Findings:     findings,
	}
}

// Clone returns a copy with independent slices.
func (m ModuleFindings) Clone() ModuleFindings {
	out := m
	out.Findings = make([]Finding, len(m.Findings))
	for i, f := range m.Findings {
		f.Recommendations = append([]string(nil), f.Recommendations...)
		f.References = append([]string(nil), f.References...)
		if f.Evidence != nil {
			ev := make(map[string]any, len(f.Evidence))
			for k, v := range f.Evidence {
				ev[k] = v
			}
			f.Evidence = ev
		}
		out.Findings[i] = f
	}
	return out
}

// ResultSummary aggregates the findings of a completed job.
type ResultSummary struct {
	TotalFindings  int              `json:"total_findings"`
	SeverityCounts map[Severity]int `json:"severity_counts"`
	ModulesCovered int              `json:"modules_covered"`
	ModulesFailed  int              `json:"modules_failed"`
	DataPoints     int              `json:"data_points"`
}

// Clone returns a copy with an independent map.
func (s ResultSummary) Clone() ResultSummary {
	out := s
	out.SeverityCounts = make(map[Severity]int, len(s.SeverityCounts))
	for k, v := range s.SeverityCounts {
		out.SeverityCounts[k] = v
	}
	return out
}

// Summarize computes the result summary over recorded module entries.
// DataPoints counts findings plus evidence entries, matching how the
// dashboard reports "data points collected".
func Summarize(entries []ModuleFindings) ResultSummary {
	s := ResultSummary{SeverityCounts: map[Severity]int{}}
	for _, e := range entries {
		if e.Succeeded {
			s.ModulesCovered++
		} else {
			s.ModulesFailed++
		}
		for _, f := range e.Findings {
			s.TotalFindings++
			s.DataPoints += 1 + len(f.Evidence)
			sev := f.Severity
			if sev == "" {
				sev = SeverityInfo
			}
			s.SeverityCounts[sev]++
		}
	}
	return s
}

// JobResult is the payload returned for a completed job.
type JobResult struct {
	ID          string           `json:"id"`
	Target      string           `json:"target"`
	TargetType  TargetType       `json:"target_type"`
	Findings    []ModuleFindings `json:"findings"`
	Summary     ResultSummary    `json:"summary"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

// ResultFromRecord builds the result payload for a completed record.
func ResultFromRecord(r *JobRecord) *JobResult {
	out := &JobResult{
		ID:          r.ID,
		Target:      r.Request.Target,
		TargetType:  r.Request.TargetType,
		Findings:    make([]ModuleFindings, len(r.Findings)),
		StartedAt:   cloneTime(r.StartedAt),
		CompletedAt: cloneTime(r.CompletedAt),
	}
	for i := range r.Findings {
		out.Findings[i] = r.Findings[i].Clone()
	}
	if r.Summary != nil {
		out.Summary = r.Summary.Clone()
	} else {
		out.Summary = Summarize(r.Findings)
	}
	if r.StartedAt != nil && r.CompletedAt != nil {
		out.DurationMs = r.CompletedAt.Sub(*r.StartedAt).Milliseconds()
	}
	return out
}
