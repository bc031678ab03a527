package reportjob

// MarkdownRenderer turns report markdown into whatever the host displays.
type MarkdownRenderer interface {
	Render(markdown string) string
}

// PlainRenderer shows markdown as-is.
type PlainRenderer struct{}

func (PlainRenderer) Render(markdown string) string { return markdown }

// ReportView is the state of the report viewer opened from a View control.
type ReportView struct {
	Title     string
	Body      string
	Reasoning string

	raw              string
	reasoningVisible bool
}

// NewReportView renders a into a viewer. The reasoning panel starts collapsed.
func NewReportView(a Artifact, r MarkdownRenderer) *ReportView {
	if r == nil {
		r = PlainRenderer{}
	}
	v := &ReportView{
		Title: a.Name,
		Body:  r.Render(a.Data),
		raw:   a.Data,
	}
	if a.Reasoning != "" {
		v.Reasoning = r.Render(a.Reasoning)
	}
	return v
}

// CopyText is what the copy-to-clipboard action copies: the raw markdown.
func (v *ReportView) CopyText() string { return v.raw }

// HasReasoning reports whether the reasoning panel is offered at all.
func (v *ReportView) HasReasoning() bool { return v.Reasoning != "" }

// ToggleReasoning expands or collapses the reasoning panel.
func (v *ReportView) ToggleReasoning() {
	if !v.HasReasoning() {
		return
	}
	v.reasoningVisible = !v.reasoningVisible
}

func (v *ReportView) ReasoningVisible() bool { return v.reasoningVisible }

// ReasoningLabel is the caption of the toggle button.
func (v *ReportView) ReasoningLabel() string {
	if v.reasoningVisible {
		return "Hide reasoning"
	}
	return "Show reasoning"
}
