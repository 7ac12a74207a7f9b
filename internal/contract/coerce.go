// Package contract is the boundary where untyped stage output becomes the
// typed pipeline model. Coercion is lenient: absent list fields become typed
// empty values and only an unrecoverable scalar (status/approval) fails,
// because the upstream producer is a text generator, not a typed caller.
package contract

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/triad/internal/domain"
)

// ExtractJSONObject locates the payload object in raw stage output. Parsing
// is layered: fenced code blocks are searched first, then the bare text. The
// returned slice is valid JSON.
func ExtractJSONObject(text string) (json.RawMessage, bool) {
	for _, body := range fencedBlocks(text) {
		if raw, ok := firstObject(body); ok {
			return raw, true
		}
	}
	return firstObject(text)
}

// fencedBlocks returns the contents of every ``` fenced block in order.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		nl := strings.IndexByte(rest[open:], '\n')
		if nl < 0 {
			return blocks
		}
		bodyStart := open + nl + 1
		closeRel := strings.Index(rest[bodyStart:], "```")
		if closeRel < 0 {
			return blocks
		}
		blocks = append(blocks, rest[bodyStart:bodyStart+closeRel])
		rest = rest[bodyStart+closeRel+3:]
	}
}

// firstObject finds the first balanced, valid JSON object in s.
func firstObject(s string) (json.RawMessage, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end, ok := balancedEnd(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}

// balancedEnd scans from an opening brace to its matching close, string and
// escape aware.
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// clip truncates s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// intentWire accepts a file intent as either an object or a bare path.
type intentWire struct {
	Path    string
	Purpose string
}

func (w *intentWire) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		w.Path = s
		return nil
	}
	var obj struct {
		Path    string `json:"path"`
		File    string `json:"file"`
		Purpose string `json:"purpose"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	w.Path = obj.Path
	if w.Path == "" {
		w.Path = obj.File
	}
	w.Purpose = obj.Purpose
	return nil
}

func intentsFromWire(ws []intentWire) []domain.FileIntent {
	out := make([]domain.FileIntent, 0, len(ws))
	for _, w := range ws {
		if w.Path == "" {
			continue
		}
		out = append(out, domain.FileIntent{Path: w.Path, Purpose: w.Purpose})
	}
	return out
}

type planWire struct {
	Analysis       string       `json:"analysis"`
	Context        string       `json:"context"`
	FilesToCreate  []intentWire `json:"files_to_create"`
	FilesToModify  []intentWire `json:"files_to_modify"`
	Steps          []stepWire   `json:"steps"`
	Considerations []string     `json:"considerations"`
}

type stepWire struct {
	Sequence    int    `json:"sequence"`
	Action      string `json:"action"`
	File        string `json:"file"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// CoercePlan turns raw planning output into a normalized Plan.
func CoercePlan(text string) (*domain.Plan, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "plan: no JSON object in stage output", nil)
	}
	var wire planWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "plan: payload does not decode", err)
	}

	plan := &domain.Plan{
		Analysis:       strings.TrimSpace(wire.Analysis),
		Context:        strings.TrimSpace(wire.Context),
		FilesToCreate:  intentsFromWire(wire.FilesToCreate),
		FilesToModify:  intentsFromWire(wire.FilesToModify),
		Considerations: wire.Considerations,
	}
	for _, s := range wire.Steps {
		file := s.File
		if file == "" {
			file = s.Path
		}
		plan.Steps = append(plan.Steps, domain.PlanStep{
			Sequence:    s.Sequence,
			Action:      domain.PlanAction(strings.ToLower(strings.TrimSpace(s.Action))),
			File:        file,
			Description: s.Description,
		})
	}
	NormalizePlan(plan)
	return plan, nil
}

// NormalizePlan restores the plan invariants: empty lists instead of nil,
// recognized step actions, unique monotonically increasing sequence numbers,
// and every step file present in an intent list.
func NormalizePlan(plan *domain.Plan) {
	if plan.FilesToCreate == nil {
		plan.FilesToCreate = []domain.FileIntent{}
	}
	if plan.FilesToModify == nil {
		plan.FilesToModify = []domain.FileIntent{}
	}
	if plan.Steps == nil {
		plan.Steps = []domain.PlanStep{}
	}
	if plan.Considerations == nil {
		plan.Considerations = []string{}
	}

	creating := make(map[string]bool)
	for _, f := range plan.FilesToCreate {
		creating[f.Path] = true
	}
	modifying := make(map[string]bool)
	for _, f := range plan.FilesToModify {
		modifying[f.Path] = true
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		switch step.Action {
		case domain.ActionCreate, domain.ActionModify:
		default:
			if creating[step.File] {
				step.Action = domain.ActionCreate
			} else {
				step.Action = domain.ActionModify
			}
		}
		if step.File == "" {
			continue
		}
		if !creating[step.File] && !modifying[step.File] {
			intent := domain.FileIntent{Path: step.File, Purpose: step.Description}
			if step.Action == domain.ActionCreate {
				plan.FilesToCreate = append(plan.FilesToCreate, intent)
				creating[step.File] = true
			} else {
				plan.FilesToModify = append(plan.FilesToModify, intent)
				modifying[step.File] = true
			}
		}
	}

	if !sequencesValid(plan.Steps) {
		sort.SliceStable(plan.Steps, func(i, j int) bool {
			return plan.Steps[i].Sequence < plan.Steps[j].Sequence
		})
		for i := range plan.Steps {
			plan.Steps[i].Sequence = i + 1
		}
	}
}

func sequencesValid(steps []domain.PlanStep) bool {
	last := 0
	for _, s := range steps {
		if s.Sequence <= last {
			return false
		}
		last = s.Sequence
	}
	return true
}

// lintWire accepts a lint outcome as either an object or a bare score.
type lintWire struct {
	Score       float64
	SyntaxValid bool
	Issues      []string
}

func (w *lintWire) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		w.Score = n
		w.SyntaxValid = true
		return nil
	}
	var obj struct {
		Score       float64  `json:"score"`
		SyntaxValid *bool    `json:"syntax_valid"`
		Issues      []string `json:"issues"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	w.Score = obj.Score
	w.SyntaxValid = obj.SyntaxValid == nil || *obj.SyntaxValid
	w.Issues = obj.Issues
	return nil
}

var implStatusSynonyms = map[string]domain.ImplStatus{
	"success":   domain.ImplSuccess,
	"succeeded": domain.ImplSuccess,
	"ok":        domain.ImplSuccess,
	"complete":  domain.ImplSuccess,
	"completed": domain.ImplSuccess,

	"partial":    domain.ImplPartial,
	"incomplete": domain.ImplPartial,

	"failed":  domain.ImplFailed,
	"failure": domain.ImplFailed,
	"error":   domain.ImplFailed,
}

type implWire struct {
	Status            string              `json:"status"`
	FilesCreated      []string            `json:"files_created"`
	FilesModified     []string            `json:"files_modified"`
	LintResults       map[string]lintWire `json:"linting_results"`
	LintResultsAlt    map[string]lintWire `json:"lint_results"`
	Summary           string              `json:"summary"`
	IssuesEncountered []string            `json:"issues_encountered"`
}

// CoerceImplementationReport turns raw implementation output into a report.
// The status scalar must be recoverable; the success invariant (every lint
// outcome at or above threshold, syntax valid) is restored by downgrading to
// partial when violated.
func CoerceImplementationReport(text string, threshold float64) (*domain.ImplementationReport, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "implementation report: no JSON object in stage output", nil)
	}
	var wire implWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "implementation report: payload does not decode", err)
	}

	status, ok := implStatusSynonyms[strings.ToLower(strings.TrimSpace(wire.Status))]
	if !ok {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code,
			"implementation report: status scalar is unrecoverable: "+strings.TrimSpace(wire.Status), nil)
	}

	lint := wire.LintResults
	if len(lint) == 0 {
		lint = wire.LintResultsAlt
	}

	report := &domain.ImplementationReport{
		Status:            status,
		FilesCreated:      wire.FilesCreated,
		FilesModified:     wire.FilesModified,
		LintResults:       make(map[string]domain.LintResult, len(lint)),
		Summary:           strings.TrimSpace(wire.Summary),
		IssuesEncountered: wire.IssuesEncountered,
	}
	for path, lw := range lint {
		issues := lw.Issues
		if issues == nil {
			issues = []string{}
		}
		report.LintResults[path] = domain.LintResult{Score: lw.Score, SyntaxValid: lw.SyntaxValid, Issues: issues}
	}
	NormalizeImplementationReport(report, threshold)
	return report, nil
}

// NormalizeImplementationReport fills defaults and restores the success
// invariant against the lint threshold.
func NormalizeImplementationReport(report *domain.ImplementationReport, threshold float64) {
	if report.FilesCreated == nil {
		report.FilesCreated = []string{}
	}
	if report.FilesModified == nil {
		report.FilesModified = []string{}
	}
	if report.LintResults == nil {
		report.LintResults = map[string]domain.LintResult{}
	}
	if report.IssuesEncountered == nil {
		report.IssuesEncountered = []string{}
	}

	if report.Status == domain.ImplSuccess {
		for _, lr := range report.LintResults {
			if lr.Score < threshold || !lr.SyntaxValid {
				report.Status = domain.ImplPartial
				break
			}
		}
	}
}

// issueWire accepts an issue as either an object or a bare description.
type issueWire struct {
	Description    string
	FixInstruction string
	Severity       string
}

func (w *issueWire) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		w.Description = s
		return nil
	}
	var obj struct {
		Description    string `json:"description"`
		Issue          string `json:"issue"`
		FixInstruction string `json:"fix_instruction"`
		Fix            string `json:"fix"`
		Suggestion     string `json:"suggestion"`
		Severity       string `json:"severity"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	w.Description = obj.Description
	if w.Description == "" {
		w.Description = obj.Issue
	}
	w.FixInstruction = obj.FixInstruction
	if w.FixInstruction == "" {
		w.FixInstruction = obj.Fix
	}
	if w.FixInstruction == "" {
		w.FixInstruction = obj.Suggestion
	}
	w.Severity = obj.Severity
	return nil
}

// fileQualityWire accepts a per-file assessment as an object or bare score.
type fileQualityWire struct {
	Score       float64
	SyntaxValid bool
	Issues      []string
}

func (w *fileQualityWire) UnmarshalJSON(b []byte) error {
	var lw lintWire
	if err := lw.UnmarshalJSON(b); err != nil {
		return err
	}
	w.Score = lw.Score
	w.SyntaxValid = lw.SyntaxValid
	w.Issues = lw.Issues
	return nil
}

var validationStatusSynonyms = map[string]domain.ValidationStatus{
	"approved": domain.ValidationApproved,
	"approve":  domain.ValidationApproved,
	"pass":     domain.ValidationApproved,
	"passed":   domain.ValidationApproved,

	"needs_fixes": domain.ValidationNeedsFixes,
	"needs-fixes": domain.ValidationNeedsFixes,
	"needs fixes": domain.ValidationNeedsFixes,
	"rejected":    domain.ValidationNeedsFixes,
	"fail":        domain.ValidationNeedsFixes,
	"failed":      domain.ValidationNeedsFixes,
}

var severitySynonyms = map[string]domain.Severity{
	"critical": domain.SeverityCritical,
	"blocker":  domain.SeverityCritical,

	"major": domain.SeverityMajor,
	"high":  domain.SeverityMajor,
	"error": domain.SeverityMajor,

	"minor":   domain.SeverityMinor,
	"low":     domain.SeverityMinor,
	"warning": domain.SeverityMinor,

	"info": domain.SeverityInfo,
	"note": domain.SeverityInfo,
}

type validationWire struct {
	Status            string                     `json:"status"`
	ChangesSummary    string                     `json:"changes_summary"`
	FilesReviewed     []string                   `json:"files_reviewed"`
	QualityAssessment map[string]fileQualityWire `json:"quality_assessment"`
	QualityScore      *float64                   `json:"quality_score"`
	OverallQuality    string                     `json:"overall_quality"`
	Issues            []issueWire                `json:"issues"`
	IssuesFound       []string                   `json:"issues_found"`
	FixInstructions   []string                   `json:"fix_instructions"`
	Approval          *bool                      `json:"approval"`
}

// CoerceValidationReport turns raw validator output into a report. Either
// the status or the approval scalar must be recoverable; issues arrive as
// paired objects or as the legacy parallel issues_found/fix_instructions
// lists, which are zipped in order.
func CoerceValidationReport(text string) (*domain.ValidationReport, error) {
	raw, ok := ExtractJSONObject(text)
	if !ok {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "validation report: no JSON object in stage output", nil)
	}
	var wire validationWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code, "validation report: payload does not decode", err)
	}

	status, haveStatus := validationStatusSynonyms[strings.ToLower(strings.TrimSpace(wire.Status))]
	if !haveStatus {
		if wire.Approval == nil {
			return nil, domain.WrapAgentError(domain.ErrSchemaViolation.Code,
				"validation report: neither status nor approval scalar is recoverable", nil)
		}
		if *wire.Approval {
			status = domain.ValidationApproved
		} else {
			status = domain.ValidationNeedsFixes
		}
	}

	report := &domain.ValidationReport{
		Status:         status,
		ChangesSummary: strings.TrimSpace(wire.ChangesSummary),
		FilesReviewed:  wire.FilesReviewed,
		OverallQuality: domain.Quality(strings.ToLower(strings.TrimSpace(wire.OverallQuality))),
		Approval:       wire.Approval != nil && *wire.Approval,
	}
	if wire.Approval == nil {
		report.Approval = status == domain.ValidationApproved
	}
	if wire.QualityScore != nil {
		report.QualityScore = *wire.QualityScore
	} else {
		report.QualityScore = -1 // sentinel for NormalizeValidationReport
	}

	report.QualityAssessment = make(map[string]domain.FileQuality, len(wire.QualityAssessment))
	for path, fq := range wire.QualityAssessment {
		issues := fq.Issues
		if issues == nil {
			issues = []string{}
		}
		report.QualityAssessment[path] = domain.FileQuality{Score: fq.Score, SyntaxValid: fq.SyntaxValid, Issues: issues}
	}

	for _, iw := range wire.Issues {
		if iw.Description == "" && iw.FixInstruction == "" {
			continue
		}
		report.Issues = append(report.Issues, domain.ValidationIssue{
			Description:    iw.Description,
			FixInstruction: iw.FixInstruction,
			Severity:       severitySynonyms[strings.ToLower(strings.TrimSpace(iw.Severity))],
		})
	}
	if len(report.Issues) == 0 && len(wire.IssuesFound) > 0 {
		for i, desc := range wire.IssuesFound {
			issue := domain.ValidationIssue{Description: desc}
			if i < len(wire.FixInstructions) {
				issue.FixInstruction = wire.FixInstructions[i]
			}
			report.Issues = append(report.Issues, issue)
		}
		for i := len(wire.IssuesFound); i < len(wire.FixInstructions); i++ {
			report.Issues = append(report.Issues, domain.ValidationIssue{Description: wire.FixInstructions[i]})
		}
	}

	NormalizeValidationReport(report)
	return report, nil
}

// NormalizeValidationReport restores the approval invariant chain
// conservatively: inconsistent scalars resolve to needs_fixes, unlabeled
// issues default to major under needs_fixes and minor under approved, and an
// approved report carrying a blocking issue is demoted.
func NormalizeValidationReport(report *domain.ValidationReport) {
	if report.FilesReviewed == nil {
		report.FilesReviewed = []string{}
	}
	if report.QualityAssessment == nil {
		report.QualityAssessment = map[string]domain.FileQuality{}
	}
	if report.Issues == nil {
		report.Issues = []domain.ValidationIssue{}
	}

	if report.Approval != (report.Status == domain.ValidationApproved) {
		report.Status = domain.ValidationNeedsFixes
		report.Approval = false
	}

	defaultSeverity := domain.SeverityMajor
	if report.Approval {
		defaultSeverity = domain.SeverityMinor
	}
	for i := range report.Issues {
		switch report.Issues[i].Severity {
		case domain.SeverityCritical, domain.SeverityMajor, domain.SeverityMinor, domain.SeverityInfo:
		default:
			report.Issues[i].Severity = defaultSeverity
		}
	}

	if report.Approval {
		for _, issue := range report.Issues {
			if IsBlocking(issue.Severity) {
				report.Status = domain.ValidationNeedsFixes
				report.Approval = false
				break
			}
		}
	}

	if report.QualityScore < 0 {
		switch {
		case len(report.QualityAssessment) > 0:
			report.QualityScore = OverallScore(report.QualityAssessment)
		case report.OverallQuality != "":
			report.QualityScore = bandScore(report.OverallQuality)
		case report.Approval:
			report.QualityScore = 8.0
		default:
			report.QualityScore = 5.0
		}
	}

	switch report.OverallQuality {
	case domain.QualityExcellent, domain.QualityGood, domain.QualityNeedsImprovement:
	default:
		report.OverallQuality = QualityBand(report.QualityScore)
	}
}

// FallbackPlan is the best-effort plan used when coercion fails even after
// the corrective retry. The raw text is preserved as exploration context.
func FallbackPlan(raw string) *domain.Plan {
	plan := &domain.Plan{
		Analysis: "Failed to produce a structured plan from the stage output",
		Context:  clip(strings.TrimSpace(raw), 500),
	}
	NormalizePlan(plan)
	return plan
}

// FallbackImplementationReport is the best-effort report for unparseable
// implementation output.
func FallbackImplementationReport(raw string) *domain.ImplementationReport {
	report := &domain.ImplementationReport{
		Status:            domain.ImplFailed,
		Summary:           "Failed to produce a structured implementation report",
		IssuesEncountered: []string{clip(strings.TrimSpace(raw), 500)},
	}
	NormalizeImplementationReport(report, 0)
	return report
}

// FallbackValidationReport is the best-effort report for unparseable
// validator output. It never approves.
func FallbackValidationReport(raw string) *domain.ValidationReport {
	report := &domain.ValidationReport{
		Status:         domain.ValidationNeedsFixes,
		ChangesSummary: "Failed to produce a structured validation report",
		Issues: []domain.ValidationIssue{{
			Description: "Validation output could not be parsed: " + clip(strings.TrimSpace(raw), 200),
			Severity:    domain.SeverityMajor,
		}},
		OverallQuality: domain.QualityNeedsImprovement,
		QualityScore:   -1,
		Approval:       false,
	}
	NormalizeValidationReport(report)
	return report
}
