package constraint

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/convoctx/convoctx/types"
)

// recentWindow is how many trailing messages feed the extraction scan.
const recentWindow = 5

// Detector inspects recent conversation text and emits zero or more
// candidate constraints. Detectors are independent units: registering a
// new one requires no change at call sites.
type Detector interface {
	// Name identifies the detector, for logging.
	Name() string

	// Detect scans the text and returns candidates found in it. The
	// returned candidates carry no conversation id; the extractor
	// stamps it.
	Detect(text string, turnNumber int) []Candidate
}

// DefaultDetectors returns the built-in detector set, in evaluation
// order. Corrections run first so a correction and the preference it
// replaces are both observed in one pass.
func DefaultDetectors() []Detector {
	return []Detector{
		correctionDetector{},
		answerStyleDetector{},
		technicalDepthDetector{},
		metricsRuleDetector{},
		dashboardRuleDetector{},
		techBanDetector{},
	}
}

// Extractor runs an ordered detector registry over recent conversation
// text. It is stateless and safe for concurrent use.
type Extractor struct {
	detectors []Detector
}

// NewExtractor creates an Extractor with the given detectors. Passing
// none installs the default set.
func NewExtractor(detectors ...Detector) *Extractor {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Extractor{detectors: detectors}
}

// Extract scans the trailing messages plus the incoming user message
// and returns the candidate constraints found. Candidates equivalent to
// one already produced in the same call are dropped; persistence-level
// deduplication and supersession are the store's job.
func (e *Extractor) Extract(conversationID uuid.UUID, recent []types.Message, incoming string, turnNumber int) []Candidate {
	parts := make([]string, 0, recentWindow+1)
	start := 0
	if len(recent) > recentWindow {
		start = len(recent) - recentWindow
	}
	for _, msg := range recent[start:] {
		parts = append(parts, msg.Content)
	}
	if incoming != "" {
		parts = append(parts, incoming)
	}
	text := strings.Join(parts, " ")

	var out []Candidate
	for _, d := range e.detectors {
		for _, cand := range d.Detect(text, turnNumber) {
			cand.ConversationID = conversationID
			if containsEquivalent(out, cand) {
				continue
			}
			out = append(out, cand)
		}
	}
	return out
}

func containsEquivalent(candidates []Candidate, c Candidate) bool {
	for _, existing := range candidates {
		if existing.Equivalent(c) {
			return true
		}
	}
	return false
}

// Correction patterns match two numbers in proximity to corrective
// language. The leading-corrective-word form states the replacement
// first ("I'm 27, not 26"), so its groups capture new then old; the
// bare form states the old value first ("26 but actually 27"). Known
// false-positive risk: unrelated numeric text near "not"/"actually"
// can match; confidence gating is a follow-up, the patterns are
// deliberately kept loose.
var correctionPatterns = []struct {
	re       *regexp.Regexp
	newFirst bool
}{
	{regexp.MustCompile(`(?i)(?:actually|correct|not|wrong).*?(\d+).*?(?:not|but|actually).*?(\d+)`), true},
	{regexp.MustCompile(`(?i)(\d+).*?(?:not|but|actually).*?(\d+)`), false},
}

type correctionDetector struct{}

func (correctionDetector) Name() string { return "correction" }

// Detect may emit several distinct old/new pairs per call. Both
// patterns can match the same number pair in opposite group order, so
// a pair whose reverse was already emitted is dropped.
func (correctionDetector) Detect(text string, turnNumber int) []Candidate {
	var out []Candidate
	for _, pattern := range correctionPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			oldVal, newVal := match[1], match[2]
			if pattern.newFirst {
				oldVal, newVal = newVal, oldVal
			}
			if oldVal == newVal {
				continue
			}
			cand := Candidate{
				Type:       TypeCorrection,
				Key:        KeyNumericFact,
				Value:      CorrectionValue{OldValue: oldVal, NewValue: newVal},
				TurnNumber: turnNumber,
			}
			reversed := cand
			reversed.Value = CorrectionValue{OldValue: newVal, NewValue: oldVal}
			if containsEquivalent(out, cand) || containsEquivalent(out, reversed) {
				continue
			}
			out = append(out, cand)
		}
	}
	return out
}

var answerStylePattern = regexp.MustCompile(`(?i)prefer.*?(?:short|brief|concise|structured|bullet)`)

type answerStyleDetector struct{}

func (answerStyleDetector) Name() string { return "answer_style" }

func (answerStyleDetector) Detect(text string, turnNumber int) []Candidate {
	if !answerStylePattern.MatchString(text) {
		return nil
	}
	return []Candidate{{
		Type:       TypePreference,
		Key:        KeyAnswerStyle,
		Value:      PreferenceValue{Style: "short_bullet_points"},
		TurnNumber: turnNumber,
	}}
}

var technicalDepthPattern = regexp.MustCompile(`(?i)don't.*?like.*?(?:technical|verbose)`)

type technicalDepthDetector struct{}

func (technicalDepthDetector) Name() string { return "technical_depth" }

func (technicalDepthDetector) Detect(text string, turnNumber int) []Candidate {
	if !technicalDepthPattern.MatchString(text) {
		return nil
	}
	return []Candidate{{
		Type:       TypePreference,
		Key:        KeyTechnicalDepth,
		Value:      PreferenceValue{Depth: "minimal_unless_asked"},
		TurnNumber: turnNumber,
	}}
}

var metricsRulePattern = regexp.MustCompile(`(?i)when.*?say.*?"?metrics"?.*?mean.*?([A-Z]+(?:\s*,\s*[A-Z]+)*)`)

type metricsRuleDetector struct{}

func (metricsRuleDetector) Name() string { return "metrics_rule" }

func (metricsRuleDetector) Detect(text string, turnNumber int) []Candidate {
	match := metricsRulePattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	var metrics []string
	for _, m := range strings.Split(match[1], ",") {
		metrics = append(metrics, strings.TrimSpace(m))
	}
	return []Candidate{{
		Type:       TypeRule,
		Key:        KeyMetricsDefinition,
		Value:      RuleValue{AllowedMetrics: metrics},
		TurnNumber: turnNumber,
	}}
}

var dashboardRulePattern = regexp.MustCompile(`(?i)(?:when|if).*?say.*?"?dashboard"?.*?(?:mean|refer).*?(web|mobile)`)

type dashboardRuleDetector struct{}

func (dashboardRuleDetector) Name() string { return "dashboard_rule" }

func (dashboardRuleDetector) Detect(text string, turnNumber int) []Candidate {
	match := dashboardRulePattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return []Candidate{{
		Type:       TypeRule,
		Key:        KeyDashboardDefinition,
		Value:      RuleValue{DashboardType: strings.ToLower(match[1])},
		TurnNumber: turnNumber,
	}}
}

var techBanPattern = regexp.MustCompile(`(?i)(?:don't|do not|never).*?(?:suggest|use|mention).*?([A-Z][a-zA-Z]+)`)

type techBanDetector struct{}

func (techBanDetector) Name() string { return "tech_ban" }

func (techBanDetector) Detect(text string, turnNumber int) []Candidate {
	match := techBanPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return []Candidate{{
		Type:       TypeBan,
		Key:        KeyTechBan,
		Value:      BanValue{BannedItem: match[1]},
		TurnNumber: turnNumber,
	}}
}
