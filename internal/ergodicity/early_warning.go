package ergodicity

import (
	"sort"
	"strings"
	"time"

	"lateral/engine/internal/domain"
)

// Severity is a sensor or aggregate risk level.
type Severity string

const (
	SeveritySafe     Severity = "SAFE"
	SeverityCaution  Severity = "CAUTION"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeveritySafe:     0,
	SeverityCaution:  1,
	SeverityWarning:  2,
	SeverityCritical: 3,
}

// fixed severity thresholds, spec §4.5.
const (
	thresholdCaution  = 0.50
	thresholdWarning  = 0.70
	thresholdCritical = 0.85
	barrierCritical   = 0.15
)

func severityFor(rawValue, distanceToBarrier float64) Severity {
	switch {
	case rawValue > thresholdCritical || distanceToBarrier < barrierCritical:
		return SeverityCritical
	case rawValue > thresholdWarning:
		return SeverityWarning
	case rawValue > thresholdCaution:
		return SeverityCaution
	default:
		return SeveritySafe
	}
}

// SensorResult is one independent absorbing-barrier sensor's reading.
type SensorResult struct {
	Sensor            string   `json:"sensor"`
	RawValue          float64  `json:"rawValue"`
	Indicators        []string `json:"indicators"`
	DistanceToBarrier float64  `json:"distanceToBarrier"`
	Severity          Severity `json:"severity"`
}

// Assessment is the aggregated result of all sensors over one session.
type Assessment struct {
	Sensors            []SensorResult `json:"sensors"`
	OverallSeverity    Severity       `json:"overallSeverity"`
	CompoundRisk       bool           `json:"compoundRisk"`
	RecommendedAction  string         `json:"recommendedAction"`
	RecommendedProtocol string        `json:"recommendedProtocol,omitempty"`
}

// quickFixKeywords is the lexicon the technical_debt sensor scans for.
var quickFixKeywords = []string{"quick fix", "hack", "workaround", "temporary", "just for now", "cut corner"}

// EarlyWarningSystem runs the five required sensors over a session's
// PathMemory and aggregates them into one risk assessment.
type EarlyWarningSystem struct {
	calc *FlexibilityCalculator
}

// NewEarlyWarningSystem builds an early-warning system over the given
// flexibility calculator (sensors reuse its snapshot rather than
// recomputing flexibility independently).
func NewEarlyWarningSystem(calc *FlexibilityCalculator) *EarlyWarningSystem {
	if calc == nil {
		calc = NewFlexibilityCalculator()
	}
	return &EarlyWarningSystem{calc: calc}
}

// Evaluate runs all sensors against a session's state and path event log.
func (w *EarlyWarningSystem) Evaluate(session *domain.Session, events []domain.PathEvent, now time.Time) Assessment {
	snapshot := w.calc.Compute(events)

	sensors := []SensorResult{
		w.resourceSensor(session, now),
		w.cognitiveSensor(session, events),
		w.technicalDebtSensor(session, events),
		w.optionClosureSensor(events),
		w.reversibilitySensor(events, snapshot),
	}

	overall := SeveritySafe
	warnings := 0
	for _, s := range sensors {
		if severityRank[s.Severity] > severityRank[overall] {
			overall = s.Severity
		}
		if s.Severity == SeverityWarning {
			warnings++
		}
	}
	compound := warnings >= 2
	if compound && severityRank[overall] < severityRank[SeverityCritical] {
		overall = SeverityCritical
	}

	assessment := Assessment{
		Sensors:           sensors,
		OverallSeverity:   overall,
		CompoundRisk:      compound,
		RecommendedAction: actionFor(overall),
	}
	if overall == SeverityWarning || overall == SeverityCritical {
		assessment.RecommendedProtocol = recommendProtocol(snapshot.FlexibilityScore)
	}
	return assessment
}

func actionFor(s Severity) string {
	switch s {
	case SeveritySafe:
		return "continue"
	case SeverityCaution:
		return "monitor"
	case SeverityWarning:
		return "pivot"
	case SeverityCritical:
		return "escape"
	default:
		return "continue"
	}
}

// resourceSensor watches session duration and step rate.
func (w *EarlyWarningSystem) resourceSensor(session *domain.Session, now time.Time) SensorResult {
	if session == nil {
		return SensorResult{Sensor: "resource", Severity: SeveritySafe, DistanceToBarrier: 1}
	}
	duration := now.Sub(session.StartTime)
	const longSession = 30 * time.Minute
	durationFactor := clampFloat(duration.Minutes()/longSession.Minutes(), 0, 1)

	steps := len(session.History)
	var rateFactor float64
	if duration > 0 && steps > 0 {
		stepsPerMinute := float64(steps) / duration.Minutes()
		// A session grinding out many steps per minute without reflection
		// is itself a resource-pressure indicator.
		rateFactor = clampFloat((stepsPerMinute-4)/8, 0, 1)
	}
	raw := clampFloat(0.7*durationFactor+0.3*rateFactor, 0, 1)

	var indicators []string
	if durationFactor > 0.5 {
		indicators = append(indicators, "session running long")
	}
	if rateFactor > 0.3 {
		indicators = append(indicators, "high step rate")
	}
	return SensorResult{
		Sensor:            "resource",
		RawValue:          raw,
		Indicators:        indicators,
		DistanceToBarrier: clampFloat(1-raw, 0, 1),
		Severity:          severityFor(raw, clampFloat(1-raw, 0, 1)),
	}
}

// cognitiveSensor watches technique diversity, decision repetition, and
// assumption-questioning rate.
func (w *EarlyWarningSystem) cognitiveSensor(session *domain.Session, events []domain.PathEvent) SensorResult {
	if len(events) == 0 {
		return SensorResult{Sensor: "cognitive", Severity: SeveritySafe, DistanceToBarrier: 1}
	}
	seenTechniques := make(map[string]bool)
	decisionCounts := make(map[string]int)
	questioning := 0
	for _, e := range events {
		seenTechniques[e.Technique] = true
		decisionCounts[strings.ToLower(strings.TrimSpace(e.Decision))]++
		if strings.Contains(strings.ToLower(e.Decision), "assum") || strings.Contains(strings.ToLower(e.Decision), "why") {
			questioning++
		}
	}
	diversity := float64(len(seenTechniques))
	diversityFactor := clampFloat(1-(diversity-1)/4, 0, 1) // more techniques => lower risk

	maxRepeat := 0
	for _, c := range decisionCounts {
		if c > maxRepeat {
			maxRepeat = c
		}
	}
	repetitionFactor := clampFloat(float64(maxRepeat-1)/float64(len(events)), 0, 1)

	questioningFactor := clampFloat(1-float64(questioning)/float64(len(events))*3, 0, 1)

	raw := clampFloat((diversityFactor+repetitionFactor+questioningFactor)/3, 0, 1)

	var indicators []string
	if repetitionFactor > 0.4 {
		indicators = append(indicators, "decision repetition")
	}
	if questioningFactor > 0.6 {
		indicators = append(indicators, "low assumption-questioning rate")
	}
	return SensorResult{
		Sensor:            "cognitive",
		RawValue:          raw,
		Indicators:        indicators,
		DistanceToBarrier: clampFloat(1-raw, 0, 1),
		Severity:          severityFor(raw, clampFloat(1-raw, 0, 1)),
	}
}

// technicalDebtSensor watches quick-fix keyword density and how tightly
// option closures couple to decisions (closing many options per decision).
func (w *EarlyWarningSystem) technicalDebtSensor(session *domain.Session, events []domain.PathEvent) SensorResult {
	if len(events) == 0 {
		return SensorResult{Sensor: "technical_debt", Severity: SeveritySafe, DistanceToBarrier: 1}
	}
	keywordHits := 0
	totalWords := 0
	for _, e := range events {
		text := strings.ToLower(e.Decision)
		totalWords += len(strings.Fields(text))
		for _, kw := range quickFixKeywords {
			if strings.Contains(text, kw) {
				keywordHits++
			}
		}
	}
	if session != nil {
		for _, h := range session.History {
			totalWords += len(strings.Fields(h.Output))
			lower := strings.ToLower(h.Output)
			for _, kw := range quickFixKeywords {
				if strings.Contains(lower, kw) {
					keywordHits++
				}
			}
		}
	}
	var density float64
	if totalWords > 0 {
		density = clampFloat(float64(keywordHits)*20/float64(totalWords), 0, 1)
	}

	var opened, closed int
	for _, e := range events {
		opened += len(e.OptionsOpened)
		closed += len(e.OptionsClosed)
	}
	var coupling float64
	if opened+closed > 0 {
		coupling = clampFloat(float64(closed)/float64(opened+closed), 0, 1)
	}

	raw := clampFloat(0.5*density+0.5*coupling, 0, 1)
	var indicators []string
	if keywordHits > 0 {
		indicators = append(indicators, "quick-fix language present")
	}
	if coupling > 0.6 {
		indicators = append(indicators, "option closures outpace openings")
	}
	return SensorResult{
		Sensor:            "technical_debt",
		RawValue:          raw,
		Indicators:        indicators,
		DistanceToBarrier: clampFloat(1-raw, 0, 1),
		Severity:          severityFor(raw, clampFloat(1-raw, 0, 1)),
	}
}

// optionClosureSensor watches the raw rate of optionsClosed across events.
func (w *EarlyWarningSystem) optionClosureSensor(events []domain.PathEvent) SensorResult {
	if len(events) == 0 {
		return SensorResult{Sensor: "optionClosure", Severity: SeveritySafe, DistanceToBarrier: 1}
	}
	closedEvents := 0
	for _, e := range events {
		if len(e.OptionsClosed) > 0 {
			closedEvents++
		}
	}
	raw := clampFloat(float64(closedEvents)/float64(len(events)), 0, 1)
	var indicators []string
	if raw > 0.6 {
		indicators = append(indicators, "most steps close options")
	}
	return SensorResult{
		Sensor:            "optionClosure",
		RawValue:          raw,
		Indicators:        indicators,
		DistanceToBarrier: clampFloat(1-raw, 0, 1),
		Severity:          severityFor(raw, clampFloat(1-raw, 0, 1)),
	}
}

// reversibilitySensor watches mean reversibility cost directly, reusing
// the flexibility calculator's reversibility index.
func (w *EarlyWarningSystem) reversibilitySensor(events []domain.PathEvent, snapshot domain.FlexibilitySnapshot) SensorResult {
	if len(events) == 0 {
		return SensorResult{Sensor: "reversibility", Severity: SeveritySafe, DistanceToBarrier: 1}
	}
	raw := clampFloat(1-snapshot.ReversibilityIndex, 0, 1)
	var indicators []string
	if raw > 0.6 {
		indicators = append(indicators, "decisions trending hard to reverse")
	}
	return SensorResult{
		Sensor:            "reversibility",
		RawValue:          raw,
		Indicators:        indicators,
		DistanceToBarrier: snapshot.ReversibilityIndex,
		Severity:          severityFor(raw, snapshot.ReversibilityIndex),
	}
}

// sortedSensorNames returns the sensors' names in lexical order.
func sortedSensorNames(sensors []SensorResult) []string {
	names := make([]string, len(sensors))
	for i, s := range sensors {
		names[i] = s.Sensor
	}
	sort.Strings(names)
	return names
}
