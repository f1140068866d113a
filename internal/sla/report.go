package sla

import (
	"fmt"
	"sort"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// SLACompliance summarizes one SLA over a reporting window.
type SLACompliance struct {
	SLAID          string          `json:"sla_id"`
	Name           string          `json:"name"`
	Metric         model.SLAMetric `json:"metric"`
	Measurements   int             `json:"measurements"`
	MetCount       int             `json:"met_count"`
	WarningCount   int             `json:"warning_count"`
	ViolatedCount  int             `json:"violated_count"`
	CriticalCount  int             `json:"critical_count"`
	CompliancePct  float64         `json:"compliance_pct"`
	AverageValue   float64         `json:"average_value"`
	WorstValue     float64         `json:"worst_value"`
	CurrentStatus  model.SLAStatus `json:"current_status"`
	ViolationCount int             `json:"violation_count"`
}

// ComplianceReport is an aggregate view over all SLAs for a window.
type ComplianceReport struct {
	Window          time.Duration   `json:"window"`
	GeneratedAt     time.Time       `json:"generated_at"`
	OverallPct      float64         `json:"overall_pct"`
	SLAs            []SLACompliance `json:"slas"`
	TotalAlerts     int             `json:"total_alerts"`
	OpenAlerts      int             `json:"open_alerts"`
	TotalViolated   int             `json:"total_violations"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// Report builds a compliance report covering the trailing window. Compliance
// percentage counts MET and WARNING samples as compliant.
func (m *Monitor) Report(window time.Duration) *ComplianceReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-window)
	report := &ComplianceReport{Window: window, GeneratedAt: now}

	ids := make([]string, 0, len(m.definitions))
	for id := range m.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var compliantTotal, sampleTotal int
	for _, id := range ids {
		def := m.definitions[id]
		sc := SLACompliance{SLAID: id, Name: def.Name, Metric: def.Metric, CurrentStatus: model.SLAMet}

		var sum float64
		for _, s := range m.measurements[id] {
			if !s.MeasuredAt.After(cutoff) {
				continue
			}
			sc.Measurements++
			sum += s.Value
			switch s.Status {
			case model.SLAMet:
				sc.MetCount++
			case model.SLAWarning:
				sc.WarningCount++
			case model.SLAViolated:
				sc.ViolatedCount++
			case model.SLACritical:
				sc.CriticalCount++
			}
			if sc.Measurements == 1 || worseValue(def, s.Value, sc.WorstValue) {
				sc.WorstValue = s.Value
			}
			sc.CurrentStatus = s.Status
		}
		if sc.Measurements > 0 {
			sc.AverageValue = sum / float64(sc.Measurements)
			compliant := sc.MetCount + sc.WarningCount
			sc.CompliancePct = 100 * float64(compliant) / float64(sc.Measurements)
			compliantTotal += compliant
			sampleTotal += sc.Measurements
		} else {
			sc.CompliancePct = 100
		}
		for _, v := range m.violations[id] {
			if v.OccurredAt.After(cutoff) {
				sc.ViolationCount++
				report.TotalViolated++
			}
		}
		report.SLAs = append(report.SLAs, sc)
	}

	if sampleTotal > 0 {
		report.OverallPct = 100 * float64(compliantTotal) / float64(sampleTotal)
	} else {
		report.OverallPct = 100
	}
	for _, a := range m.alerts {
		if a.CreatedAt.After(cutoff) {
			report.TotalAlerts++
			if a.ResolvedAt == nil {
				report.OpenAlerts++
			}
		}
	}
	report.Recommendations = recommendations(report)
	return report
}

// recommendations turns low compliance and critical samples into operator
// guidance.
func recommendations(r *ComplianceReport) []string {
	var recs []string
	for _, sc := range r.SLAs {
		if sc.CriticalCount > 0 {
			recs = append(recs, fmt.Sprintf("%s: %d critical samples on %s; investigate immediately", sc.Name, sc.CriticalCount, sc.Metric))
		} else if sc.Measurements > 0 && sc.CompliancePct < 90 {
			recs = append(recs, fmt.Sprintf("%s: compliance %.1f%% on %s; review target or capacity", sc.Name, sc.CompliancePct, sc.Metric))
		}
	}
	if r.OpenAlerts > 0 {
		recs = append(recs, fmt.Sprintf("%d alerts remain unresolved; triage open alerts", r.OpenAlerts))
	}
	return recs
}

// worseValue reports whether candidate is worse than current for the
// definition's favorable direction.
func worseValue(def *model.SLADefinition, candidate, current float64) bool {
	if def.Metric.LowerIsBetter() {
		return candidate > current
	}
	return candidate < current
}
