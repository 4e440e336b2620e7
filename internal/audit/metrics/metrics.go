package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AuditsSubmitted       prometheus.Counter
	CriticalFails         prometheus.Counter
	ApprovalsBlocked      prometheus.Counter
	FindingsGenerated     prometheus.Counter
	IncompleteSubmissions prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AuditsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_audits_submitted_total",
			Help: "Total number of audits successfully submitted",
		}),
		CriticalFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_audit_critical_fails_total",
			Help: "Total number of submissions flagged with a critical-item failure",
		}),
		ApprovalsBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_audit_approvals_blocked_total",
			Help: "Total number of approvals blocked by open CAPAs",
		}),
		FindingsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_findings_generated_total",
			Help: "Total number of findings derived from submissions",
		}),
		IncompleteSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_incomplete_submissions_total",
			Help: "Total number of submissions rejected by the completeness gate",
		}),
	}
}

func (m *Metrics) IncrementSubmitted()  { m.AuditsSubmitted.Inc() }
func (m *Metrics) IncrementCritical()   { m.CriticalFails.Inc() }
func (m *Metrics) IncrementBlocked()    { m.ApprovalsBlocked.Inc() }
func (m *Metrics) IncrementIncomplete() { m.IncompleteSubmissions.Inc() }

func (m *Metrics) AddFindings(n int) {
	m.FindingsGenerated.Add(float64(n))
}
