package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brock-run/spec-driven-development/aggregation"
)

const namespace = "sddcheck"

// WriteMetrics writes r in the Prometheus text format to path, for pickup by
// a node exporter textfile collector.
func WriteMetrics(path string, r *aggregation.Report, score float64) error {
	reg := prometheus.NewRegistry()

	units := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "units",
		Help:      "Validated units by outcome.",
	}, []string{"outcome"})
	tiers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tier_units",
		Help:      "Validated units by scoring tier and outcome.",
	}, []string{"tier", "outcome"})
	groups := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "group_units",
		Help:      "Validated units by breakdown group and outcome.",
	}, []string{"group", "outcome"})
	warnings := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "warnings",
		Help:      "Advisory findings across all units.",
	})
	quality := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quality_score",
		Help:      "Weighted quality score in [0,100].",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the report was generated.",
	})

	reg.MustRegister(units, tiers, groups, warnings, quality, lastRun)

	units.WithLabelValues("passed").Set(float64(r.Passed))
	units.WithLabelValues("failed").Set(float64(r.Failed))
	setCounts(tiers.MustCurryWith(prometheus.Labels{"tier": "required"}), r.Tiers.Required)
	setCounts(tiers.MustCurryWith(prometheus.Labels{"tier": "optional"}), r.Tiers.Optional)
	for group, c := range r.GroupBreakdown {
		setCounts(groups.MustCurryWith(prometheus.Labels{"group": group}), c)
	}
	warnings.Set(float64(r.Warnings()))
	quality.Set(score)
	lastRun.Set(float64(r.GeneratedAt.Unix()))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func setCounts(vec *prometheus.GaugeVec, c aggregation.Counts) {
	vec.WithLabelValues("passed").Set(float64(c.Passed))
	vec.WithLabelValues("failed").Set(float64(c.Failed))
}
