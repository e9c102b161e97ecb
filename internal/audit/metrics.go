package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks relay metrics and serves them in Prometheus text format.
// It uses a private prometheus.Registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	skillPosts       *prometheus.CounterVec
	skillLatency     *prometheus.HistogramVec
	skillsActive     prometheus.Gauge
	oauthOutcomes    *prometheus.CounterVec
	rateLimitHits    *prometheus.CounterVec
	configReloads    *prometheus.CounterVec
	configReloadTime prometheus.Gauge
	buildInfo        *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics collector with a custom Prometheus registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_http_requests_total",
			Help: "Total number of inbound HTTP requests by route and status code.",
		}, []string{"route", "status"}),

		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_turns_total",
			Help: "Total number of turns processed.",
		}, []string{"channel", "activity_type", "status"}),

		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillrelay_turn_duration_seconds",
			Help:    "Turn duration in seconds, middleware and bot logic included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		skillPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_skill_posts_total",
			Help: "Total number of activities posted to skills by outcome.",
		}, []string{"skill", "outcome"}),

		skillLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillrelay_skill_post_duration_seconds",
			Help:    "Skill POST round-trip time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"skill"}),

		skillsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillrelay_skills_registered",
			Help: "Number of skills in the current registry.",
		}),

		oauthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_oauth_outcomes_total",
			Help: "Total number of OAuth flow steps by outcome.",
		}, []string{"outcome"}),

		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_rate_limit_hits_total",
			Help: "Total number of requests rejected by an ingress limiter.",
		}, []string{"layer"}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillrelay_config_reloads_total",
			Help: "Total number of configuration reload attempts.",
		}, []string{"result"}),

		configReloadTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillrelay_config_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful configuration reload.",
		}),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skillrelay_build_info",
			Help: "Build information about the skillrelay binary. Value is always 1.",
		}, []string{"version", "go_version"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.turnsTotal,
		m.turnDuration,
		m.skillPosts,
		m.skillLatency,
		m.skillsActive,
		m.oauthOutcomes,
		m.rateLimitHits,
		m.configReloads,
		m.configReloadTime,
		m.buildInfo,
	)

	return m
}

// Handler returns an HTTP handler that serves the registry in Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one inbound HTTP request.
func (m *Metrics) RecordRequest(route string, status int) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordTurn counts a finished turn and observes its duration.
func (m *Metrics) RecordTurn(channelID, activityType, status string, d time.Duration) {
	m.turnsTotal.WithLabelValues(channelID, activityType, status).Inc()
	m.turnDuration.WithLabelValues(channelID).Observe(d.Seconds())
}

// RecordSkillPost records one POST to a skill. Outcome is "ok", "rejected"
// or "error".
func (m *Metrics) RecordSkillPost(skillID, outcome string, d time.Duration) {
	m.skillPosts.WithLabelValues(skillID, outcome).Inc()
	m.skillLatency.WithLabelValues(skillID).Observe(d.Seconds())
}

// SetSkillsRegistered sets the registered skill count.
func (m *Metrics) SetSkillsRegistered(n int) {
	m.skillsActive.Set(float64(n))
}

// RecordOAuthOutcome counts one terminal step of an OAuth negotiation.
func (m *Metrics) RecordOAuthOutcome(outcome string) {
	m.oauthOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts a rejection by the named limiter layer.
func (m *Metrics) RecordRateLimited(layer string) {
	m.rateLimitHits.WithLabelValues(layer).Inc()
}

// RecordConfigReload records a configuration reload attempt.
// Pass true for a successful reload, false for a failure.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetConfigReloadTime records the timestamp of the last configuration reload.
func (m *Metrics) SetConfigReloadTime(t time.Time) {
	m.configReloadTime.Set(float64(t.Unix()))
}

// SetBuildInfo sets the build information gauge. The gauge value is always 1;
// version and Go version are exposed as labels.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.buildInfo.WithLabelValues(version, goVersion).Set(1)
}
