package audit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func assertContains(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Errorf("metrics output missing %q\n%s", w, body)
		}
	}
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("messages", 200)
	m.RecordRequest("messages", 200)
	m.RecordRequest("skills", 404)

	assertContains(t, scrape(t, m),
		`skillrelay_http_requests_total{route="messages",status="200"} 2`,
		`skillrelay_http_requests_total{route="skills",status="404"} 1`,
	)
}

func TestMetrics_RecordTurn(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn("msteams", "message", StatusOK, 120*time.Millisecond)
	m.RecordTurn("msteams", "message", StatusError, 30*time.Millisecond)

	assertContains(t, scrape(t, m),
		`skillrelay_turns_total{activity_type="message",channel="msteams",status="ok"} 1`,
		`skillrelay_turns_total{activity_type="message",channel="msteams",status="error"} 1`,
		`skillrelay_turn_duration_seconds_count{channel="msteams"} 2`,
	)
}

func TestMetrics_RecordSkillPost(t *testing.T) {
	m := NewMetrics()
	m.RecordSkillPost("echo", "ok", 50*time.Millisecond)
	m.RecordSkillPost("echo", "rejected", 10*time.Millisecond)
	m.SetSkillsRegistered(3)

	assertContains(t, scrape(t, m),
		`skillrelay_skill_posts_total{outcome="ok",skill="echo"} 1`,
		`skillrelay_skill_posts_total{outcome="rejected",skill="echo"} 1`,
		`skillrelay_skill_post_duration_seconds_count{skill="echo"} 2`,
		`skillrelay_skills_registered 3`,
	)
}

func TestMetrics_OAuthAndRateLimits(t *testing.T) {
	m := NewMetrics()
	m.RecordOAuthOutcome("prompted")
	m.RecordOAuthOutcome("token_received")
	m.RecordOAuthOutcome("token_received")
	m.RecordRateLimited("ip_rate_limiter")

	assertContains(t, scrape(t, m),
		`skillrelay_oauth_outcomes_total{outcome="prompted"} 1`,
		`skillrelay_oauth_outcomes_total{outcome="token_received"} 2`,
		`skillrelay_rate_limit_hits_total{layer="ip_rate_limiter"} 1`,
	)
}

func TestMetrics_ConfigReload(t *testing.T) {
	m := NewMetrics()
	m.RecordConfigReload(true)
	m.RecordConfigReload(false)
	m.SetConfigReloadTime(time.Unix(1767225600, 0))

	assertContains(t, scrape(t, m),
		`skillrelay_config_reloads_total{result="success"} 1`,
		`skillrelay_config_reloads_total{result="failure"} 1`,
		`skillrelay_config_reload_timestamp_seconds 1.7672256e+09`,
	)
}

func TestMetrics_BuildInfo(t *testing.T) {
	m := NewMetrics()
	m.SetBuildInfo("0.2.0", "go1.24.0")

	assertContains(t, scrape(t, m),
		"# HELP skillrelay_build_info",
		"# TYPE skillrelay_build_info gauge",
		`skillrelay_build_info{go_version="go1.24.0",version="0.2.0"} 1`,
	)
}

func TestMetrics_IsolatedRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordOAuthOutcome("timeout")

	if strings.Contains(scrape(t, b), `outcome="timeout"`) {
		t.Error("metrics leaked between registries")
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTurn("test", "message", StatusOK, time.Millisecond)
			m.RecordSkillPost("echo", "ok", time.Millisecond)
			m.RecordRateLimited("global_rate_limiter")
		}()
	}
	wg.Wait()

	assertContains(t, scrape(t, m),
		`skillrelay_turns_total{activity_type="message",channel="test",status="ok"} 50`,
		`skillrelay_rate_limit_hits_total{layer="global_rate_limiter"} 50`,
	)
}
