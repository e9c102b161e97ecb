package config

// DevProfile returns a starter configuration for local development with the
// emulator: no inbound auth, in-memory storage and readable text logs.
func DevProfile() string {
	return `# skillrelay development profile
listen:
  host: 127.0.0.1
  port: 3978

bot:
  allow_anonymous_emulator: true

auth:
  allow_unauthenticated: true

connections:
  - name: local
    type: anonymous

skills:
  host_endpoint: http://127.0.0.1:3978/api/skills
  channels:
    - id: echo-skill
      app_id: 00000000-0000-0000-0000-000000000001
      endpoint: http://127.0.0.1:39783/api/messages
      token_provider: local

storage:
  type: memory

oauth:
  connection_name: dev-connection
  timeout: 5m

logging:
  level: debug
  format: text
  output: stdout

reload:
  enabled: true
  watch_file: true
  debounce: 1s
`
}

// ProdProfile returns a hardened starter configuration. Secrets are
// placeholders and must be replaced before deployment.
func ProdProfile() string {
	return `# skillrelay production profile
listen:
  host: 0.0.0.0
  port: 3978
  max_connections: 5000
  global_rate_limit: 2000
  max_body_size: 262144
  ip_rate_limit: 600
  caller_rate_limit: 1200
  trusted_proxies:
    - 10.0.0.0/8

bot:
  app_id: 11111111-1111-1111-1111-111111111111
  app_password: change-me
  tenant_id: 22222222-2222-2222-2222-222222222222

auth:
  allow_unauthenticated: false
  cache_ttl: 1h

connections:
  - name: bot
    type: azure
    tenant_id: 22222222-2222-2222-2222-222222222222
    client_id: 11111111-1111-1111-1111-111111111111
    client_secret: change-me

skills:
  host_endpoint: https://bot.example.com/api/skills
  channels:
    - id: weather
      app_id: 33333333-3333-3333-3333-333333333333
      endpoint: https://weather-skill.example.com/api/messages
      token_provider: bot
      timeout: 15s

storage:
  type: redis
  redis:
    addr: redis:6379
    prefix: skillrelay
    ttl: 24h

oauth:
  connection_name: graph
  timeout: 15m

telemetry:
  enabled: true
  endpoint: otel-collector:4318

logging:
  level: info
  format: json
  output: stdout
  audit:
    sampling_rate: 0.1
    error_sampling_rate: 1.0

shutdown:
  timeout: 30s

reload:
  enabled: true
  watch_file: false
`
}
