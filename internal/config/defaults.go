package config

// DefaultConfigYAML contains the default configuration YAML content.
// It is written by `teamflow config init` and mirrors the loader defaults.
const DefaultConfigYAML = `# teamflow configuration
#
# Values not specified here use the built-in defaults. Every key can also be
# set through the environment, e.g. TEAMFLOW_RUN_NODE_TIMEOUT=5m.

log:
  level: info      # debug, info, warn, error
  format: auto     # auto, text, json

state:
  backend: sqlite  # sqlite or json
  path: .teamflow/state/teamflow.db

# Extra template directories are merged over the built-in templates.
templates:
  dir: ""

nodes:
  # Reject configurations for agent types without a dedicated schema.
  strict_agent_types: false

run:
  node_timeout: 2m  # 0 disables the per-node limit
  max_attempts: 1   # retries apply to retryable failures only
  base_delay: 1s
  max_delay: 30s

capability:
  mode: local       # local (offline briefs) or http
  base_url: ""
  # token is better supplied as TEAMFLOW_CAPABILITY_TOKEN
  timeout: 90s
  local_delay: 0s

server:
  host: 127.0.0.1
  port: 8080
  cors_origins:
    - http://localhost:5173
  read_timeout: 30s
  write_timeout: 60s
  shutdown_timeout: 10s

events:
  buffer_size: 100
`
