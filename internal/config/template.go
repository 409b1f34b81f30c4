package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a starter configuration to path. Existing files are
// preserved unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(releaseTemplate), 0o600)
}

const releaseTemplate = `environment = "dev"
report_dir = "reports"

[registry]
endpoint = "https://registry.example.com"
namespace = "transformer-model"
query_timeout = "10s"

[lock]
mode = "wait"
wait_timeout = "5m"
ttl = "30m"

[builder]
workspace_root = "build"
build_timeout = "15m"
# agent_host = "builder-01.internal"
# agent_user = "ci"
# agent_key_path = "/home/ci/.ssh/id_ed25519"

[infra]
work_dir = "terraform"
apply_timeout = "20m"

[verify]
settle_delay = "30s"

[watch]
# schedule = "0 */6 * * *"
# status_addr = ":8080"

[[components]]
name = "generate-text"
paths = ["services/generate-text/**"]
repository = "transformer-model/generate-text"
context_dir = "services/generate-text"

[[components]]
name = "visualize-attention"
paths = ["services/visualize-attention/**"]
repository = "transformer-model/visualize-attention"
context_dir = "services/visualize-attention"

[[components]]
name = "model"
paths = ["model/**"]

[[components]]
name = "infra"
paths = ["terraform/**"]

[[components]]
name = "dashboards"
paths = ["dashboards/**"]
depends_on = "model"
repository = "transformer-model/dashboards"
context_dir = "dashboards"

[[probes]]
name = "generate"
path = "/generate"
body = '{"prompt": "Once upon a time", "max_length": 64}'
expect_status = 200
expect_field = "generated_text"
max_attempts = 3
backoff = ["1s", "2s", "4s"]
timeout = "10s"

[[probes]]
name = "visualize"
path = "/visualize"
body = '{"text": "The quick brown fox"}'
expect_status = 200
expect_field = "attention_image"
max_attempts = 3
backoff = ["1s", "2s", "4s"]
timeout = "10s"
`
