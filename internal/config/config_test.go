package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSuite(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeSuite(t, `
frameworks:
  - name: asynctasq
    queue_url: redis://localhost:6379/0
  - name: celery
    queue_url: redis://localhost:6379/1
    worker:
      command: ["celery", "-A", "bench", "worker", "--concurrency={concurrency}"]
`)

	suite, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, suite.Runs)
	assert.Equal(t, []string{"throughput"}, suite.Scenarios)
	assert.Equal(t, "results", suite.OutputDir)
	assert.Equal(t, 0.2, suite.FailureRateLimit)
	assert.Equal(t, "asynctasq", suite.Frameworks[0].KeyPrefix)
	require.NotNil(t, suite.Frameworks[1].Worker)
	assert.Equal(t, 4, suite.Frameworks[1].Worker.Concurrency)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeSuite(t, `
frameworks:
  - name: asynctasq
    queue_url: memory://
timeout: 90s
poll_interval: 250ms
sample_interval: 2
`)

	suite, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, suite.Timeout.Std())
	assert.Equal(t, 250*time.Millisecond, suite.PollInterval.Std())
	// Bare numbers read as seconds.
	assert.Equal(t, 2*time.Second, suite.SampleInterval.Std())
}

func TestLoadRejectsBrokenSuites(t *testing.T) {
	cases := map[string]string{
		"no frameworks": `runs: 5`,
		"duplicate names": `
frameworks:
  - {name: a, queue_url: "memory://"}
  - {name: a, queue_url: "memory://"}
`,
		"missing queue url": `
frameworks:
  - name: a
`,
		"worker without command": `
frameworks:
  - name: a
    queue_url: memory://
    worker:
      pool: process
`,
		"zero runs impossible via negative": `
runs: -1
frameworks:
  - {name: a, queue_url: "memory://"}
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeSuite(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	suite := Default()
	require.NoError(t, suite.Validate())
	assert.Len(t, suite.Frameworks, 2)
}

func TestSelfTestOverrides(t *testing.T) {
	suite := SelfTest()
	require.NoError(t, suite.Validate())
	assert.Equal(t, 3, suite.Runs)
	assert.Equal(t, 500, suite.TaskCount("throughput"))
	assert.Equal(t, 0, suite.TaskCount("mixed"))
}
