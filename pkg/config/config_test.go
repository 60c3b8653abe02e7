package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30, cfg.Schedule.UpdateInterval)
	assert.Equal(t, 5, cfg.Schedule.MaxWorkers)
	assert.Equal(t, time.Minute, cfg.Schedule.ItemTimeout)
	assert.Equal(t, "Sentinel/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 20, cfg.Sources[0].MaxItems)
	assert.Equal(t, "km", cfg.Translation.TargetLang)

	// default ingestion stage set
	assert.True(t, cfg.Formatter.AddSectionHeadings)
	assert.True(t, cfg.Formatter.EnhanceQuotes)
	assert.True(t, cfg.Formatter.OptimizeLists)
	assert.True(t, cfg.Formatter.ReadabilityOptimization)
	assert.False(t, cfg.Formatter.EnhanceStructure)
	assert.False(t, cfg.Formatter.AIEnhancement)
}

func TestLoad_ExplicitFalseWinsOverDefault(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
formatter:
  add_section_headings: false
  enable_visual_enhancement: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Formatter.AddSectionHeadings)
	assert.True(t, cfg.Formatter.VisualEnhancement)
	// untouched defaults survive
	assert.True(t, cfg.Formatter.EnhanceQuotes)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_FEED_URL", "https://example.com/env-feed.xml")
	path := writeConfig(t, `
sources:
  - name: test
    feed_url: ${TEST_FEED_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/env-feed.xml", cfg.Sources[0].FeedURL)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "source without name",
			content: `
sources:
  - feed_url: https://example.com/feed.xml
`,
			errMsg: "sources[0].name is required",
		},
		{
			name: "source without url",
			content: `
sources:
  - name: test
`,
			errMsg: "sources[0].feed_url is required",
		},
		{
			name: "bad active hours",
			content: `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
schedule:
  active_hours: 6am-10pm
`,
			errMsg: "active_hours",
		},
		{
			name: "ai enabled without endpoint",
			content: `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
ai:
  enabled: true
  model: gpt-4o-mini
`,
			errMsg: "ai.endpoint is required",
		},
		{
			name: "translation without ai",
			content: `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
translation:
  enabled: true
`,
			errMsg: "translation requires ai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/sentinel.yml")
	require.Error(t, err)
}

func TestLoad_ActiveHoursAccepted(t *testing.T) {
	path := writeConfig(t, `
sources:
  - name: test
    feed_url: https://example.com/feed.xml
schedule:
  active_hours: 06:00-22:00
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "06:00-22:00", cfg.Schedule.ActiveHours)
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)
	require.NotNil(t, schema)
}

func TestGetters(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
sources:
  - name: test
    feed_url: https://example.com/feed.xml
ai:
  enabled: true
  endpoint: https://api.example.com/v1
  model: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":9090", listen)
	assert.Equal(t, 30*time.Second, timeout)

	assert.Equal(t, "gpt-4o-mini", cfg.GetAIConfig().Model)
	assert.True(t, cfg.GetFormatterConfig().AddSectionHeadings)
}
