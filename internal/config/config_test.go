package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	project := t.TempDir()

	v := viper.New()
	v.Set("project", project)

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, project, config.ProjectPath)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8000, config.Server.Port)
	assert.False(t, config.Server.Clean)

	assert.Equal(t, project, config.Renderer.SourceDir)
	assert.Equal(t, project, config.Renderer.ConfigDir)
	assert.Equal(t, filepath.Join(project, "_build", "html"), config.Renderer.OutputDir)
	assert.Equal(t, filepath.Join(project, "_build", "doctrees"), config.Renderer.DoctreeDir)
	assert.Equal(t, "html", config.Renderer.Builder)
	assert.Equal(t, 1, config.Renderer.Parallel)
	assert.Equal(t, DefaultCommand, config.Renderer.Command)
	assert.Equal(t, []string{".rst"}, config.Renderer.SourceSuffixes)
	assert.Equal(t, filepath.Join(project, "conf.py"), config.RendererConfigPath())

	assert.Equal(t, time.Second, config.Watch.Throttle)
	assert.Equal(t, 5, config.Watch.ResubscribeAttempts)
	assert.Equal(t, 3*time.Second, config.Reload.Heartbeat)
	assert.Equal(t, []string{".documentwrapper"}, config.Reload.ScrollSelectors)
	assert.Equal(t, "0.0.0.0:8000", config.Address())
}

func TestLoadFromFile(t *testing.T) {
	project := t.TempDir()

	raw := map[string]interface{}{
		"server": map[string]interface{}{"port": 9001, "clean": true},
		"renderer": map[string]interface{}{
			"source_dir":      "src",
			"output_dir":      "/tmp/out",
			"builder":         "dirhtml",
			"parallel":        4,
			"command":         []string{"mkdocs", "build", "-d", "{output}"},
			"source_suffixes": []string{".md", ".rst"},
			"watch":           []string{"../theme"},
			"timeout":         "30s",
		},
		"watch":       map[string]interface{}{"throttle": "250ms"},
		"unknown_key": "ignored",
	}
	data, err := yaml.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(project, "docserve.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	v.Set("project", project)

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, path, config.File)
	assert.Equal(t, 9001, config.Server.Port)
	assert.True(t, config.Server.Clean)
	assert.Equal(t, filepath.Join(project, "src"), config.Renderer.SourceDir)
	assert.Equal(t, "/tmp/out", config.Renderer.OutputDir)
	assert.Equal(t, "dirhtml", config.Renderer.Builder)
	assert.Equal(t, 4, config.Renderer.Parallel)
	assert.Equal(t, []string{"mkdocs", "build", "-d", "{output}"}, config.Renderer.Command)
	assert.Equal(t, []string{".md", ".rst"}, config.Renderer.SourceSuffixes)
	assert.Equal(t, []string{"../theme"}, config.Renderer.Watch)
	assert.Equal(t, 30*time.Second, config.Renderer.Timeout)
	assert.Equal(t, 250*time.Millisecond, config.Watch.Throttle)
}

func TestLoadRelativeConfigFile(t *testing.T) {
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "docserve.yaml"), []byte("server:\n  port: 9002\n"), 0644))
	origWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(project))
	t.Cleanup(func() { _ = os.Chdir(origWD) })

	v := viper.New()
	v.SetConfigFile("docserve.yaml")
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(config.File))
	assert.Equal(t, filepath.Join(wd, "docserve.yaml"), config.File)
	assert.Equal(t, 9002, config.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *viper.Viper)
	}{
		{
			name:  "port out of range",
			setup: func(v *viper.Viper) { v.Set("server.port", 70000) },
		},
		{
			name:  "port not a number",
			setup: func(v *viper.Viper) { v.Set("server.port", "invalid_port") },
		},
		{
			name:  "builder with shell metacharacters",
			setup: func(v *viper.Viper) { v.Set("renderer.builder", "html; rm -rf /") },
		},
		{
			name:  "negative parallelism",
			setup: func(v *viper.Viper) { v.Set("renderer.parallel", -2) },
		},
		{
			name:  "suffix without dot",
			setup: func(v *viper.Viper) { v.Set("renderer.source_suffixes", []string{"rst"}) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("project", t.TempDir())
			tt.setup(v)

			config, err := LoadFrom(v)
			assert.Error(t, err)
			assert.Nil(t, config)
		})
	}
}

func TestReloadGlobal(t *testing.T) {
	project := t.TempDir()
	path := filepath.Join(project, "docserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("renderer:\n  builder: html\n"), 0644))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())
	viper.Set("project", project)

	first, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "html", first.Renderer.Builder)
	assert.Equal(t, []string{".rst"}, first.Renderer.SourceSuffixes)

	require.NoError(t, os.WriteFile(path, []byte("renderer:\n  builder: html\n  source_suffixes: [\".txt\"]\n"), 0644))

	second, err := Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{".txt"}, second.Renderer.SourceSuffixes)

	require.NoError(t, os.WriteFile(path, []byte("renderer: [unterminated\n"), 0644))
	_, err = Reload()
	assert.Error(t, err)
}
