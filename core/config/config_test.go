package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := defaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Configuration){
		"port":         func(c *Configuration) { c.SSHPort = 70000 },
		"prompt":       func(c *Configuration) { c.Prompt = "" },
		"store":        func(c *Configuration) { c.Store.Kind = "redis" },
		"poll":         func(c *Configuration) { c.Shell.PollIntervalMS = 0 },
		"history":      func(c *Configuration) { c.HistoryLimit = -1 },
		"voice":        func(c *Configuration) { c.Shell.WordsPerSecond = -1 },
		"dup user":     func(c *Configuration) { c.Users = append(c.Users, c.Users[0]) },
		"unnamed user": func(c *Configuration) { c.Users = append(c.Users, User{}) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetPasswords(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, []string{"guest", "npcsh"}, cfg.GetPasswords("guest"))
	assert.Equal(t, []string{"npcsh"}, cfg.GetPasswords("nobody"))
}

func TestUserHome(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, map[string]any{"greeting": "hello"}, cfg.UserHome("guest"))
	assert.Nil(t, cfg.UserHome("nobody"))
}

func TestShell_Interpreter(t *testing.T) {
	got := Shell{
		FIFOSize:            8,
		MinLoopIterationMS:  5,
		PipelineKillGraceMS: 10,
		PollIntervalMS:      1000,
		WordsPerSecond:      2.5,
	}.Interpreter()

	assert.Equal(t, shell.Config{
		FIFOSize:          8,
		MinLoopIteration:  5 * time.Millisecond,
		PipelineKillGrace: 10 * time.Millisecond,
		PollInterval:      time.Second,
		WordsPerSecond:    2.5,
	}, got)
}
