package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/josephlewis42/npcsh/core/shell"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
	LogsDirName       = "session_logs"
	StateDirName      = "state"
	StateDBName       = "state.db"
	PrivateKeyName    = "private_key"
	AppLogName        = "app.log"
)

// Store kinds.
const (
	StoreFs   = "fs"
	StoreBolt = "bolt"
)

type Configuration struct {
	configFs afero.Fs

	Motd string `json:"motd"`
	// Prompt is shown when the shell waits for a new line.
	Prompt string `json:"prompt" validate:"required"`
	// Profile runs at the start of every session before the prompt shows.
	Profile string `json:"profile"`
	// HistoryLimit caps the stored history of each session, 0 disables the
	// cap.
	HistoryLimit int `json:"history_limit" validate:"gte=0"`

	SSHPort          int    `json:"ssh_port" validate:"gte=0,lte=65535"`
	SSHBanner        string `json:"ssh_banner"`
	AllowAnyPassword bool   `json:"allow_any_password"`

	GlobalPasswords []string `json:"global_passwords" validate:"unique"`

	Users []User `json:"users" validate:"unique=Username,dive"`

	Store Store `json:"store"`

	Shell Shell `json:"shell"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

type User struct {
	Username  string   `json:"username" validate:"required"`
	Passwords []string `json:"passwords" validate:"unique"`
	// Home seeds the variables of the user's first session.
	Home map[string]any `json:"home"`
}

type Store struct {
	Kind string `json:"kind" validate:"oneof=fs bolt"`
}

// Shell tunes the interpreter, durations are in milliseconds.
type Shell struct {
	FIFOSize            int `json:"fifo_size" validate:"gte=0"`
	MinLoopIterationMS  int `json:"min_loop_iteration_ms" validate:"gte=0"`
	PipelineKillGraceMS int `json:"pipeline_kill_grace_ms" validate:"gte=0"`
	PollIntervalMS      int `json:"poll_interval_ms" validate:"gt=0"`
	// WordsPerSecond paces speech written to /dev/voice.
	WordsPerSecond float64 `json:"words_per_second" validate:"gte=0"`
}

// Interpreter converts the settings for the interpreter.
func (s Shell) Interpreter() shell.Config {
	return shell.Config{
		FIFOSize:          s.FIFOSize,
		MinLoopIteration:  time.Duration(s.MinLoopIterationMS) * time.Millisecond,
		PipelineKillGrace: time.Duration(s.PipelineKillGraceMS) * time.Millisecond,
		PollInterval:      time.Duration(s.PollIntervalMS) * time.Millisecond,
		WordsPerSecond:    s.WordsPerSecond,
	}
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Fs returns the filesystem rooted at the configuration directory.
func (c *Configuration) Fs() afero.Fs {
	return c.configFs
}

// CreateSessionLog creates a terminal recording with the given name.
func (c *Configuration) CreateSessionLog(name string) (afero.File, error) {
	toCreate := filepath.Join(LogsDirName, name)
	return c.fs().Create(toCreate)
}

// OpenSessionLog opens a terminal recording for replay.
func (c *Configuration) OpenSessionLog(name string) (afero.File, error) {
	return c.fs().Open(filepath.Join(LogsDirName, name))
}

// PrivateKeyPem returns the bytes of the private key.
func (c *Configuration) PrivateKeyPem() ([]byte, error) {
	return afero.ReadFile(c.fs(), PrivateKeyName)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// GetPasswords returns allowable passwords for the given username.
func (c *Configuration) GetPasswords(username string) []string {
	var out []string
	for _, v := range c.Users {
		if v.Username == username {
			out = append(out, v.Passwords...)
		}
	}

	out = append(out, c.GlobalPasswords...)
	return out
}

// UserHome returns the variables a new session of username starts with.
func (c *Configuration) UserHome(username string) map[string]any {
	for _, v := range c.Users {
		if v.Username == username && v.Home != nil {
			return v.Home
		}
	}
	return nil
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
