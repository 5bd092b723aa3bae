package main

import (
	"context"
	"os"
	"time"

	"github.com/lodthe/registry-gc/internal/gctrigger"
	"github.com/lodthe/registry-gc/internal/gctrigger/dockercli"
	"github.com/lodthe/registry-gc/internal/gctrigger/dockerengine"

	"github.com/aws/aws-sdk-go-v2/aws"
	gconfig "github.com/gookit/config/v2"
	gyaml "github.com/gookit/config/v2/yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultConfigPath = "config.yaml"

type LogFormat string

const (
	PrettyLogFormat LogFormat = "pretty"
	JSONLogFormat   LogFormat = "json"
)

type HistoryType string

const (
	HistoryTypeMemory   HistoryType = "MEMORY"
	HistoryTypeDynamoDB HistoryType = "DYNAMODB"
)

type Config struct {
	LogLevel  string    `mapstructure:"log_level"`
	LogFormat LogFormat `mapstructure:"log_format"`

	API   API   `mapstructure:"api"`
	Admin Admin `mapstructure:"admin"`

	Registry  Registry  `mapstructure:"registry"`
	Collector Collector `mapstructure:"collector"`
	Sequence  Sequence  `mapstructure:"sequence"`
	Executor  Executor  `mapstructure:"executor"`

	History History `mapstructure:"history"`
	AWS     AWS     `mapstructure:"aws"`
}

type API struct {
	ListeningAddress string        `mapstructure:"address"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// Admin listener serves Prometheus metrics, the health check and the gc run history.
type Admin struct {
	ListeningAddress string `mapstructure:"address"`
	Enabled          *bool  `mapstructure:"enabled"`
}

type Registry struct {
	Container string `mapstructure:"container"`
}

type Collector struct {
	Name        string   `mapstructure:"name"`
	Image       string   `mapstructure:"image"`
	Command     []string `mapstructure:"command"`
	ConfigPath  string   `mapstructure:"config_path"`
	PullMissing *bool    `mapstructure:"pull_missing"`
}

type Sequence struct {
	Pause   *time.Duration `mapstructure:"pause"`
	Timeout time.Duration  `mapstructure:"timeout"`

	WaitForState bool          `mapstructure:"wait_for_state"`
	StateTimeout time.Duration `mapstructure:"state_timeout"`
	StatePollRPS int           `mapstructure:"state_poll_rps"`

	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	SuccessPolicy     gctrigger.SuccessPolicy     `mapstructure:"success_policy"`
	ConcurrencyPolicy gctrigger.ConcurrencyPolicy `mapstructure:"concurrency_policy"`
}

type Executor struct {
	Type gctrigger.ExecutorType `mapstructure:"type"`

	// DaemonURL is used by the DOCKER_ENGINE executor.
	DaemonURL *string `mapstructure:"daemon_url"`

	// Binary is used by the DOCKER_CLI executor.
	Binary string `mapstructure:"binary"`
}

type History struct {
	Type     HistoryType `mapstructure:"type"`
	Capacity int         `mapstructure:"capacity"`
}

type AWS struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`

	RunsTableName string `mapstructure:"runs_table"`
}

// LoadConfig reads the file set in CONFIG_PATH. If the variable is not set,
// config.yaml is read when it exists, otherwise the defaults are used.
func LoadConfig() (*Config, error) {
	path, required := os.LookupEnv("CONFIG_PATH")
	if !required || path == "" {
		path, required = DefaultConfigPath, false
	}

	return loadConfig(path, required)
}

func loadConfig(path string, required bool) (*Config, error) {
	loader := gconfig.NewWithOptions("registry-gc",
		gconfig.ParseEnv,
		gconfig.Readonly,
		func(opts *gconfig.Options) {
			opts.DecoderConfig = &mapstructure.DecoderConfig{
				TagName:          "mapstructure",
				WeaklyTypedInput: true,
				DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			}
		},
	)
	loader.AddDriver(gyaml.Driver)

	var err error
	if required {
		err = loader.LoadFiles(path)
	} else {
		err = loader.LoadExists(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	cfg := new(Config)
	if len(loader.Data()) != 0 {
		err = loader.BindStruct("", cfg)
		if err != nil {
			return nil, errors.Wrap(err, "config binding failed")
		}
	}

	err = cfg.validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}

// validate verifies the loaded config and sets default values for missed fields.
// nolint
func (c *Config) validate() error {
	if c.LogLevel == "" {
		c.LogLevel = zerolog.LevelInfoValue
	}
	_, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log_level")
	}

	switch c.LogFormat {
	case PrettyLogFormat, JSONLogFormat:
	case "":
		c.LogFormat = PrettyLogFormat
	default:
		return errors.Errorf("unknown log_format %s (supported: %s, %s)", c.LogFormat, PrettyLogFormat, JSONLogFormat)
	}

	if c.API.ListeningAddress == "" {
		c.API.ListeningAddress = ":8000"
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = 2 * time.Minute
	}

	if c.Admin.ListeningAddress == "" {
		c.Admin.ListeningAddress = ":2112"
	}
	if c.Admin.Enabled == nil {
		enabled := true
		c.Admin.Enabled = &enabled
	}

	def := gctrigger.DefaultConfig

	if c.Registry.Container == "" {
		c.Registry.Container = def.Container
	}

	if c.Collector.Name == "" {
		c.Collector.Name = def.Collector.Name
	}
	if c.Collector.Image == "" {
		c.Collector.Image = def.Collector.Image
	}
	if len(c.Collector.Command) == 0 {
		c.Collector.Command = []string{"garbage-collect"}
	}
	if c.Collector.ConfigPath == "" {
		c.Collector.ConfigPath = "/etc/registry/config.yml"
	}
	if c.Collector.PullMissing == nil {
		pull := def.Collector.PullMissing
		c.Collector.PullMissing = &pull
	}

	if c.Sequence.Pause == nil {
		pause := def.Pause
		c.Sequence.Pause = &pause
	}
	if *c.Sequence.Pause < 0 {
		return errors.New("sequence.pause must be >= 0")
	}
	if c.Sequence.Timeout < 0 {
		return errors.New("sequence.timeout must be >= 0")
	}
	if c.Sequence.StateTimeout == 0 {
		c.Sequence.StateTimeout = def.StateTimeout
	}
	if c.Sequence.StatePollRPS == 0 {
		c.Sequence.StatePollRPS = def.StatePollRPS
	}
	if c.Sequence.StopTimeout == 0 {
		c.Sequence.StopTimeout = dockerengine.DefaultConfig.StopTimeout
	}

	switch c.Sequence.SuccessPolicy {
	case gctrigger.SuccessAllSteps, gctrigger.SuccessLastStep:
	case "":
		c.Sequence.SuccessPolicy = def.SuccessPolicy
	default:
		return errors.Errorf("unknown sequence.success_policy %s (supported: %s, %s)",
			c.Sequence.SuccessPolicy, gctrigger.SuccessAllSteps, gctrigger.SuccessLastStep)
	}

	switch c.Sequence.ConcurrencyPolicy {
	case gctrigger.ConcurrencyReject, gctrigger.ConcurrencyQueue, gctrigger.ConcurrencyJoin:
	case "":
		c.Sequence.ConcurrencyPolicy = def.ConcurrencyPolicy
	default:
		return errors.Errorf("unknown sequence.concurrency_policy %s (supported: %s, %s, %s)",
			c.Sequence.ConcurrencyPolicy, gctrigger.ConcurrencyReject, gctrigger.ConcurrencyQueue, gctrigger.ConcurrencyJoin)
	}

	switch c.Executor.Type {
	case gctrigger.ExecutorDockerEngine:
		if c.Executor.DaemonURL != nil && *c.Executor.DaemonURL == "" {
			c.Executor.DaemonURL = nil
		}

	case gctrigger.ExecutorDockerCLI:
		if c.Executor.Binary == "" {
			c.Executor.Binary = dockercli.DefaultConfig.Binary
		}

	case "":
		c.Executor.Type = gctrigger.ExecutorDockerEngine

	default:
		return errors.Errorf("unknown executor.type %s (supported: %s, %s)", c.Executor.Type, gctrigger.ExecutorDockerEngine, gctrigger.ExecutorDockerCLI)
	}

	switch c.History.Type {
	case HistoryTypeMemory:

	case HistoryTypeDynamoDB:
		if c.AWS.Region == "" {
			return errors.New("aws.region is required when history.type is DYNAMODB")
		}
		if c.AWS.RunsTableName == "" {
			return errors.New("aws.runs_table is required when history.type is DYNAMODB")
		}

	case "":
		c.History.Type = HistoryTypeMemory

	default:
		return errors.Errorf("unknown history.type %s (supported: %s, %s)", c.History.Type, HistoryTypeMemory, HistoryTypeDynamoDB)
	}

	if c.History.Capacity < 0 {
		return errors.New("history.capacity must be >= 0")
	}

	return nil
}

func (c *Config) GCTrigger() gctrigger.Config {
	command := append([]string(nil), c.Collector.Command...)
	command = append(command, c.Collector.ConfigPath)

	return gctrigger.Config{
		Container: c.Registry.Container,
		Collector: gctrigger.CollectorSpec{
			Name:        c.Collector.Name,
			Image:       c.Collector.Image,
			VolumesFrom: c.Registry.Container,
			Command:     command,
			PullMissing: *c.Collector.PullMissing,
		},
		Pause:             *c.Sequence.Pause,
		Timeout:           c.Sequence.Timeout,
		WaitForState:      c.Sequence.WaitForState,
		StateTimeout:      c.Sequence.StateTimeout,
		StatePollRPS:      c.Sequence.StatePollRPS,
		SuccessPolicy:     c.Sequence.SuccessPolicy,
		ConcurrencyPolicy: c.Sequence.ConcurrencyPolicy,
	}
}

func (c *Config) DockerEngine() dockerengine.Config {
	return dockerengine.Config{
		DaemonURL:   c.Executor.DaemonURL,
		StopTimeout: c.Sequence.StopTimeout,
	}
}

func (c *Config) DockerCLI() dockercli.Config {
	return dockercli.Config{
		Binary: c.Executor.Binary,
	}
}

func (c *Config) Retrieve(_ context.Context) (aws.Credentials, error) {
	return aws.Credentials{
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		Source:          "local config",
	}, nil
}
