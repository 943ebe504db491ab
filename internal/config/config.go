package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"composewatch/internal/docker"
	"composewatch/internal/logging"
	"composewatch/internal/state"
)

// ErrInvalid wraps every configuration problem found by Validate.
var ErrInvalid = errors.New("invalid configuration")

const envPrefix = "COMPOSEWATCH_"

type Config struct {
	ComposeName          string
	DockerSocket         string
	AlertURL             string
	Retries              int
	Timeout              time.Duration
	Wait                 time.Duration
	NoContainersContinue bool
	EngineTimeout        time.Duration
	ResetPolicy          string
	LogLevel             string
	LogFormat            string
	Journal              string
	RetentionDays        int
	StatusAddr           string
}

func Default() Config {
	return Config{
		DockerSocket:  docker.DefaultEndpoint,
		Retries:       5,
		Timeout:       time.Second,
		Wait:          time.Second,
		EngineTimeout: 30 * time.Second,
		ResetPolicy:   string(state.ResetOnRecovered),
		LogLevel:      logging.LevelInfo,
		LogFormat:     logging.FormatText,
		RetentionDays: 14,
	}
}

// fileConfig mirrors Config for YAML; nil fields were absent from the file.
type fileConfig struct {
	ComposeName          *string  `yaml:"compose_name"`
	DockerSocket         *string  `yaml:"docker_socket"`
	AlertURL             *string  `yaml:"alert_url"`
	Retries              *int     `yaml:"retries"`
	Timeout              *float64 `yaml:"timeout"`
	Wait                 *float64 `yaml:"wait"`
	NoContainersContinue *bool    `yaml:"no_containers_continue"`
	EngineTimeout        *float64 `yaml:"engine_timeout"`
	ResetPolicy          *string  `yaml:"reset_policy"`
	LogLevel             *string  `yaml:"log_level"`
	LogFormat            *string  `yaml:"log_format"`
	Journal              *string  `yaml:"journal"`
	RetentionDays        *int     `yaml:"retention_days"`
	StatusAddr           *string  `yaml:"status_addr"`
}

// Load layers defaults, the YAML file, the environment and changed flags, in
// that order, and validates the result.
func Load(f *Flags) (Config, error) {
	cfg := Default()

	path := getenv(envPrefix+"CONFIG", "")
	if f != nil && f.configPath != "" {
		path = f.configPath
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if f != nil {
		f.apply(&cfg)
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
	}
	setString(&c.ComposeName, fc.ComposeName)
	setString(&c.DockerSocket, fc.DockerSocket)
	setString(&c.AlertURL, fc.AlertURL)
	setString(&c.ResetPolicy, fc.ResetPolicy)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.Journal, fc.Journal)
	setString(&c.StatusAddr, fc.StatusAddr)
	if fc.Retries != nil {
		c.Retries = *fc.Retries
	}
	if fc.RetentionDays != nil {
		c.RetentionDays = *fc.RetentionDays
	}
	if fc.NoContainersContinue != nil {
		c.NoContainersContinue = *fc.NoContainersContinue
	}
	setSeconds(&c.Timeout, fc.Timeout)
	setSeconds(&c.Wait, fc.Wait)
	setSeconds(&c.EngineTimeout, fc.EngineTimeout)
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.ComposeName = getenv(envPrefix+"COMPOSE_NAME", c.ComposeName)
	c.DockerSocket = getenv(envPrefix+"DOCKER_SOCKET", getenv("DOCKER_HOST", c.DockerSocket))
	c.AlertURL = getenv(envPrefix+"ALERT_URL", c.AlertURL)
	c.Retries = getenvInt(envPrefix+"RETRIES", c.Retries, &errs)
	c.Timeout = getenvSeconds(envPrefix+"TIMEOUT", c.Timeout, &errs)
	c.Wait = getenvSeconds(envPrefix+"WAIT", c.Wait, &errs)
	c.NoContainersContinue = getenvBool(envPrefix+"NO_CONTAINERS_CONTINUE", c.NoContainersContinue, &errs)
	c.EngineTimeout = getenvSeconds(envPrefix+"ENGINE_TIMEOUT", c.EngineTimeout, &errs)
	c.ResetPolicy = getenv(envPrefix+"RESET_POLICY", c.ResetPolicy)
	c.LogLevel = getenv(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv(envPrefix+"LOG_FORMAT", c.LogFormat)
	c.Journal = getenv(envPrefix+"JOURNAL", c.Journal)
	c.RetentionDays = getenvInt(envPrefix+"RETENTION_DAYS", c.RetentionDays, &errs)
	c.StatusAddr = getenv(envPrefix+"STATUS_ADDR", c.StatusAddr)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ComposeName) == "" {
		errs = append(errs, errors.New("compose name is required"))
	}
	if strings.TrimSpace(c.DockerSocket) == "" {
		errs = append(errs, errors.New("docker socket is required"))
	}
	if err := validateAlertURL(c.AlertURL); err != nil {
		errs = append(errs, err)
	}
	if c.Retries <= 0 {
		errs = append(errs, fmt.Errorf("retries must be greater than 0, got %d", c.Retries))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Wait <= 0 {
		errs = append(errs, fmt.Errorf("wait must be positive, got %s", c.Wait))
	}
	if c.EngineTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine timeout must be positive, got %s", c.EngineTimeout))
	}
	if _, err := state.ParseResetPolicy(c.ResetPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.LogFormat))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("retention days must be greater than 0, got %d", c.RetentionDays))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func validateAlertURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("alert url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("alert url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("alert url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

// Flags holds command-line values. Only flags the user set override lower
// layers.
type Flags struct {
	fs         *pflag.FlagSet
	configPath string
	values     Config
	timeout    float64
	wait       float64
	engineWait float64
}

func BindFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVarP(&f.values.ComposeName, "compose-name", "c", "", "compose project to monitor")
	fs.StringVarP(&f.values.DockerSocket, "docker-socket", "d", d.DockerSocket, "docker engine endpoint")
	fs.StringVarP(&f.values.AlertURL, "alert-url", "u", "", "webhook URL that receives alerts")
	fs.IntVarP(&f.values.Retries, "retries", "r", d.Retries, "alert every N consecutive error polls")
	fs.Float64VarP(&f.timeout, "timeout", "t", d.Timeout.Seconds(), "alert request timeout in seconds")
	fs.Float64VarP(&f.wait, "wait", "w", d.Wait.Seconds(), "seconds between polls")
	fs.BoolVarP(&f.values.NoContainersContinue, "no-containers-continue", "n", false, "keep polling when the project has no containers")
	fs.Float64Var(&f.engineWait, "engine-timeout", d.EngineTimeout.Seconds(), "docker engine request timeout in seconds")
	fs.StringVar(&f.values.ResetPolicy, "reset-policy", d.ResetPolicy, "error streak reset policy (recovered|previous-healthy)")
	fs.StringVar(&f.values.LogLevel, "log-level", d.LogLevel, "log level (debug|info|warn|error)")
	fs.StringVar(&f.values.LogFormat, "log-format", d.LogFormat, "log format (text|json)")
	fs.StringVar(&f.values.Journal, "journal", "", "sqlite file recording sent alerts (disabled when empty)")
	fs.IntVar(&f.values.RetentionDays, "retention-days", d.RetentionDays, "days of alert journal to keep")
	fs.StringVar(&f.values.StatusAddr, "status-addr", "", "listen address of the status endpoint (disabled when empty)")
	return f
}

func (f *Flags) apply(c *Config) {
	changed := f.fs.Changed
	if changed("compose-name") {
		c.ComposeName = f.values.ComposeName
	}
	if changed("docker-socket") {
		c.DockerSocket = f.values.DockerSocket
	}
	if changed("alert-url") {
		c.AlertURL = f.values.AlertURL
	}
	if changed("retries") {
		c.Retries = f.values.Retries
	}
	if changed("timeout") {
		c.Timeout = seconds(f.timeout)
	}
	if changed("wait") {
		c.Wait = seconds(f.wait)
	}
	if changed("no-containers-continue") {
		c.NoContainersContinue = f.values.NoContainersContinue
	}
	if changed("engine-timeout") {
		c.EngineTimeout = seconds(f.engineWait)
	}
	if changed("reset-policy") {
		c.ResetPolicy = f.values.ResetPolicy
	}
	if changed("log-level") {
		c.LogLevel = f.values.LogLevel
	}
	if changed("log-format") {
		c.LogFormat = f.values.LogFormat
	}
	if changed("journal") {
		c.Journal = f.values.Journal
	}
	if changed("retention-days") {
		c.RetentionDays = f.values.RetentionDays
	}
	if changed("status-addr") {
		c.StatusAddr = f.values.StatusAddr
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = seconds(*v)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return d
	}
	return n
}

// getenvSeconds accepts plain seconds ("1.5") or a Go duration ("1500ms").
func getenvSeconds(k string, d time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return seconds(f)
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", k, v))
		return d
	}
	return dur
}

func getenvBool(k string, d bool, errs *[]error) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", k, os.Getenv(k)))
	return d
}
