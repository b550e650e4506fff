// Package config loads runtime configuration from built-in defaults, an
// optional JSON file, and MUDRA_* environment variables, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxFileSize bounds the config file read.
const maxFileSize = 1 << 20

// Duration is a time.Duration that reads and writes JSON duration strings
// such as "500ms" or "1.5s".
type Duration struct {
	time.Duration
}

// MarshalJSON encodes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %s", string(b))
	}
	d.Duration = time.Duration(n)
	return nil
}

// CameraConfig configures the local camera pipelines.
type CameraConfig struct {
	Enabled  bool `json:"enabled"`
	DeviceID int  `json:"device_id"`
	// MotionThreshold is the percentage of changed pixels that counts as
	// motion.
	MotionThreshold float64 `json:"motion_threshold"`
	IdleFPS         int     `json:"idle_fps"`
	ActiveFPS       int     `json:"active_fps"`
	// HandScript is the MediaPipe service script. Empty searches the usual
	// locations.
	HandScript string `json:"hand_script"`
	// Python is the interpreter for HandScript. Empty prefers a venv.
	Python string `json:"python"`
	// FaceCascade is an OpenCV Haar cascade file. Empty disables local
	// face detection.
	FaceCascade string `json:"face_cascade"`
	// EyeCascade adds eye-center landmarks to detected faces. Optional.
	EyeCascade       string   `json:"eye_cascade"`
	FacePollInterval Duration `json:"face_poll_interval"`
}

// GestureConfig configures the gesture-to-device path.
type GestureConfig struct {
	Enabled       bool     `json:"enabled"`
	DebounceDelay Duration `json:"debounce_delay"`
	Cooldown      Duration `json:"cooldown"`
}

// SecurityConfig configures the intruder monitor.
type SecurityConfig struct {
	Armed         bool     `json:"armed"`
	ConfirmPeriod Duration `json:"confirm_period"`
	RequiredHits  int      `json:"required_hits"`
}

// RemoteConfig configures the remote device mirror. An empty URL disables it.
type RemoteConfig struct {
	URL          string   `json:"url"`
	AuthToken    string   `json:"auth_token"`
	Timeout      Duration `json:"timeout"`
	MaxFailures  uint32   `json:"max_failures"`
	ResetTimeout Duration `json:"reset_timeout"`
}

// KafkaConfig configures the event bus. No brokers disables it.
type KafkaConfig struct {
	Brokers       []string `json:"brokers"`
	DeviceTopic   string   `json:"device_topic"`
	SecurityTopic string   `json:"security_topic"`
}

// SerialConfig configures the LED board. An empty port disables it.
type SerialConfig struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

// SpeechConfig configures a local text-to-speech command. An empty command
// leaves speech to the browser.
type SpeechConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Timeout Duration `json:"timeout"`
}

// PluginConfig configures automation hook plugins.
type PluginConfig struct {
	// Dir defaults to <DataDir>/plugins.
	Dir     string   `json:"dir"`
	Timeout Duration `json:"timeout"`
}

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DataDir    string `json:"data_dir"`
	// DBPath defaults to <DataDir>/mudra.db.
	DBPath    string `json:"db_path"`
	StaticDir string `json:"static_dir"`
	Tray      bool   `json:"tray"`

	// Devices names devices 1..4 in order.
	Devices []string `json:"devices"`

	Camera   CameraConfig   `json:"camera"`
	Gesture  GestureConfig  `json:"gesture"`
	Security SecurityConfig `json:"security"`
	Remote   RemoteConfig   `json:"remote"`
	Kafka    KafkaConfig    `json:"kafka"`
	Serial   SerialConfig   `json:"serial"`
	Speech   SpeechConfig   `json:"speech"`
	Plugins  PluginConfig   `json:"plugins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := ".mudra"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".mudra")
	}

	return &Config{
		ListenAddr: ":8080",
		DataDir:    dataDir,
		Tray:       false,
		Devices:    []string{"Light 1", "Light 2", "Light 3", "Light 4"},
		Camera: CameraConfig{
			Enabled:          false,
			DeviceID:         0,
			MotionThreshold:  1.0,
			IdleFPS:          5,
			ActiveFPS:        15,
			FacePollInterval: Duration{500 * time.Millisecond},
		},
		Gesture: GestureConfig{
			Enabled:       true,
			DebounceDelay: Duration{100 * time.Millisecond},
			Cooldown:      Duration{1500 * time.Millisecond},
		},
		Security: SecurityConfig{
			Armed:         false,
			ConfirmPeriod: Duration{1500 * time.Millisecond},
			RequiredHits:  6,
		},
		Remote: RemoteConfig{
			Timeout:      Duration{5 * time.Second},
			MaxFailures:  3,
			ResetTimeout: Duration{30 * time.Second},
		},
		Kafka: KafkaConfig{
			DeviceTopic:   "mudra.devices",
			SecurityTopic: "mudra.security",
		},
		Serial: SerialConfig{
			Baud: 9600,
		},
		Speech: SpeechConfig{
			Timeout: Duration{10 * time.Second},
		},
		Plugins: PluginConfig{
			Timeout: Duration{5 * time.Second},
		},
	}
}

// Load builds the configuration: defaults, then the JSON file at path (if
// path is non-empty), then environment overrides. Fields omitted from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	return nil
}

// ApplyEnv overrides fields from MUDRA_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			dst.Duration = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitAndTrim(v, ",")
		}
	}

	str("MUDRA_LISTEN_ADDR", &c.ListenAddr)
	str("MUDRA_DATA_DIR", &c.DataDir)
	str("MUDRA_DB_PATH", &c.DBPath)
	str("MUDRA_STATIC_DIR", &c.StaticDir)
	boolean("MUDRA_TRAY", &c.Tray)
	list("MUDRA_DEVICES", &c.Devices)

	boolean("MUDRA_CAMERA_ENABLED", &c.Camera.Enabled)
	integer("MUDRA_CAMERA_ID", &c.Camera.DeviceID)
	str("MUDRA_HAND_SCRIPT", &c.Camera.HandScript)
	str("MUDRA_PYTHON", &c.Camera.Python)
	str("MUDRA_FACE_CASCADE", &c.Camera.FaceCascade)
	str("MUDRA_EYE_CASCADE", &c.Camera.EyeCascade)
	duration("MUDRA_FACE_POLL_INTERVAL", &c.Camera.FacePollInterval)

	boolean("MUDRA_GESTURES_ENABLED", &c.Gesture.Enabled)
	duration("MUDRA_DEBOUNCE_DELAY", &c.Gesture.DebounceDelay)
	duration("MUDRA_COOLDOWN", &c.Gesture.Cooldown)

	boolean("MUDRA_ARMED", &c.Security.Armed)
	duration("MUDRA_CONFIRM_PERIOD", &c.Security.ConfirmPeriod)
	integer("MUDRA_REQUIRED_HITS", &c.Security.RequiredHits)

	str("MUDRA_REMOTE_URL", &c.Remote.URL)
	str("MUDRA_REMOTE_AUTH", &c.Remote.AuthToken)
	duration("MUDRA_REMOTE_TIMEOUT", &c.Remote.Timeout)

	list("MUDRA_KAFKA_BROKERS", &c.Kafka.Brokers)
	str("MUDRA_KAFKA_DEVICE_TOPIC", &c.Kafka.DeviceTopic)
	str("MUDRA_KAFKA_SECURITY_TOPIC", &c.Kafka.SecurityTopic)

	str("MUDRA_SERIAL_PORT", &c.Serial.Port)
	integer("MUDRA_SERIAL_BAUD", &c.Serial.Baud)

	str("MUDRA_SPEECH_COMMAND", &c.Speech.Command)

	str("MUDRA_PLUGIN_DIR", &c.Plugins.Dir)
	duration("MUDRA_PLUGIN_TIMEOUT", &c.Plugins.Timeout)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the application cannot run
// with.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DataDir == "" && c.DBPath == "" {
		errs = append(errs, errors.New("data_dir or db_path is required"))
	}
	if len(c.Devices) > 4 {
		errs = append(errs, fmt.Errorf("at most 4 devices can be named, got %d", len(c.Devices)))
	}
	if c.Camera.MotionThreshold <= 0 || c.Camera.MotionThreshold > 100 {
		errs = append(errs, fmt.Errorf("camera.motion_threshold must be a percentage in (0,100], got %g", c.Camera.MotionThreshold))
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0 {
		errs = append(errs, errors.New("camera fps values must be positive"))
	}
	if c.Camera.FacePollInterval.Duration <= 0 {
		errs = append(errs, errors.New("camera.face_poll_interval must be positive"))
	}
	if c.Gesture.DebounceDelay.Duration < 0 || c.Gesture.Cooldown.Duration < 0 {
		errs = append(errs, errors.New("gesture durations must not be negative"))
	}
	if c.Security.RequiredHits < 1 {
		errs = append(errs, fmt.Errorf("security.required_hits must be at least 1, got %d", c.Security.RequiredHits))
	}
	if c.Security.ConfirmPeriod.Duration < 0 {
		errs = append(errs, errors.New("security.confirm_period must not be negative"))
	}
	if c.Plugins.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("plugins.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// DatabasePath returns DBPath, or the default file inside DataDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "mudra.db")
}

// PluginDir returns Plugins.Dir, or the default directory inside DataDir.
func (c *Config) PluginDir() string {
	if c.Plugins.Dir != "" {
		return c.Plugins.Dir
	}
	return filepath.Join(c.DataDir, "plugins")
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
