package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the static deployment settings read at startup.  Unlike
// Config they are never changed remotely.
type Options struct {
	DeviceName    string        `yaml:"device_name"`
	DataDir       string        `yaml:"data_dir"`
	JournalFile   string        `yaml:"journal_file"`
	LogLevel      string        `yaml:"log_level"`
	LoopInterval  time.Duration `yaml:"loop_interval"`
	RestartDelay  time.Duration `yaml:"restart_delay"`
	WiFiInterface string        `yaml:"wifi_interface"`

	MQTT   MQTTOptions   `yaml:"mqtt"`
	Upload UploadOptions `yaml:"upload"`
	Stream StreamOptions `yaml:"stream"`
	Camera CameraOptions `yaml:"camera"`
	GPIO   GPIOOptions   `yaml:"gpio"`
}

type MQTTOptions struct {
	Broker         string        `yaml:"broker"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type UploadOptions struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StreamOptions configures the MJPEG endpoint.  When Username is set, clients
// must authenticate with HTTP basic auth against PasswordHash (bcrypt).
type StreamOptions struct {
	Listen       string `yaml:"listen"`
	Autostart    bool   `yaml:"autostart"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type CameraOptions struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

type GPIOOptions struct {
	PIRPin       string `yaml:"pir_pin"`
	LEDPin       string `yaml:"led_pin"`
	LEDActiveLow bool   `yaml:"led_active_low"`
	OneWireBus   string `yaml:"onewire_bus"`
}

// DefaultOptions returns the settings used when no options file exists.
func DefaultOptions() Options {
	return Options{
		DeviceName:    "gatemonitor",
		DataDir:       "/var/lib/gatemonitor",
		LogLevel:      "info",
		LoopInterval:  100 * time.Millisecond,
		RestartDelay:  20 * time.Second,
		WiFiInterface: "wlan0",
		MQTT: MQTTOptions{
			Broker:         "tcp://localhost:1883",
			ClientID:       "ESP32Cam",
			TopicPrefix:    "gate",
			ConnectTimeout: 5 * time.Second,
		},
		Upload: UploadOptions{
			URL:     "http://localhost:2020/saveimage.php",
			Timeout: 15 * time.Second,
		},
		Stream: StreamOptions{
			Listen:    ":80",
			Autostart: true,
		},
		Camera: CameraOptions{
			Timeout: 5 * time.Second,
		},
		GPIO: GPIOOptions{
			PIRPin:       "GPIO13",
			LEDPin:       "GPIO33",
			LEDActiveLow: true,
		},
	}
}

// LoadOptions reads the YAML file at path on top of the defaults and applies
// environment overrides.  A missing file is not an error.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &opts); err != nil {
				return opts, fmt.Errorf("invalid options file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return opts, fmt.Errorf("unable to read options: %w", err)
		}
	}
	opts.applyEnv()
	if opts.JournalFile == "" {
		opts.JournalFile = filepath.Join(opts.DataDir, "events.log")
	}
	return opts, opts.Validate()
}

func (o *Options) applyEnv() {
	o.MQTT.Broker = getEnvOrDefault("GATE_MQTT_BROKER", o.MQTT.Broker)
	o.MQTT.Username = getEnvOrDefault("GATE_MQTT_USERNAME", o.MQTT.Username)
	o.MQTT.Password = getEnvOrDefault("GATE_MQTT_PASSWORD", o.MQTT.Password)
	o.Upload.URL = getEnvOrDefault("GATE_UPLOAD_URL", o.Upload.URL)
	o.DataDir = getEnvOrDefault("GATE_DATA_DIR", o.DataDir)
	o.Stream.Listen = getEnvOrDefault("GATE_STREAM_LISTEN", o.Stream.Listen)
	o.LogLevel = getEnvOrDefault("GATE_LOG_LEVEL", o.LogLevel)
}

// Validate checks the options for values the monitor cannot run with.
func (o Options) Validate() error {
	if o.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if o.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if o.MQTT.TopicPrefix == "" {
		return errors.New("mqtt.topic_prefix is required")
	}
	u, err := url.Parse(o.Upload.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upload.url %q is not an absolute URL", o.Upload.URL)
	}
	if o.LoopInterval <= 0 {
		return errors.New("loop_interval must be positive")
	}
	if o.Stream.Username != "" && o.Stream.PasswordHash == "" {
		return errors.New("stream.password_hash is required when stream.username is set")
	}
	return nil
}

// getEnvOrDefault returns the environment variable key, or defaultValue when
// it is unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
