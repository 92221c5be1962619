package main

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// Operator is a manual MCC/MNC operator code; empty selects automatic registration
	Operator string
	// APN fixes the access point name; empty selects automatic APN lookup
	APN string
	// APNFile is an optional YAML file with APN table overrides
	APNFile string
	// Volume is the call audio level, 0..5
	Volume int
	// PPPDevice is the device pppd attaches to; defaults to the serial port
	PPPDevice string
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if config.PPPDevice == "" {
		config.PPPDevice = config.SerialPort
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if operator := os.Getenv("OPERATOR"); operator != "" {
			c.Operator = operator
		}

		if apn := os.Getenv("APN"); apn != "" {
			c.APN = apn
		}

		if file := os.Getenv("APN_FILE"); file != "" {
			c.APNFile = file
		}

		if volume := os.Getenv("VOLUME"); volume != "" {
			if v, err := strconv.Atoi(volume); err == nil {
				c.Volume = v
			}
		}

		if device := os.Getenv("PPP_DEVICE"); device != "" {
			c.PPPDevice = device
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "operator":
				c.Operator = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "apn-file":
				c.APNFile = f.Value.String()
			case "volume":
				if v, err := strconv.Atoi(f.Value.String()); err == nil {
					c.Volume = v
				}
			case "ppp-device":
				c.PPPDevice = f.Value.String()
			}

		})
		return nil
	}

}
