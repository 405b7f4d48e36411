// Package config holds the client configuration and its file/env loading.
package config

import (
	"fmt"
	"time"
)

// Config is the client configuration. It is read-only once the client has
// been started; restart the client to apply changes.
type Config struct {
	// Host is the server address, without port.
	Host string `yaml:"host" json:"host"`

	// Port is the server port.
	Port int `yaml:"port" json:"port"`

	// Threads is the number of worker goroutines, each running its own
	// reactor loop with its own connections.
	Threads int `yaml:"threads" json:"threads"`

	// ConnsPerThread is the number of connection slots per worker.
	ConnsPerThread int `yaml:"conns_per_thread" json:"conns_per_thread"`

	// QueueCapacity bounds each worker's reactor mailbox.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// Default returns the stock configuration: one worker, three connections
// per worker, port 6379.
func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           6379,
		Threads:        1,
		ConnsPerThread: 3,
		QueueCapacity:  1024,
		DialTimeout:    5 * time.Second,
	}
}

// WithDefaults fills every zero field from Default.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Threads == 0 {
		c.Threads = d.Threads
	}
	if c.ConnsPerThread == 0 {
		c.ConnsPerThread = d.ConnsPerThread
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	return c
}

// Validate fails fast on configurations the client cannot run with.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Threads < 1 {
		return fmt.Errorf("config: threads must be at least 1, got %d", c.Threads)
	}
	if c.ConnsPerThread < 1 {
		return fmt.Errorf("config: conns_per_thread must be at least 1, got %d", c.ConnsPerThread)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("config: queue_capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("config: dial_timeout must not be negative")
	}
	return nil
}
