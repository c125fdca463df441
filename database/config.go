/*
 * Copyright 2025 okoshkin.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okoshkin/dbmap"
)

// Manager defines the operations for managing a database connection:
// opening it on demand, health checking, reconnecting, and reporting pool
// statistics.
type Manager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	DB() *sql.DB
	Dialect() dbmap.Dialect
	Stats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// Duration wraps time.Duration so YAML configuration can say "30s" or "5m".
// A bare integer is read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value on line %d", value.Line)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string   `yaml:"type"` // mysql, postgres, pgx, sqlite
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	DBName              string   `yaml:"dbname"`
	SSLMode             string   `yaml:"sslmode"`
	Charset             string   `yaml:"charset"` // MySQL:utf8mb4, Postgres:UTF8
	MaxIdleConns        int      `yaml:"max_idle_conns"`
	MaxOpenConns        int      `yaml:"max_open_conns"`
	ConnMaxLifetime     Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout      Duration `yaml:"connect_timeout"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	EnableReconnect     bool     `yaml:"enable_reconnect"`
	ReconnectInterval   Duration `yaml:"reconnect_interval"`
	MaxReconnectTries   int      `yaml:"max_reconnect_tries"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
	EnableQueryLog      bool     `yaml:"enable_query_log"`
	SlowQueryTime       Duration `yaml:"slow_query_time"`
}

// Dialect maps the configured driver type onto the placeholder dialect the
// mapping helpers use. The pgx and postgres types share a dialect; they
// differ only in the driver registered with database/sql.
func (c *ConnectionConfig) Dialect() dbmap.Dialect {
	switch c.Type {
	case "postgres", "postgresql", "pgx":
		return dbmap.Postgres
	case "sqlite", "sqlite3":
		return dbmap.SQLite
	default:
		return dbmap.MySQL
	}
}

// ScriptConfig controls SQL script execution on startup and environment
// selection.
type ScriptConfig struct {
	RunOnStartup bool   `yaml:"run_on_startup"`
	Dir          string `yaml:"dir"`
	Environment  string `yaml:"environment"`
}

// Config aggregates connection and script settings.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Scripts    ScriptConfig     `yaml:"scripts"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     Duration(time.Hour),
		ConnMaxIdleTime:     Duration(time.Minute * 30),
		ConnectTimeout:      Duration(time.Second * 10),
		ReadTimeout:         Duration(time.Second * 30),
		WriteTimeout:        Duration(time.Second * 30),
		EnableReconnect:     true,
		ReconnectInterval:   Duration(time.Second * 5),
		MaxReconnectTries:   3,
		HealthCheckInterval: Duration(time.Minute * 5),
		EnableQueryLog:      false,
		SlowQueryTime:       Duration(time.Second * 2),
	}
}

// LoadConfig reads a YAML configuration file. Fields absent from the file
// keep the defaults from DefaultConnectionConfig.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Connection: *DefaultConnectionConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration as YAML to the given path, creating
// directories as needed. Useful for generating a starting config file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
