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

	"github.com/okoshkin/dbmap"
)

var (
	globalFactory *Factory
	globalConfig  *Config
	DB            *sql.DB
)

// GetDB returns the global database handle.
func GetDB() *sql.DB {
	if globalFactory != nil {
		return globalFactory.GetDB()
	}
	return DB
}

// GetManager returns the global database manager.
func GetManager() Manager {
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetFactory returns the global database factory.
func GetFactory() *Factory {
	return globalFactory
}

// CurrentDialect returns the dialect of the global connection, falling back
// to the package-level dialect when nothing is initialized.
func CurrentDialect() dbmap.Dialect {
	if m := GetManager(); m != nil {
		return m.Dialect()
	}
	return dbmap.CurrentDialect()
}

// InitDB initializes the global database using the provided configuration,
// running the configured startup scripts when enabled.
func InitDB(cfg *Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	globalConfig = cfg
	return InitDBWithOptions(cfg, cfg.Scripts.RunOnStartup)
}

// InitDBWithOptions initializes the database and optionally runs the
// startup scripts regardless of configuration.
func InitDBWithOptions(cfg *Config, runScripts bool) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	globalConfig = cfg
	globalFactory = NewFactory()
	globalFactory.SetScriptConfig(cfg.Scripts)
	manager, err := globalFactory.CreateFromConfig(&cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}

	ctx := context.Background()
	if err := globalFactory.Initialize(ctx, runScripts); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	DB = manager.DB()
	return DB, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	if globalFactory != nil {
		return globalFactory.Close()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if globalFactory != nil {
		return globalFactory.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if globalFactory != nil {
		return globalFactory.GetStats()
	}
	return &DBStats{}
}

// RunStartupScripts executes the SQL scripts for the given environment
// against the global connection. An empty environment falls back to the
// configured one, then to "prod".
func RunStartupScripts(environment string) error {
	if globalFactory == nil {
		return fmt.Errorf("database not initialized")
	}
	db := globalFactory.GetDB()
	if db == nil {
		return fmt.Errorf("database instance not initialized")
	}

	if environment == "" {
		environment = "prod"
		if globalConfig != nil && globalConfig.Scripts.Environment != "" {
			environment = globalConfig.Scripts.Environment
		}
	}

	runner := NewScriptRunner(db, environment)
	if globalConfig != nil && globalConfig.Scripts.Dir != "" {
		runner.SetRootPath(globalConfig.Scripts.Dir)
	}
	return runner.Execute(context.Background())
}
