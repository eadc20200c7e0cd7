/*
 * Copyright 2025 tomoncle.
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

// Package config loads application settings from defaults, a YAML file,
// AGENTDESK_ environment variables and command line flags, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/tomoncle/agentdesk/database"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: AGENTDESK_DATABASE__CONNECTION__HOST.
const EnvPrefix = "AGENTDESK_"

// DefaultFile is read when no explicit path is given and it exists.
const DefaultFile = "agentdesk.yaml"

type Config struct {
	Log      LogConfig       `koanf:"log"`
	HTTP     HTTPConfig      `koanf:"http"`
	Database database.Config `koanf:"database"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
	// Mode is the gin mode: debug, release or test.
	Mode string `koanf:"mode"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"http-addr":  "http.addr",
	"seed-env":   "database.init.environment",
	"sql-dir":    "database.init.filepath",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":                 "info",
		"log.format":                "text",
		"http.addr":                 ":8080",
		"http.mode":                 "release",
		"database.init.filepath":    "configs/sql",
		"database.init.environment": "prod",
	}
}

// Load reads path, or DefaultFile when path is empty, layering environment
// and changed flags on top. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := &Config{Database: *database.DefaultConfig()}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return cfg, nil
}

// envKey turns AGENTDESK_LOG__LEVEL into log.level.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
