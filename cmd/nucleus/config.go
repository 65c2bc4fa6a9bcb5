// Copyright 2024 The Nucleus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"nucleus.dev/nucleus/pkg/arch"
)

// Config is the nucleus run configuration, loaded from a TOML file.
type Config struct {
	// LogLevel is one of "debug", "info", "warning", "error".
	LogLevel string `toml:"log-level"`

	// Arch selects the simulated register-frame layout, "riscv64" or
	// "amd64".
	Arch string `toml:"arch"`

	// Workload configures the demo workload the run command drives.
	Workload WorkloadConfig `toml:"workload"`
}

// WorkloadConfig configures the demo workload.
type WorkloadConfig struct {
	// Workers is the number of worker tasks in the demo process.
	Workers int `toml:"workers"`

	// Ticks is the number of timer ticks to simulate.
	Ticks uint64 `toml:"ticks"`

	// TickInterval is the host-time length of one simulated tick.
	TickInterval duration `toml:"tick-interval"`

	// KillAfter is the tick at which the demo sends SIGTERM to the
	// workers' process; 0 lets the workload run out its ticks.
	KillAfter uint64 `toml:"kill-after"`
}

// duration wraps time.Duration with TOML text unmarshalling.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Arch:     "riscv64",
		Workload: WorkloadConfig{
			Workers:      2,
			Ticks:        100,
			TickInterval: duration{time.Millisecond},
			KillAfter:    50,
		},
	}
}

func loadConfig(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) arch() (arch.Arch, error) {
	switch c.Arch {
	case "riscv64", "":
		return arch.RISCV64, nil
	case "amd64":
		return arch.AMD64, nil
	default:
		return 0, fmt.Errorf("unknown arch %q", c.Arch)
	}
}
