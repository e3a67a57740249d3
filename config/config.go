// Package config loads the engine's default approximation level and top-N
// view limits from the process environment, optionally seeded by a .env
// file via github.com/joho/godotenv. Absence of the file or of any
// individual variable is not an error — the engine's built-in defaults
// apply instead.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sarchlab/redshow/approx"
)

const (
	envApproxLevel   = "REDSHOW_APPROX_LEVEL"
	envPCViewsLimit  = "REDSHOW_PC_VIEWS_LIMIT"
	envMemViewsLimit = "REDSHOW_MEM_VIEWS_LIMIT"
)

// Defaults is the set of engine defaults resolved from the environment.
type Defaults struct {
	ApproxLevel   approx.Level
	PCViewsLimit  int
	MemViewsLimit int
}

// Load reads a .env file at path, if present, into the process environment
// (without overriding variables already set there), then resolves Defaults
// from the environment. A missing file is not an error.
func Load(path string) Defaults {
	_ = godotenv.Load(path)

	return FromEnv()
}

// FromEnv resolves Defaults directly from the current process environment,
// without touching any .env file.
func FromEnv() Defaults {
	defaults := Defaults{
		ApproxLevel:   approx.LevelNone,
		PCViewsLimit:  10,
		MemViewsLimit: 10,
	}

	if v, ok := os.LookupEnv(envApproxLevel); ok {
		if level, ok := approx.ParseLevel(v); ok {
			defaults.ApproxLevel = level
		}
	}

	if v, ok := os.LookupEnv(envPCViewsLimit); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defaults.PCViewsLimit = n
		}
	}

	if v, ok := os.LookupEnv(envMemViewsLimit); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defaults.MemViewsLimit = n
		}
	}

	return defaults
}
