package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment overrides.
const (
	EnvParallelism = "JSGRAPH_PARALLELISM"
	EnvJournal     = "JSGRAPH_JOURNAL"
	EnvMinify      = "JSGRAPH_MINIFY"
)

// env resolves overrides from the caller's lookup first and the project's
// .env file second.
type env struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
}

func newEnv(dir string, lookup func(string) (string, bool)) (*env, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := &env{lookup: lookup}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return e, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidEnv, Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	e.dotenv = values
	return e, nil
}

func (e *env) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok
}

func (e *env) apply(f *file) error {
	if v, ok := e.get(EnvParallelism); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return &LoadError{Code: ErrCodeInvalidEnv, Message: fmt.Sprintf("%s must be a positive integer, got %q", EnvParallelism, v)}
		}
		f.Parallelism = n
	}
	if v, ok := e.get(EnvJournal); ok {
		f.Journal = v
	}
	if v, ok := e.get(EnvMinify); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &LoadError{Code: ErrCodeInvalidEnv, Message: fmt.Sprintf("%s must be a boolean, got %q", EnvMinify, v)}
		}
		f.Output.Minify = b
	}
	return nil
}
