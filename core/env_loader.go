package core

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultEnvPrefix = "CONSENT_"

// EnvRawConfigLoader reads configuration from .env files and the process
// environment. Keys drop the prefix, are lower cased and split on "__" into
// nested maps. Process variables win over file values.
type EnvRawConfigLoader struct {
	Prefix  string
	Files   []string
	Environ func() []string
}

func NewEnvRawConfigLoader(prefix string, files ...string) *EnvRawConfigLoader {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvRawConfigLoader{Prefix: prefix, Files: files, Environ: os.Environ}
}

func (l *EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	values := map[string]string{}
	for _, file := range l.Files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		parsed, err := godotenv.Read(file)
		if err != nil {
			return nil, err
		}
		for key, value := range parsed {
			values[key] = value
		}
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	for _, pair := range environ() {
		key, value, ok := strings.Cut(pair, "=")
		if ok {
			values[key] = value
		}
	}

	out := map[string]any{}
	for key, value := range values {
		if !strings.HasPrefix(key, l.Prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, l.Prefix)), "__")
		setNested(out, path, envValue(path[len(path)-1], value))
	}
	return out, nil
}

func envValue(key string, value string) any {
	value = strings.TrimSpace(value)
	if key == "contract_ids" {
		parts := strings.Split(value, ",")
		ids := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
		return ids
	}
	if key == "debug" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	if numericEnvKey(key) {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return value
}

func numericEnvKey(key string) bool {
	if key == "request_code" {
		return true
	}
	for _, suffix := range []string{"_seconds", "_minutes", "_bytes"} {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func setNested(target map[string]any, path []string, value any) {
	for i, segment := range path {
		if segment == "" {
			return
		}
		if i == len(path)-1 {
			target[segment] = value
			return
		}
		child, ok := target[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			target[segment] = child
		}
		target = child
	}
}
