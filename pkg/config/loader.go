// Package config loads layered configuration into tagged structs.
//
// Values are resolved in this order, later layers winning:
//
//	envDefault struct tags
//	YAML or JSON file
//	environment variables
//
// Struct tags:
//
//   - `env:"NAME"` maps the field to NAME, prefixed by the loader prefix and
//     by the env tag of every enclosing struct field.
//   - `envDefault:"value"` is applied when the field is still zero.
//   - `required:"true"` fails loading when the field ends up zero.
//
// File loading uses the `yaml` and `json` tags of the same fields.
//
//	var cfg firebasejwt.Config
//	err := config.New().WithEnvPrefix("FIREBASE_JWT").WithFile("firebase.yaml").Load(&cfg)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// LookupFunc returns the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Loader resolves configuration. It is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookup    LookupFunc
}

// New returns a Loader reading the process environment, with no prefix
// and no file.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends prefix and an underscore to every variable name.
// The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile loads path (.yaml, .yml or .json) between defaults and
// environment. A missing file is skipped.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithFileFromEnv is WithFile with the path read from the variable key,
// after prefixing. Nothing changes when the variable is unset.
func (l *Loader) WithFileFromEnv(key string) *Loader {
	if path, ok := l.lookup(l.envKey(key)); ok && path != "" {
		l.filePath = path
	}
	return l
}

// WithLookup replaces the environment source, mainly for tests.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	l.lookup = fn
	return l
}

func (l *Loader) envKey(name string) string {
	return joinKey(l.envPrefix, name)
}

// Load fills cfg, a non-nil pointer to a struct, and validates it:
// required fields first, then the Validator interface when cfg implements
// it. Loading failures carry CodeInternalConfiguration; validation
// failures carry a VAL code.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct, got %T", cfg)
	}
	rv = rv.Elem()

	err := walk(rv, "", "", func(f field) error {
		def, ok := f.tag.Lookup("envDefault")
		if !ok || !f.value.IsZero() {
			return nil
		}
		if err := setString(f.value, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: bad default for field %q", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	err = walk(rv, "", l.envPrefix, func(f field) error {
		if f.env == "" {
			return nil
		}
		val, ok := l.lookup(f.env)
		if !ok {
			return nil
		}
		if err := setString(f.value, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: bad value in %s for field %q", f.env, f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Meant for main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain ..")
	}
	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: cannot read %q", l.filePath)
	}

	var unmarshal func([]byte, any) error
	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml or .json)", ext)
	}
	if err := unmarshal(data, cfg); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: cannot parse %q", l.filePath)
	}
	return nil
}
