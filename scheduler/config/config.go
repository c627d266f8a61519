// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the read-only key/value view services are
// initialised from, backed by koanf.
package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"go.rtcore.io/scheduler/errorkind"
)

// Delimiter separates the levels of a key path.
const Delimiter = "."

// StructuredData is the read interface services are initialised from. Every
// getter returns an error wrapping errorkind.ErrParameters when the key is
// missing or its value has the wrong type.
type StructuredData interface {
	Exists(key string) bool
	Uint64(key string) (uint64, error)
	Int64(key string) (int64, error)
	String(key string) (string, error)
	// Rows reads a matrix, such as a list of [threadIndex, value] pairs.
	Rows(key string) ([][]string, error)
}

// Database is the in-memory StructuredData implementation.
type Database struct {
	k *koanf.Koanf
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{k: koanf.New(Delimiter)}
}

// Load reads the YAML file at path, if not empty, then overlays environment
// variables starting with envPrefix, if not empty. In variable names a double
// underscore separates key levels: PREFIX_Echo__Timeout sets Echo.Timeout.
func Load(path, envPrefix string) (*Database, error) {
	d := NewDatabase()
	if path != "" {
		if err := d.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	if envPrefix != "" {
		cb := func(s string) string {
			return strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "__", Delimiter)
		}
		if err := d.k.Load(env.Provider(envPrefix, Delimiter, cb), nil); err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
	}
	return d, nil
}

// Write sets key to value, creating intermediate levels.
func (d *Database) Write(key string, value any) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", errorkind.ErrParameters)
	}
	return d.k.Set(key, value)
}

// Sub returns a copy of the block at path, with keys relative to it.
func (d *Database) Sub(path string) *Database {
	return &Database{k: d.k.Cut(path)}
}

// Blocks returns the names of the sub-blocks at the top level.
func (d *Database) Blocks() []string {
	return d.k.MapKeys("")
}

// Keys returns every leaf key.
func (d *Database) Keys() []string {
	return d.k.Keys()
}

func (d *Database) Exists(key string) bool {
	return d.k.Exists(key)
}

func (d *Database) Uint64(key string) (uint64, error) {
	v, err := d.get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case float64:
		if n >= 0 && n < math.MaxUint64 && n == math.Trunc(n) {
			return uint64(n), nil
		}
	case string:
		if u, perr := strconv.ParseUint(strings.TrimSpace(n), 0, 64); perr == nil {
			return u, nil
		}
	}
	return 0, typeError(key, "an unsigned integer", v)
}

func (d *Database) Int64(key string) (int64, error) {
	v, err := d.get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), nil
		}
	case float64:
		if n >= math.MinInt64 && n < math.MaxInt64 && n == math.Trunc(n) {
			return int64(n), nil
		}
	case string:
		if i, perr := strconv.ParseInt(strings.TrimSpace(n), 0, 64); perr == nil {
			return i, nil
		}
	}
	return 0, typeError(key, "an integer", v)
}

func (d *Database) String(key string) (string, error) {
	v, err := d.get(key)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []any, map[string]any:
		return "", typeError(key, "a scalar", v)
	}
	return fmt.Sprint(v), nil
}

// Rows accepts a list of lists, or a string with rows separated by ';' and
// columns by ','.
func (d *Database) Rows(key string) ([][]string, error) {
	v, err := d.get(key)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(string); ok {
		var rows [][]string
		for _, line := range strings.Split(m, ";") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var row []string
			for _, cell := range strings.Split(line, ",") {
				row = append(row, strings.TrimSpace(cell))
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	outer := reflect.ValueOf(v)
	if outer.Kind() != reflect.Slice {
		return nil, typeError(key, "a matrix", v)
	}
	rows := make([][]string, 0, outer.Len())
	for i := 0; i < outer.Len(); i++ {
		inner := reflect.Indirect(outer.Index(i))
		if inner.Kind() == reflect.Interface {
			inner = inner.Elem()
		}
		if inner.Kind() != reflect.Slice {
			return nil, typeError(key, "a matrix", v)
		}
		row := make([]string, 0, inner.Len())
		for j := 0; j < inner.Len(); j++ {
			row = append(row, fmt.Sprint(inner.Index(j).Interface()))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *Database) get(key string) (any, error) {
	if !d.k.Exists(key) {
		return nil, fmt.Errorf("missing key %s: %w", key, errorkind.ErrParameters)
	}
	return d.k.Get(key), nil
}

func typeError(key, expected string, v any) error {
	return fmt.Errorf("key %s is not %s (%T): %w", key, expected, v, errorkind.ErrParameters)
}
