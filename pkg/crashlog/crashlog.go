// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package crashlog decodes the JSON crash logs the game writes next to its minidumps.
package crashlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type CrashLog struct {
	Crash      Crash    `json:"crash"`
	Date       string   `json:"date"`
	Game       Game     `json:"game"`
	Info       Info     `json:"info"`
	Stacktrace []string `json:"stacktrace"`
}

type Crash struct {
	Reason string `json:"reason"`
}

type Game struct {
	Gamelog         []string          `json:"gamelog"`
	SettingsChanged map[string]string `json:"settings_changed"`
	Timers          Timers            `json:"timers"`
}

type Timers struct {
	Calendar string `json:"calendar"`
	Seconds  uint32 `json:"seconds"`
	Ticks    uint32 `json:"ticks"`
}

type Info struct {
	Configuration Configuration `json:"configuration"`
	OpenTTD       OpenTTD       `json:"openttd"`
	OS            OS            `json:"os"`
}

type Configuration struct {
	Blitter     string `json:"blitter"`
	GraphicsSet string `json:"graphics_set"`
	MusicDriver string `json:"music_driver"`
	MusicSet    string `json:"music_set"`
	Network     string `json:"network"`
	SoundDriver string `json:"sound_driver"`
	SoundSet    string `json:"sound_set"`
	VideoDriver string `json:"video_driver"`
	VideoInfo   string `json:"video_info"`
}

type OpenTTD struct {
	Bits           uint32  `json:"bits"`
	BuildDate      string  `json:"build_date"`
	DedicatedBuild string  `json:"dedicated_build"`
	Endian         string  `json:"endian"`
	Version        Version `json:"version"`
}

type Version struct {
	Content  string `json:"content"`
	Hash     string `json:"hash"`
	Modified uint32 `json:"modified"`
	NewGRF   string `json:"newgrf"`
	Revision string `json:"revision"`
	Tagged   uint32 `json:"tagged"`
}

type OS struct {
	HardwareConcurrency uint32 `json:"hardware_concurrency"`
	Memory              string `json:"memory"`
	OS                  string `json:"os"`
	Release             string `json:"release"`
}

// DecodeError is returned for crash logs that are not valid JSON,
// miss a field or carry a field of the wrong type.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("bad crash log: %v", e.Err)
	}
	return fmt.Sprintf("bad crash log: %v: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errMissing = errors.New("missing required field")

// Decode parses a crash log. All fields of the schema are required,
// a log that lacks any of them is rejected as a whole. Unknown fields are ignored.
func Decode(data []byte) (*CrashLog, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if err := checkRequired(reflect.TypeOf(CrashLog{}), raw, ""); err != nil {
		return nil, err
	}
	cl := new(CrashLog)
	if err := json.Unmarshal(data, cl); err != nil {
		field := ""
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) {
			field = terr.Field
		}
		return nil, &DecodeError{Field: field, Err: err}
	}
	return cl, nil
}

// checkRequired verifies that every struct field of typ is present and non-null in val,
// and that lists and maps hold no null elements.
// encoding/json silently zero-fills absent fields, which would let partial logs through.
func checkRequired(typ reflect.Type, val any, path string) error {
	if val == nil {
		return &DecodeError{Field: path, Err: errMissing}
	}
	switch typ.Kind() {
	case reflect.Slice, reflect.Array:
		// Type mismatches are left to json.Unmarshal.
		list, _ := val.([]any)
		for i, elem := range list {
			if err := checkRequired(typ.Elem(), elem, fmt.Sprintf("%v[%v]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		obj, _ := val.(map[string]any)
		for key, elem := range obj {
			if err := checkRequired(typ.Elem(), elem, fmt.Sprintf("%v[%q]", path, key)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
	default:
		return nil
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return &DecodeError{Field: path, Err: fmt.Errorf("want object, got %T", val)}
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}
		if err := checkRequired(field.Type, obj[name], fieldPath); err != nil {
			return err
		}
	}
	return nil
}

// Findings returns the key/value pairs shown for a crash log.
func (c *CrashLog) Findings() [][2]string {
	return [][2]string{
		{"Crash reason", c.Crash.Reason},
		{"OS", c.Info.OS.Describe()},
	}
}

func (os *OS) Describe() string {
	return fmt.Sprintf("%v (%v), %v RAM, %v threads", os.OS, os.Release, os.Memory, os.HardwareConcurrency)
}
