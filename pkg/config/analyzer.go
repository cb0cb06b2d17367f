// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/openttd/crash-analyzer/pkg/symbols"
)

// Analyzer is the configuration of the crash-analyzer command.
type Analyzer struct {
	// Base URL of the Breakpad symbol archive: https://, http:// or gs://bucket/prefix.
	SymbolRoot string `json:"symbol_root"`
	// Timeout of a single symbol file download, e.g. "30s".
	FetchTimeout Duration `json:"fetch_timeout"`
	// Number of modules whose symbols are fetched in parallel, 0 means all at once.
	Concurrency int `json:"concurrency"`
	// Access gs:// archives without credentials.
	AnonymousGCS bool `json:"anonymous_gcs"`
	// Listen address of the analysis server.
	HTTP        string `json:"http"`
	LogJSON     bool   `json:"log_json"`
	Verbosity   int    `json:"verbosity"`
	MaxUploadMB int    `json:"max_upload_mb"`
}

func DefaultAnalyzer() *Analyzer {
	return &Analyzer{
		SymbolRoot:   symbols.DefaultRoot,
		FetchTimeout: Duration(time.Minute),
		Concurrency:  8,
		HTTP:         "127.0.0.1:8080",
		MaxUploadMB:  64,
	}
}

// LoadAnalyzer reads the config file on top of the defaults.
// An empty filename gives the defaults.
func LoadAnalyzer(filename string) (*Analyzer, error) {
	cfg := DefaultAnalyzer()
	if filename != "" {
		if err := LoadFile(filename, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bad config %v: %w", filename, err)
	}
	return cfg, nil
}

func (cfg *Analyzer) Validate() error {
	u, err := url.Parse(cfg.SymbolRoot)
	if err != nil {
		return fmt.Errorf("bad symbol_root: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "gs":
	default:
		return fmt.Errorf("bad symbol_root %q: want http, https or gs URL", cfg.SymbolRoot)
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %v", cfg.FetchTimeout)
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %v", cfg.Concurrency)
	}
	if cfg.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %v", cfg.MaxUploadMB)
	}
	return nil
}

// Duration is a time.Duration written as "30s" or "1m30s" in config files.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
