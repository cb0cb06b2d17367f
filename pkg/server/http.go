// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package server implements the web interface of the crash analyzer:
// an upload page, a JSON analysis endpoint and monitoring pages.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/openttd/crash-analyzer/pkg/analyzer"
	"github.com/openttd/crash-analyzer/pkg/config"
	"github.com/openttd/crash-analyzer/pkg/log"
	"github.com/openttd/crash-analyzer/pkg/stat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServer struct {
	// To be set before calling Serve.
	Cfg       *config.Analyzer
	Analyzer  *analyzer.Analyzer
	StartTime time.Time
}

// Result is the response of /analyze.
type Result struct {
	// ID identifies the upload in the server log.
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	OK       bool               `json:"ok"`
	Error    string             `json:"error,omitempty"`
	Findings []analyzer.Finding `json:"findings"`
}

var statUploads = stat.New("uploads", "Reports uploaded to the server", stat.Prometheus("uploads"))

func (serv *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/", serv.httpMain)
	handle("/analyze", serv.httpAnalyze)
	handle("/log", serv.httpLog)
	handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	handle("/stats", serv.httpStats)
	// Browsers like to request this, without special handler this goes to / handler.
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	return mux
}

func (serv *HTTPServer) Serve(ctx context.Context) error {
	if serv.Cfg.HTTP == "" {
		return fmt.Errorf("starting a disabled HTTP server")
	}
	log.Logf(0, "serving http on http://%v", serv.Cfg.HTTP)
	server := &http.Server{Addr: serv.Cfg.HTTP, Handler: serv.Handler()}
	go func() {
		// The http server package unfortunately does not natively take a context.Context.
		// Let's emulate it via server.Shutdown()
		<-ctx.Done()
		server.Close()
	}()

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (serv *HTTPServer) httpMain(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := &UIMainData{
		Title:      "OpenTTD crash analyzer",
		SymbolRoot: serv.Cfg.SymbolRoot,
		Uptime:     time.Since(serv.StartTime).Truncate(time.Second),
		Stats:      stat.Collect(),
		Log:        log.CachedLogOutput(),
	}
	executeTemplate(w, mainTemplate, data)
}

func (serv *HTTPServer) httpAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST with a multipart \"report\" file", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(serv.Cfg.MaxUploadMB)<<20)
	file, header, err := r.FormFile("report")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, fmt.Sprintf("report is larger than %v MB", serv.Cfg.MaxUploadMB),
				http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("no report: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read report: %v", err), http.StatusBadRequest)
		return
	}
	statUploads.Add(1)
	res := &Result{
		ID:       uuid.NewString(),
		Name:     header.Filename,
		Findings: []analyzer.Finding{},
	}
	log.Logf(1, "upload %v: %v, %v bytes", res.ID, header.Filename, len(data))
	sink := new(analyzer.Collector)
	src := analyzer.BytesSource{File: header.Filename, Data: data}
	if err := serv.Analyzer.Run(r.Context(), src, sink); err != nil {
		log.Logf(0, "upload %v: failed to analyze %v: %v", res.ID, header.Filename, err)
		res.Error = err.Error()
	} else {
		res.OK = true
		res.Findings = append(res.Findings, sink.Findings...)
	}
	serv.jsonPage(w, res)
}

func (serv *HTTPServer) httpStats(w http.ResponseWriter, r *http.Request) {
	serv.jsonPage(w, stat.Collect())
}

func (serv *HTTPServer) httpLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, log.CachedLogOutput())
}

func (serv *HTTPServer) jsonPage(w http.ResponseWriter, data any) {
	text, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode json: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(text)
}

func executeTemplate(w http.ResponseWriter, templ *template.Template, data interface{}) {
	buf := new(bytes.Buffer)
	if err := templ.Execute(buf, data); err != nil {
		log.Logf(0, "failed to execute template: %v", err)
		http.Error(w, fmt.Sprintf("failed to execute template: %v", err), http.StatusInternalServerError)
		return
	}
	w.Write(buf.Bytes())
}

type UIMainData struct {
	Title      string
	SymbolRoot string
	Uptime     time.Duration
	Stats      []stat.UI
	Log        string
}

var mainTemplate = template.Must(template.ParseFS(htmlFiles, "html/main.html"))

//go:embed html/*.html
var htmlFiles embed.FS
