package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Table — табличное представление ответа API.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Output печатает результаты команд. В режиме --json печатается исходный ответ API.
type Output struct {
	json   bool
	stdout io.Writer
	stderr io.Writer
}

// NewOutput печатает в os.Stdout, заметки в os.Stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo — NewOutput с явными потоками (для тестов).
func NewOutputTo(stdout, stderr io.Writer, jsonMode bool) *Output {
	return &Output{json: jsonMode, stdout: stdout, stderr: stderr}
}

// Render печатает t или raw в зависимости от режима.
func (o *Output) Render(t Table, raw any) error {
	if o.json {
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}

	tw := tabwriter.NewWriter(o.stdout, 0, 0, 2, ' ', 0)
	underline := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	for _, row := range append([][]string{t.Headers, underline}, t.Rows...) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Notef пишет заметку в stderr. В JSON-режиме stdout остаётся чистым.
func (o *Output) Notef(format string, args ...any) {
	fmt.Fprintf(o.stderr, format+"\n", args...)
}
