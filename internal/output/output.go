// Package output persists run results to a file in one of several formats.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/agent462/drove/internal/executor"
)

// Format names an output encoding.
type Format string

const (
	PlainText Format = "PlainText"
	JSON      Format = "Json"
	CSV       Format = "Csv"
	HTML      Format = "Html"
)

// Formats lists the supported formats in help order.
var Formats = []Format{PlainText, JSON, CSV, HTML}

// ParseFormat maps a format name to a Format, ignoring case. Unknown names
// fall back to PlainText and report ok == false.
func ParseFormat(name string) (f Format, ok bool) {
	for _, f := range Formats {
		if strings.EqualFold(name, string(f)) {
			return f, true
		}
	}
	return PlainText, false
}

// Write renders results in format and replaces the file at path.
func Write(path string, format Format, results []*executor.Result) error {
	data, err := Render(format, results)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	if err := lockAndWrite(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Render encodes results without touching the filesystem.
func Render(format Format, results []*executor.Result) ([]byte, error) {
	switch format {
	case JSON:
		return renderJSON(results)
	case CSV:
		return renderCSV(results)
	case HTML:
		return renderHTML(results)
	default:
		return renderPlain(results), nil
	}
}

// renderJSON emits an array of the text blocks, one string per result.
func renderJSON(results []*executor.Result) ([]byte, error) {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.String())
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// renderCSV emits one single-field record per result.
func renderCSV(results []*executor.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, r := range results {
		if err := w.Write([]string{r.String()}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPlain(results []*executor.Result) []byte {
	var buf bytes.Buffer
	for _, r := range results {
		buf.WriteString(r.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// renderHTML builds a markdown report and converts it with goldmark.
func renderHTML(results []*executor.Result) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert(markdownReport(results), &body); err != nil {
		return nil, err
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>drove report</title>\n</head>\n<body>\n")
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")
	return doc.Bytes(), nil
}

func markdownReport(results []*executor.Result) []byte {
	var b bytes.Buffer

	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}

	b.WriteString("# drove report\n\n")
	fmt.Fprintf(&b, "%d succeeded, %d failed\n\n", len(results)-failed, failed)

	if len(results) == 0 {
		return b.Bytes()
	}

	b.WriteString("| Host | Command | Status | Attempts | Duration |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, r := range results {
		status := "ok"
		if !r.Succeeded() {
			status = "failed (" + r.Kind().String() + ")"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
			cell(r.Host), cell(r.Command), status, r.Attempts, r.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n")

	for _, r := range results {
		fmt.Fprintf(&b, "## %s: %s\n\n", inline(r.Host), inline(r.Command))
		text := string(r.Stdout)
		if !r.Succeeded() {
			text = r.ErrorText()
		}
		fence := codeFence(text)
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", fence, strings.TrimRight(text, "\n"), fence)
	}
	return b.Bytes()
}

// cell makes s safe inside a GFM table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

func inline(s string) string {
	return strings.NewReplacer("\n", " ", "#", `\#`).Replace(s)
}

// codeFence returns a backtick fence longer than any run inside text.
func codeFence(text string) string {
	longest, run := 0, 0
	for _, c := range text {
		if c == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
