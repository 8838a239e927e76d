package cli

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/kroma-labs/fluent-go/httpclient"
)

// printer writes responses, colored unless disabled.
type printer struct {
	out io.Writer

	statusOK    *color.Color
	statusWarn  *color.Color
	statusError *color.Color
	headerKey   *color.Color
	sent        *color.Color
	muted       *color.Color
}

func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:         out,
		statusOK:    color.New(color.FgGreen, color.Bold),
		statusWarn:  color.New(color.FgYellow, color.Bold),
		statusError: color.New(color.FgRed, color.Bold),
		headerKey:   color.New(color.FgCyan),
		sent:        color.New(color.FgBlue),
		muted:       color.New(color.FgHiBlack),
	}
	if noColor {
		for _, c := range []*color.Color{p.statusOK, p.statusWarn, p.statusError, p.headerKey, p.sent, p.muted} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) statusColor(code int) *color.Color {
	switch {
	case code >= 400:
		return p.statusError
	case code >= 300:
		return p.statusWarn
	default:
		return p.statusOK
	}
}

func (p *printer) print(resp *httpclient.Response, opts *options) error {
	if opts.curl {
		p.muted.Fprintln(p.out, resp.CurlCommand())
	}

	if opts.verbose {
		for _, line := range resp.RequestHeaders() {
			p.sent.Fprintf(p.out, "> %s\n", line)
		}
	}

	p.statusColor(resp.StatusCode()).Fprintf(p.out, "%s %s\n", resp.Raw().Proto, resp.Status())

	if opts.verbose {
		header := resp.Header()
		names := make([]string, 0, len(header))
		for name := range header {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, v := range header[name] {
				fmt.Fprintf(p.out, "%s: %s\n", p.headerKey.Sprint(name), v)
			}
		}
	}

	if opts.trace {
		p.muted.Fprintln(p.out, resp.TraceInfo().String())
	}

	if opts.path != "" {
		result := resp.Get(opts.path)
		if !result.Exists() {
			return fmt.Errorf("path %q not found in response", opts.path)
		}
		if result.Type == gjson.String {
			fmt.Fprintln(p.out, result.String())
		} else {
			fmt.Fprintln(p.out, result.Raw)
		}
		return nil
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil
	}
	if resp.IsJSON() {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			body = buf.Bytes()
		}
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, string(body))
	return nil
}
