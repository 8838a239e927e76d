package httpclient

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// CurlCommand renders req as an equivalent curl invocation.
//
// Credentials are included verbatim; the output is meant for local
// debugging, not for logs.
//
// Example output:
//
//	curl -X POST 'https://api.example.com/users' -H 'Content-Type: application/json' -d '{"name":"John"}'
func CurlCommand(req *ResolvedRequest) string {
	parts := []string{"curl"}

	if req.Method != "" && req.Method != "GET" {
		parts = append(parts, "-X", req.Method)
	}
	if req.Method == "HEAD" {
		parts = append(parts, "-I")
	}
	parts = append(parts, shellQuote(req.URL))

	for _, line := range req.Headers {
		parts = append(parts, "-H", shellQuote(line))
	}

	opts := req.Options
	if creds, ok := opts.String(OptionCredentials); ok {
		if mode, _ := opts.String(OptionAuthMode); AuthMode(mode) == AuthDigest {
			parts = append(parts, "--digest")
		}
		parts = append(parts, "-u", shellQuote(creds))
	}
	if cookie, ok := opts.String(OptionCookie); ok && cookie != "" {
		parts = append(parts, "-b", shellQuote(cookie))
	}
	if insecureRequested(opts) {
		parts = append(parts, "-k")
	}
	if timeout, ok := opts.Duration(OptionTimeout); ok && timeout > 0 {
		parts = append(parts, "-m", formatSeconds(timeout))
	}

	parts = append(parts, curlBody(req.Body)...)
	return strings.Join(parts, " ")
}

func curlBody(body any) []string {
	switch v := body.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return []string{"-d", shellQuote(string(v))}
	case string:
		return []string{"-d", shellQuote(v)}
	case url.Values:
		return curlFormFields(v)
	case map[string][]string:
		return curlFormFields(url.Values(v))
	case map[string]string:
		values := make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
		return curlFormFields(values)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var out []string
		for _, k := range keys {
			switch f := v[k].(type) {
			case FileUpload:
				out = append(out, "-F", shellQuote(k+"=@"+f.displayPath()))
			case *FileUpload:
				out = append(out, "-F", shellQuote(k+"=@"+f.displayPath()))
			default:
				for _, p := range flattenForm(k, f, nil) {
					out = append(out, "-F", shellQuote(p.key+"="+p.value))
				}
			}
		}
		return out
	default:
		return []string{"-d", shellQuote(fmt.Sprint(v))}
	}
}

func curlFormFields(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		for _, v := range values[k] {
			out = append(out, "-F", shellQuote(k+"="+v))
		}
	}
	return out
}

func (f FileUpload) displayPath() string {
	if f.path != "" {
		return f.path
	}
	return f.FileName
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func formatSeconds(d time.Duration) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", d.Seconds()), "0"), ".")
}
