package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kroma-labs/fluent-go/config"
	"github.com/kroma-labs/fluent-go/httpclient"
)

var (
	errHTTPStatus      = errors.New("request failed")
	errConflictingBody = errors.New("only one of --json, --data and --form/--file may be used")
)

type verb struct {
	method string
	body   bool
}

var verbs = []verb{
	{http.MethodGet, false},
	{http.MethodHead, false},
	{http.MethodOptions, false},
	{http.MethodPost, true},
	{http.MethodPut, true},
	{http.MethodPatch, true},
	{http.MethodDelete, true},
}

func newVerbCommand(v verb, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ToLower(v.method) + " URL",
		Short: "Send a " + v.method + " request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), v.method, args[0], opts)
		},
	}

	if v.body {
		f := cmd.Flags()
		f.StringVar(&opts.jsonBody, "json", "", "JSON body, or @file to read it from a file")
		f.StringVarP(&opts.data, "data", "d", "", "raw body, or @file to read it from a file")
		f.StringArrayVarP(&opts.form, "form", "F", nil, "form field key=value (repeatable)")
		f.StringArrayVar(&opts.files, "file", nil, "file upload field=path, sent as multipart (repeatable)")
	}
	return cmd
}

func run(ctx context.Context, stdout, stderr io.Writer, method, target string, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.Close() }()

	clientOpts := cfg.ClientOptions()
	if opts.curl {
		clientOpts = append(clientOpts, httpclient.WithGenerateCurl(true))
	}
	if opts.debug {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: opts.noColor}).
			With().Timestamp().Logger()
		clientOpts = append(clientOpts, httpclient.WithDebug(true), httpclient.WithLogger(logger))
	}
	client := httpclient.New(clientOpts...)

	rb, err := applyFlags(cfg.Apply(client.Request()), opts)
	if err != nil {
		return err
	}

	query, err := parsePairs("query", opts.query)
	if err != nil {
		return err
	}

	rb, data, err := requestBody(rb, opts)
	if err != nil {
		return err
	}

	resp, err := send(ctx, rb, method, target, url.Values(query), data)
	if err != nil {
		return err
	}

	if err := newPrinter(stdout, opts.noColor).print(resp, opts); err != nil {
		return err
	}
	if opts.fail && resp.IsError() {
		return fmt.Errorf("%w: %s", errHTTPStatus, resp.Status())
	}
	return nil
}

// loadConfig layers the flags on top of the file and environment.
func loadConfig(opts *options) (*config.Config, error) {
	var loadOpts []config.LoadOption
	if opts.configFile != "" {
		loadOpts = append(loadOpts, config.WithFile(opts.configFile))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, err
	}

	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.timeout != 0 {
		cfg.Timeout = opts.timeout
	}
	if opts.retry > 0 {
		cfg.Retry.Attempts = opts.retry
	}
	if opts.retryDelay > 0 {
		cfg.Retry.Delay = opts.retryDelay
	}
	if opts.insecure {
		cfg.Insecure = true
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func applyFlags(rb *httpclient.RequestBuilder, opts *options) (*httpclient.RequestBuilder, error) {
	headers := make(map[string][]string)
	for _, h := range opts.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: value\"", h)
		}
		name = strings.TrimSpace(name)
		headers[name] = append(headers[name], strings.TrimSpace(value))
	}
	if len(headers) > 0 {
		rb = rb.WithHeaderValues(headers)
	}

	if len(opts.cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(opts.cookies))
		for _, arg := range opts.cookies {
			name, value, ok := strings.Cut(arg, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("invalid --cookie %q: want key=value", arg)
			}
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		rb = rb.WithCookieList(cookies, "")
	}

	if opts.token != "" {
		rb = rb.WithToken(opts.token)
	}
	if opts.user != "" {
		user, pass, _ := strings.Cut(opts.user, ":")
		if opts.digest {
			rb = rb.WithDigestAuth(user, pass)
		} else {
			rb = rb.WithBasicAuth(user, pass)
		}
	}
	if opts.trace {
		rb = rb.EnableTrace()
	}
	return rb, rb.Err()
}

// requestBody picks the body and its encoding from the body flags.
func requestBody(rb *httpclient.RequestBuilder, opts *options) (*httpclient.RequestBuilder, any, error) {
	set := 0
	for _, used := range []bool{opts.jsonBody != "", opts.data != "", len(opts.form)+len(opts.files) > 0} {
		if used {
			set++
		}
	}
	if set > 1 {
		return nil, nil, errConflictingBody
	}

	switch {
	case opts.jsonBody != "":
		raw, err := readArg(opts.jsonBody)
		if err != nil {
			return nil, nil, err
		}
		if !json.Valid(raw) {
			return nil, nil, fmt.Errorf("--json: invalid JSON")
		}
		return rb.AsJSON(), json.RawMessage(raw), nil

	case opts.data != "":
		raw, err := readArg(opts.data)
		if err != nil {
			return nil, nil, err
		}
		return rb, raw, nil

	case len(opts.files) > 0:
		fields := make(map[string]any, len(opts.form)+len(opts.files))
		form, err := parsePairs("form", opts.form)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range form {
			fields[k] = strings.Join(v, ",")
		}
		files, err := parsePairs("file", opts.files)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range files {
			fields[k] = httpclient.File(v[len(v)-1])
		}
		return rb, fields, nil

	case len(opts.form) > 0:
		form, err := parsePairs("form", opts.form)
		if err != nil {
			return nil, nil, err
		}
		return rb.AsForm(), url.Values(form), nil
	}
	return rb, nil, nil
}

func send(
	ctx context.Context,
	rb *httpclient.RequestBuilder,
	method, target string,
	query url.Values,
	data any,
) (*httpclient.Response, error) {
	if method == http.MethodGet {
		return rb.Get(ctx, target, query)
	}

	if len(query) > 0 {
		glue := "?"
		if strings.Contains(target, "?") {
			glue = "&"
		}
		target += glue + query.Encode()
	}

	switch method {
	case http.MethodHead:
		return rb.Head(ctx, target)
	case http.MethodOptions:
		return rb.Options(ctx, target)
	case http.MethodPost:
		return rb.Post(ctx, target, data)
	case http.MethodPut:
		return rb.Put(ctx, target, data)
	case http.MethodPatch:
		return rb.Patch(ctx, target, data)
	case http.MethodDelete:
		return rb.Delete(ctx, target, data)
	}
	return nil, fmt.Errorf("unsupported method %s", method)
}

// parsePairs parses key=value arguments. Repeated keys keep every value.
func parsePairs(flag string, args []string) (map[string][]string, error) {
	out := make(map[string][]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --%s %q: want key=value", flag, arg)
		}
		out[k] = append(out[k], v)
	}
	return out, nil
}

// readArg returns arg, or the content of the file it names with "@".
func readArg(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(arg), nil
}
