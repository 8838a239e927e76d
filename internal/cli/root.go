package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// options holds the flag values shared by every verb command.
type options struct {
	configFile string
	baseURL    string
	headers    []string
	query      []string
	cookies    []string
	token      string
	user       string
	digest     bool
	insecure   bool
	timeout    time.Duration
	retry      int
	retryDelay time.Duration

	jsonBody string
	form     []string
	data     string
	files    []string

	path    string
	verbose bool
	curl    bool
	trace   bool
	noColor bool
	debug   bool
	fail    bool
}

// NewRootCommand builds the fluent command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "fluent",
		Short: "Send HTTP requests from the terminal",
		Long: `fluent sends HTTP requests built with the fluent-go request builder.

Defaults come from an optional YAML file (--config) and FLUENT_* environment
variables; flags override both.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	f.StringVar(&opts.baseURL, "base-url", "", "base URL prepended to relative request URLs")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, `header "Name: value" (repeatable)`)
	f.StringArrayVarP(&opts.query, "query", "q", nil, "query parameter key=value (repeatable)")
	f.StringArrayVarP(&opts.cookies, "cookie", "b", nil, "cookie name=value (repeatable)")
	f.StringVar(&opts.token, "token", "", "bearer token")
	f.StringVarP(&opts.user, "user", "u", "", "credentials user:password")
	f.BoolVar(&opts.digest, "digest", false, "use digest instead of basic authentication")
	f.BoolVarP(&opts.insecure, "insecure", "k", false, "skip TLS certificate and host name verification")
	f.DurationVarP(&opts.timeout, "timeout", "t", 0, "per-attempt timeout, e.g. 5s")
	f.IntVar(&opts.retry, "retry", 0, "total number of attempts on transport failures")
	f.DurationVar(&opts.retryDelay, "retry-delay", 0, "wait between attempts")
	f.StringVarP(&opts.path, "path", "p", "", "print only this gjson path of a JSON response")
	f.BoolVar(&opts.verbose, "verbose", false, "print request and response headers")
	f.BoolVar(&opts.curl, "curl", false, "print the equivalent curl command")
	f.BoolVar(&opts.trace, "trace", false, "print request phase timings")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&opts.debug, "debug", false, "log dispatch and retries to stderr")
	f.BoolVarP(&opts.fail, "fail", "f", false, "exit with an error on 4xx and 5xx responses")

	for _, v := range verbs {
		root.AddCommand(newVerbCommand(v, opts))
	}
	return root
}

// Execute runs the command tree with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
