package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	access "github.com/JohnPlummer/jp-go-access"
	"github.com/JohnPlummer/jp-go-access/httpaccess"
)

func newHTTPCmd() *cobra.Command {
	var (
		method  string
		headers []string
		data    string
		curl    string
		breaker bool
	)

	cmd := &cobra.Command{
		Use:   "http [url]",
		Short: "Send an HTTP request with retries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, proxy, err := httpRequest(args, method, headers, data, curl)
			if err != nil {
				return err
			}

			sessionOpts, err := state.cfg.HTTP.SessionOptions()
			if err != nil {
				return err
			}
			if proxy != nil {
				sessionOpts = append(sessionOpts, httpaccess.WithProxy(proxy))
			}

			client := httpaccess.NewClient(
				httpaccess.WithSessions(httpaccess.NewSessionFactory(sessionOpts...)),
				httpaccess.WithAccessOptions(append(state.options("http"), access.WithDeadline(state.cfg.HTTP.Timeout))...),
			)

			var exec access.ResilientClient[access.Request, *access.Result[*httpaccess.Response]] = client
			if breaker {
				exec = access.NewCircuitBreakerWrapper(exec,
					access.WithBreakerName("http"),
					access.WithCircuitBreakerLogger(state.logger),
				)
			}

			result, err := exec.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}

			state.logger.Info("request complete",
				"operation_id", result.OperationID,
				"status", result.Value.StatusCode,
				"attempts", result.Attempts,
				"waited", result.TotalWait(),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Value.Text())
			return err
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, `request header, "Name: value"`)
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringVar(&curl, "curl", "", "take the request from a curl command line")
	cmd.Flags().BoolVar(&breaker, "breaker", false, "run the request behind a circuit breaker")
	return cmd
}

// httpRequest builds the request from either a curl command or the url and flags.
func httpRequest(args []string, method string, headers []string, data, curl string) (access.Request, *url.URL, error) {
	if curl != "" {
		parsed, err := httpaccess.ParseCurl(curl)
		if err != nil {
			return access.Request{}, nil, err
		}
		if parsed.Proxy == "" {
			return parsed.Request, nil, nil
		}
		proxy, err := url.Parse(parsed.Proxy)
		if err != nil {
			return access.Request{}, nil, fmt.Errorf("invalid proxy %q: %w", parsed.Proxy, err)
		}
		return parsed.Request, proxy, nil
	}

	if len(args) == 0 {
		return access.Request{}, nil, fmt.Errorf("a url or --curl is required")
	}

	req := access.Request{
		Method: strings.ToUpper(method),
		Target: args[0],
	}
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return access.Request{}, nil, fmt.Errorf("invalid header %q", h)
		}
		if req.Header == nil {
			req.Header = make(map[string][]string)
		}
		key := http.CanonicalHeaderKey(strings.TrimSpace(name))
		req.Header[key] = append(req.Header[key], strings.TrimSpace(value))
	}
	if data != "" {
		req.Body = []byte(data)
	}
	return req, nil, nil
}

func newSplitURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split-url [url]",
		Short: "Print the base and query parameters of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, params, err := httpaccess.SplitURL(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, base)
			for k, v := range params {
				fmt.Fprintf(out, "  %s=%s\n", k, v)
			}
			return nil
		},
	}
}
