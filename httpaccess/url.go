package httpaccess

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	access "github.com/JohnPlummer/jp-go-access"
)

// SplitURL separates raw into the URL without its query and the query parameters.
// Repeated parameters keep their first value.
func SplitURL(raw string) (string, map[string]string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}

	params := make(map[string]string)
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String(), params, nil
}

// CurlCommand is a request recovered from a curl command line.
type CurlCommand struct {
	Request access.Request
	BaseURL string
	Params  map[string]string
	Proxy   string
}

var (
	curlURL    = regexp.MustCompile(`curl\s.*?(?:'(https?://[^']*)'|"(https?://[^"]*)"|(https?://\S+))`)
	curlMethod = regexp.MustCompile(`(?:^|\s)(?:-X|--request)\s+'?([A-Za-z]+)'?`)
	curlHeader = regexp.MustCompile(`(?:^|\s)(?:-H|--header)\s+(?:'([^']*)'|"([^"]*)")`)
	curlData   = regexp.MustCompile(`(?:^|\s)(?:-d|--data|--data-raw)\s+(?:'([^']*)'|"([^"]*)")`)
	curlProxy  = regexp.MustCompile(`(?:^|\s)(?:-x|--proxy)\s+(?:'([^']*)'|"([^"]*)"|(\S+))`)

	// ErrNoCurlURL is returned when a command has no URL after "curl".
	ErrNoCurlURL = errors.New("no url in curl command")
)

// ParseCurl turns a curl command line, as copied from a browser, into a request.
// The method defaults to GET when no -X flag is given.
func ParseCurl(command string) (*CurlCommand, error) {
	command = strings.ReplaceAll(command, "\\\n", " ")

	proxy := curlProxy.FindStringSubmatch(command)
	target := firstGroup(curlURL.FindStringSubmatch(curlProxy.ReplaceAllString(command, " ")))
	if target == "" {
		return nil, ErrNoCurlURL
	}
	base, params, err := SplitURL(target)
	if err != nil {
		return nil, err
	}

	cmd := &CurlCommand{
		Request: access.Request{
			Method: http.MethodGet,
			Target: target,
		},
		BaseURL: base,
		Params:  params,
		Proxy:   firstGroup(proxy),
	}

	if m := curlMethod.FindStringSubmatch(command); m != nil {
		cmd.Request.Method = strings.ToUpper(m[1])
	}

	for _, m := range curlHeader.FindAllStringSubmatch(command, -1) {
		name, value, ok := strings.Cut(firstGroup(m), ":")
		if !ok {
			continue
		}
		if cmd.Request.Header == nil {
			cmd.Request.Header = make(map[string][]string)
		}
		key := http.CanonicalHeaderKey(strings.TrimSpace(name))
		cmd.Request.Header[key] = append(cmd.Request.Header[key], strings.TrimSpace(value))
	}

	if m := curlData.FindStringSubmatch(command); m != nil {
		cmd.Request.Body = []byte(firstGroup(m))
	}
	return cmd, nil
}

func firstGroup(m []string) string {
	for _, g := range m[min(1, len(m)):] {
		if g != "" {
			return g
		}
	}
	return ""
}
