package probe

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Check describes one smoke test.
type Check struct {
	Name        string
	Method      string            // GET or POST
	URL         string
	Body        map[string]string // POST payload
	ContentType string            // expected Content-Type, empty to skip
	// MessagePattern, when set, must match the MESSAGE field of the JSON
	// reply.
	MessagePattern *regexp.Regexp
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string
	Err      error
	Status   int
	Duration time.Duration
}

// Passed reports whether the check succeeded.
func (r CheckResult) Passed() bool { return r.Err == nil }

// KeysCheck posts two values to the keys endpoint and expects them echoed in
// the MESSAGE field as "<acckey> and <seckey>".
func KeysCheck(name, url, acckey, seckey string) Check {
	return Check{
		Name:        name,
		Method:      http.MethodPost,
		URL:         url,
		Body:        map[string]string{"acckey": acckey, "seckey": seckey},
		ContentType: mimeJSON,
		MessagePattern: regexp.MustCompile(
			"(.*)" + regexp.QuoteMeta(acckey) + " and " + regexp.QuoteMeta(seckey) + "(.*)"),
	}
}

// PublicTodoURL is a public JSON API used to confirm outbound connectivity.
const PublicTodoURL = "http://jsonplaceholder.typicode.com/todos"

// DefaultChecks returns the backend suite for baseURL. With remote set it
// also checks outbound connectivity to a public API.
func DefaultChecks(baseURL string, remote bool) []Check {
	base := strings.TrimRight(baseURL, "/")
	checks := []Check{
		{Name: "get message", Method: http.MethodGet, URL: base + "/api/getmsg/?msg=Bob"},
		KeysCheck("post keys", base+"/api/keys", "cjk3", "cjk4"),
	}
	if remote {
		checks = append([]Check{{Name: "get public todos", Method: http.MethodGet, URL: PublicTodoURL}}, checks...)
	}
	return checks
}

// Run executes the checks in order.
func (c *Client) Run(ctx context.Context, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, chk := range checks {
		start := time.Now()
		status, err := c.run(ctx, chk)
		results = append(results, CheckResult{
			Name:     chk.Name,
			Err:      err,
			Status:   status,
			Duration: time.Since(start),
		})
	}
	return results
}

func (c *Client) run(ctx context.Context, chk Check) (int, error) {
	var (
		resp *Response
		err  error
	)
	switch chk.Method {
	case http.MethodGet, "":
		resp, err = c.Get(ctx, chk.URL)
	case http.MethodPost:
		resp, err = c.PostJSON(ctx, chk.URL, chk.Body)
	default:
		return 0, fmt.Errorf("unsupported method %s", chk.Method)
	}
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, Verify(chk, resp)
}

// Verify applies a check's expectations to a response.
func Verify(chk Check, resp *Response) error {
	if !resp.OK() {
		return fmt.Errorf("status %d from %s", resp.StatusCode, chk.URL)
	}
	if chk.ContentType != "" && resp.ContentType != chk.ContentType {
		return fmt.Errorf("content type %q, want %q", resp.ContentType, chk.ContentType)
	}
	if chk.MessagePattern == nil {
		return nil
	}
	var reply map[string]any
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return fmt.Errorf("reply is not JSON: %w", err)
	}
	msg, ok := reply["MESSAGE"]
	if !ok {
		return fmt.Errorf("reply has no MESSAGE field")
	}
	s, ok := msg.(string)
	if !ok || !chk.MessagePattern.MatchString(s) {
		return fmt.Errorf("MESSAGE %v does not match %s", msg, chk.MessagePattern)
	}
	return nil
}
