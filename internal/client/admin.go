package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
	bwstrings "buildwarden/pkg/strings"
)

const (
	subsystem = "AdminClient"

	// builtInComputerClass identifies the controller itself in the computer list.
	builtInComputerClass = "hudson.model.Hudson$MasterComputer"

	// agentRemoteFS is the agent working directory used for new nodes.
	agentRemoteFS = "/var/lib/jenkins"
)

// pluginReportScript prints one "<name> (<version>) => [<dep> (<version>), ...]"
// line per installed plugin.
const pluginReportScript = `Jenkins.instance.pluginManager.plugins.each { p ->
  println("${p.shortName} (${p.version}) => ${p.dependencies.collect { d -> "${d.shortName} (${d.version})" }}")
}`

// StatusError is returned when the admin API answers with an unexpected status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Options configures an AdminClient.
type Options struct {
	URL      string
	Username string

	// Password is the admin password or an API token.
	Password string

	// Timeout bounds each request. Zero means no per-request timeout.
	Timeout time.Duration

	// HTTPClient overrides the pooled client built from go-cleanhttp.
	HTTPClient *http.Client
}

type crumb struct {
	field string
	value string
}

// AdminClient implements api.RemoteWorkloadClient against a Jenkins-style
// admin HTTP API. It is meant to live for one reconciliation pass; the CSRF
// crumb is fetched once per client.
type AdminClient struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client

	crumbGroup singleflight.Group
	crumbMu    sync.Mutex
	crumb      *crumb
}

var (
	_ api.RemoteWorkloadClient = (*AdminClient)(nil)
	_ api.SystemMessenger      = (*AdminClient)(nil)
)

// NewAdminClient returns a client for the admin API at opts.URL.
func NewAdminClient(opts Options) (*AdminClient, error) {
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid admin URL %q: %w", opts.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid admin URL %q: scheme and host are required", opts.URL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = opts.Timeout
	}
	if httpClient.Jar == nil {
		// The crumb is bound to the session cookie.
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &AdminClient{
		baseURL:  base,
		username: opts.Username,
		password: opts.Password,
		http:     httpClient,
	}, nil
}

func (c *AdminClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one request. The returned error is a transport error only;
// HTTP status handling is left to the caller.
func (c *AdminClient) do(ctx context.Context, method, path string, query, form url.Values) (int, []byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return 0, nil, err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method == http.MethodPost {
		cr, err := c.getCrumb(ctx)
		if err != nil {
			return 0, nil, err
		}
		if cr != nil {
			req.Header.Set(cr.field, cr.value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// post issues a POST and fails on any status of 400 and above.
func (c *AdminClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	code, data, err := c.do(ctx, http.MethodPost, path, nil, form)
	if err != nil {
		return nil, err
	}
	if code >= http.StatusBadRequest {
		return nil, statusError(http.MethodPost, path, code, data)
	}
	return data, nil
}

func statusError(method, path string, code int, body []byte) *StatusError {
	return &StatusError{Method: method, Path: path, Code: code, Body: bwstrings.OneLine(string(body), bwstrings.DefaultMaxLen)}
}

// getCrumb returns the CSRF crumb, fetching it at most once per client even
// under concurrent callers. A nil crumb means CSRF protection is disabled.
func (c *AdminClient) getCrumb(ctx context.Context) (*crumb, error) {
	c.crumbMu.Lock()
	cached := c.crumb
	c.crumbMu.Unlock()
	if cached != nil {
		return usableCrumb(cached), nil
	}

	v, err, _ := c.crumbGroup.Do("crumb", func() (interface{}, error) {
		c.crumbMu.Lock()
		cached := c.crumb
		c.crumbMu.Unlock()
		if cached != nil {
			return cached, nil
		}

		code, data, err := c.do(ctx, http.MethodGet, "/crumbIssuer/api/json", nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch crumb: %w", err)
		}
		if code == http.StatusNotFound {
			logging.Debug(subsystem, "Crumb issuer not available, CSRF protection disabled")
			cr := &crumb{}
			c.setCrumb(cr)
			return cr, nil
		}
		if code != http.StatusOK {
			return nil, statusError(http.MethodGet, "/crumbIssuer/api/json", code, data)
		}
		var payload struct {
			Crumb             string `json:"crumb"`
			CrumbRequestField string `json:"crumbRequestField"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode crumb: %w", err)
		}
		cr := &crumb{field: payload.CrumbRequestField, value: payload.Crumb}
		c.setCrumb(cr)
		return cr, nil
	})
	if err != nil {
		return nil, err
	}
	return usableCrumb(v.(*crumb)), nil
}

func usableCrumb(cr *crumb) *crumb {
	if cr.field == "" {
		return nil
	}
	return cr
}

func (c *AdminClient) setCrumb(cr *crumb) {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()
	c.crumb = cr
}

// RunScript executes a Groovy script on the script console and returns its output.
func (c *AdminClient) RunScript(ctx context.Context, script string) (string, error) {
	data, err := c.post(ctx, "/scriptText", url.Values{"script": {script}})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ListPluginsWithDeps returns the plugin report, one line per plugin.
func (c *AdminClient) ListPluginsWithDeps(ctx context.Context) ([]string, error) {
	out, err := c.RunScript(ctx, pluginReportScript)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lo.Filter(lines, func(l string, _ int) bool { return strings.TrimSpace(l) != "" }), nil
}

// DeletePlugins uninstalls each plugin. Uninstalling takes effect on restart.
// All plugins are attempted; failures are aggregated.
func (c *AdminClient) DeletePlugins(ctx context.Context, names []string) error {
	var errs *multierror.Error
	for _, name := range names {
		path := "/pluginManager/plugin/" + url.PathEscape(name) + "/doUninstall"
		if _, err := c.post(ctx, path, url.Values{}); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("uninstall %s: %w", name, err))
			continue
		}
		logging.Debug(subsystem, "Uninstalled plugin %s", name)
	}
	return errs.ErrorOrNil()
}

// Restart requests a safe restart, which waits for running builds to finish.
func (c *AdminClient) Restart(ctx context.Context) error {
	code, data, err := c.do(ctx, http.MethodPost, "/safeRestart", nil, url.Values{})
	if err != nil {
		return err
	}
	// The server may already report itself unavailable while it starts to quiet down.
	if code >= http.StatusBadRequest && code != http.StatusServiceUnavailable {
		return statusError(http.MethodPost, "/safeRestart", code, data)
	}
	return nil
}

func (c *AdminClient) probeLogin(ctx context.Context) (int, error) {
	code, _, err := c.do(ctx, http.MethodGet, "/login", nil, nil)
	return code, err
}

// IsReachable reports whether the login page answers with 200.
func (c *AdminClient) IsReachable(ctx context.Context) bool {
	code, err := c.probeLogin(ctx)
	return err == nil && code == http.StatusOK
}

// IsDrained reports whether the server is down: the connection fails or the
// server answers 503.
func (c *AdminClient) IsDrained(ctx context.Context) bool {
	code, err := c.probeLogin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		var opErr *net.OpError
		return errors.As(err, &opErr) || errors.Is(err, io.EOF)
	}
	return code == http.StatusServiceUnavailable
}

type launcher struct {
	StaplerClass string `json:"stapler-class"`
	Class        string `json:"$class"`
	WebSocket    bool   `json:"webSocket"`
}

type retentionStrategy struct {
	StaplerClass string `json:"stapler-class"`
	Class        string `json:"$class"`
}

type nodeForm struct {
	Name              string            `json:"name"`
	NodeDescription   string            `json:"nodeDescription"`
	NumExecutors      int               `json:"numExecutors"`
	RemoteFS          string            `json:"remoteFS"`
	LabelString       string            `json:"labelString"`
	Mode              string            `json:"mode"`
	Type              string            `json:"type"`
	Launcher          launcher          `json:"launcher"`
	RetentionStrategy retentionStrategy `json:"retentionStrategy"`
	NodeProperties    map[string]string `json:"nodeProperties"`
}

// RegisterNode creates an inbound (JNLP) agent node.
func (c *AdminClient) RegisterNode(ctx context.Context, spec api.AgentSpec) (api.Outcome, error) {
	const nodeType = "hudson.slaves.DumbSlave"
	form, err := json.Marshal(nodeForm{
		Name:            spec.Name,
		NodeDescription: spec.Name,
		NumExecutors:    spec.Executors,
		RemoteFS:        agentRemoteFS,
		LabelString:     spec.LabelString(),
		Mode:            "EXCLUSIVE",
		Type:            nodeType,
		Launcher: launcher{
			StaplerClass: "hudson.slaves.JNLPLauncher",
			Class:        "hudson.slaves.JNLPLauncher",
		},
		RetentionStrategy: retentionStrategy{
			StaplerClass: "hudson.slaves.RetentionStrategy$Always",
			Class:        "hudson.slaves.RetentionStrategy$Always",
		},
		NodeProperties: map[string]string{"stapler-class-bag": "true"},
	})
	if err != nil {
		return api.OutcomeError, err
	}

	code, data, err := c.do(ctx, http.MethodPost, "/computer/doCreateItem", nil, url.Values{
		"name": {spec.Name},
		"type": {nodeType},
		"json": {string(form)},
	})
	if err != nil {
		return api.OutcomeError, err
	}
	switch {
	case code < http.StatusBadRequest:
		return api.OutcomeOK, nil
	case code == http.StatusBadRequest && bytes.Contains(bytes.ToLower(data), []byte("already exists")):
		return api.OutcomeAlreadyExists, nil
	default:
		return api.OutcomeError, statusError(http.MethodPost, "/computer/doCreateItem", code, data)
	}
}

// DeregisterNode deletes an agent node. A missing node yields OutcomeNotFound.
func (c *AdminClient) DeregisterNode(ctx context.Context, name string) (api.Outcome, error) {
	path := "/computer/" + url.PathEscape(name) + "/doDelete"
	code, data, err := c.do(ctx, http.MethodPost, path, nil, url.Values{})
	if err != nil {
		return api.OutcomeError, err
	}
	switch {
	case code == http.StatusNotFound:
		return api.OutcomeNotFound, nil
	case code < http.StatusBadRequest:
		return api.OutcomeOK, nil
	default:
		return api.OutcomeError, statusError(http.MethodPost, path, code, data)
	}
}

// NodeSecret returns the inbound agent secret of a node.
func (c *AdminClient) NodeSecret(ctx context.Context, name string) (string, error) {
	script := fmt.Sprintf("println(jenkins.model.Jenkins.instance.getComputer(%s).getJnlpMac())", groovyString(name))
	out, err := c.RunScript(ctx, script)
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(out)
	if secret == "" || secret == "null" || strings.Contains(secret, "Exception") {
		return "", fmt.Errorf("no secret for node %s: %s", name, secret)
	}
	return secret, nil
}

// ListRegisteredNodeNames lists agent nodes, excluding the built-in node.
func (c *AdminClient) ListRegisteredNodeNames(ctx context.Context) ([]string, error) {
	const path = "/computer/api/json"
	code, data, err := c.do(ctx, http.MethodGet, path, url.Values{"tree": {"computer[displayName]"}}, nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, statusError(http.MethodGet, path, code, data)
	}

	var payload struct {
		Computer []struct {
			Class       string `json:"_class"`
			DisplayName string `json:"displayName"`
		} `json:"computer"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode computer list: %w", err)
	}

	names := make([]string, 0, len(payload.Computer))
	for _, comp := range payload.Computer {
		if comp.Class == builtInComputerClass {
			continue
		}
		names = append(names, comp.DisplayName)
	}
	return names, nil
}

// SetSystemMessage sets the banner shown on every page of the web UI.
func (c *AdminClient) SetSystemMessage(ctx context.Context, message string) error {
	script := fmt.Sprintf("def j = jenkins.model.Jenkins.instance\nj.setSystemMessage(%s)\nj.save()", groovyString(message))
	_, err := c.RunScript(ctx, script)
	return err
}

// groovyString quotes s as a single-quoted Groovy string literal.
func groovyString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				b.WriteString(`\u` + leftPad(strconv.FormatInt(int64(r), 16), 4))
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func leftPad(s string, n int) string {
	return strings.Repeat("0", n-len(s)) + s
}
