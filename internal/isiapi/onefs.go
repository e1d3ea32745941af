package isiapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/tenortim/clusterstatsd/internal/stats"
)

// UserAgent is sent on every request to the cluster.
const UserAgent = "clusterstatsd/0.1"

// Auth types supported by the OneFS statistics API.
const (
	AuthTypeBasic   = "basic-auth"
	AuthTypeSession = "session"
)

const maxTimeoutSecs = 1800 // clamp retry backoff to 30 minutes

// API endpoint paths.
const (
	sessionPath  = "/session/1/session"
	configPath   = "/platform/1/cluster/config"
	statsPath    = "/platform/1/statistics/current"
	statInfoPath = "/platform/1/statistics/keys/"
)

// OneFSClient talks to a single OneFS cluster's statistics API. It
// implements Client.
type OneFSClient struct {
	Username     string
	Password     string
	AuthType     string
	Hostname     string
	Port         int
	VerifySSL    bool
	MaxRetries   int
	PreserveCase bool

	OSVersion   string
	ClusterName string

	baseURL    string
	client     *http.Client
	csrfToken  string
	reauthTime time.Time
	log        *slog.Logger
}

// New returns an unconnected OneFSClient. Call Connect before use.
func New(hostname, username, password, authType string, verifySSL bool, maxRetries int, preserveCase bool, log *slog.Logger) *OneFSClient {
	if authType == "" {
		authType = AuthTypeSession
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &OneFSClient{
		Username:     username,
		Password:     password,
		AuthType:     authType,
		Hostname:     hostname,
		Port:         8080,
		VerifySSL:    verifySSL,
		MaxRetries:   maxRetries,
		PreserveCase: preserveCase,
		log:          log,
	}
}

func (c *OneFSClient) String() string {
	if c.ClusterName != "" {
		return c.ClusterName
	}
	return c.Hostname
}

func (c *OneFSClient) initialize() error {
	if c.client != nil {
		return nil
	}
	if c.Username == "" || c.Password == "" || c.Hostname == "" {
		return fmt.Errorf("username, password and hostname must all be set")
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !c.VerifySSL},
	}
	c.client = &http.Client{Transport: tr, Jar: jar}
	c.baseURL = "https://" + c.Hostname + ":" + strconv.Itoa(c.Port)
	return nil
}

// Authenticate logs in to the cluster using the session API and records the
// CSRF token and re-auth timer.
func (c *OneFSClient) Authenticate(ctx context.Context) error {
	am := struct {
		Username string   `json:"username"`
		Password string   `json:"password"`
		Services []string `json:"services"`
	}{c.Username, c.Password, []string{"platform"}}
	b, err := json.Marshal(am)
	if err != nil {
		return err
	}
	u, err := url.Parse(c.baseURL + sessionPath)
	if err != nil {
		return err
	}

	var resp *http.Response
	retrySecs := 1
	for i := 1; i <= c.MaxRetries; i++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBuffer(b))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Content-Type", "application/json")
		resp, err = c.client.Do(req)
		if err == nil {
			break
		}
		c.log.Warn("authentication request failed", slog.String("cluster", c.String()), slog.String("error", err.Error()), slog.Int("retry_secs", retrySecs))
		if !sleepCtx(ctx, time.Duration(retrySecs)*time.Second) {
			return ctx.Err()
		}
		retrySecs = clampBackoff(retrySecs * 2)
	}
	if err != nil {
		return fmt.Errorf("max retries exceeded connecting to %s: %w", c.Hostname, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("authentication failed: %s", resp.Status)
	}
	dec := json.NewDecoder(resp.Body)
	var ar map[string]any
	if err := dec.Decode(&ar); err != nil {
		return fmt.Errorf("unable to parse auth response: %w", err)
	}
	io.Copy(io.Discard, resp.Body)

	timeout := 14400
	if ta, ok := ar["timeout_absolute"]; ok {
		if taF, ok := ta.(float64); ok {
			timeout = int(taF)
		}
	}
	if timeout > 60 {
		timeout -= 60 // grace period before the real expiry
	}
	c.reauthTime = time.Now().Add(time.Duration(timeout) * time.Second)

	c.csrfToken = ""
	for _, cookie := range c.client.Jar.Cookies(u) {
		if cookie.Name == "isicsrf" {
			c.csrfToken = cookie.Value
		}
	}
	return nil
}

// fetchClusterConfig pulls the cluster's name and OneFS version.
func (c *OneFSClient) fetchClusterConfig(ctx context.Context) error {
	resp, err := c.restGet(ctx, configPath)
	if err != nil {
		return err
	}
	var v map[string]any
	if err := json.Unmarshal(resp, &v); err != nil {
		return err
	}
	version, ok := v["onefs_version"].(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected type for onefs_version field")
	}
	rel, ok := version["version"].(string)
	if !ok {
		return fmt.Errorf("unexpected type for version field")
	}
	c.OSVersion = rel
	name, ok := v["name"].(string)
	if !ok {
		return fmt.Errorf("unexpected type for name field")
	}
	if c.PreserveCase {
		c.ClusterName = name
	} else {
		c.ClusterName = strings.ToLower(name)
	}
	return nil
}

// Connect establishes the session and pulls the cluster's real name.
func (c *OneFSClient) Connect(ctx context.Context) error {
	if err := c.initialize(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if c.AuthType == AuthTypeSession {
		if err := c.Authenticate(ctx); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}
	if err := c.fetchClusterConfig(ctx); err != nil {
		return fmt.Errorf("get cluster config: %w", err)
	}
	return nil
}

// apiStatResult mirrors one entry of the OneFS current-statistics JSON
// return.
type apiStatResult struct {
	Devid       int    `json:"devid"`
	ErrorString string `json:"error"`
	ErrorCode   int    `json:"error_code"`
	Key         string `json:"key"`
	UnixTime    int64  `json:"time"`
	Value       any    `json:"value"`
}

func (r apiStatResult) toRawStat() stats.RawStat {
	var err error
	if r.ErrorString != "" {
		err = fmt.Errorf("%s (code %d)", r.ErrorString, r.ErrorCode)
	}
	return stats.RawStat{Key: r.Key, Devid: r.Devid, Time: r.UnixTime, Value: r.Value, Err: err}
}

// QueryStats issues the v8.0+ batch statistics query, splitting the
// comma-joined keys string into multiple requests whenever it would exceed
// MaxKeyStringLen.
func (c *OneFSClient) QueryStats(ctx context.Context, keys []string, opts QueryOpts) ([]stats.RawStat, error) {
	var out []stats.RawStat
	batch := make([]string, 0, len(keys))
	batchLen := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		r, err := c.queryStatsBatch(ctx, batch, opts)
		if err != nil {
			return err
		}
		out = append(out, r...)
		batch = batch[:0]
		batchLen = 0
		return nil
	}
	for _, k := range keys {
		add := len(k)
		if batchLen > 0 {
			add++ // comma separator
		}
		if batchLen > 0 && batchLen+add > MaxKeyStringLen {
			if err := flush(); err != nil {
				return nil, err
			}
			add = len(k)
		}
		batch = append(batch, k)
		batchLen += add
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OneFSClient) queryStatsBatch(ctx context.Context, keys []string, opts QueryOpts) ([]stats.RawStat, error) {
	path := buildStatsPath(keys, opts)
	resp, err := c.restGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetching stats: %w", err)
	}
	return parseStatsResponse(resp)
}

// QueryStat issues the v7.2 single-key statistics query.
func (c *OneFSClient) QueryStat(ctx context.Context, key string, opts QueryOpts) ([]stats.RawStat, error) {
	return c.queryStatsBatch(ctx, []string{key}, opts)
}

func buildStatsPath(keys []string, opts QueryOpts) string {
	devid := opts.Devid
	if devid == "" {
		devid = "all"
	}
	q := url.Values{}
	q.Set("key", strings.Join(keys, ","))
	q.Set("devid", devid)
	q.Set("degraded", strconv.FormatBool(opts.Degraded))
	q.Set("show_nodes", "true")
	if opts.ExpandClientID {
		q.Set("expand-clientid", "true")
	}
	if opts.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(opts.Timeout))
	}
	return statsPath + "?" + q.Encode()
}

func parseStatsResponse(resp []byte) ([]stats.RawStat, error) {
	var sa struct {
		Stats []apiStatResult `json:"stats"`
	}
	if err := json.Unmarshal(resp, &sa); err == nil && sa.Stats != nil {
		out := make([]stats.RawStat, len(sa.Stats))
		for i, r := range sa.Stats {
			out[i] = r.toRawStat()
		}
		return out, nil
	}
	var apiErrs []apiError
	if err := json.Unmarshal(resp, &apiErrs); err != nil {
		return nil, fmt.Errorf("unable to parse current-stats response: %s", resp)
	}
	if len(apiErrs) == 0 {
		return nil, fmt.Errorf("stats endpoint returned unparseable response: %s", resp)
	}
	return nil, fmt.Errorf("stats endpoint returned error code %s, message %s", apiErrs[0].Code, apiErrs[0].Message)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiKeyDetail mirrors one entry of the statistics keys metadata endpoint.
type apiKeyDetail struct {
	Key              string  `json:"key"`
	DefaultCacheTime *int    `json:"default_cache_time"`
	Policies         []struct {
		Interval   float64 `json:"interval"`
		Persistent bool    `json:"persistent"`
	} `json:"policies"`
}

func (d apiKeyDetail) toMetadata() stats.Metadata {
	m := stats.Metadata{Key: d.Key}
	if d.DefaultCacheTime != nil {
		f := float64(*d.DefaultCacheTime)
		m.DefaultCacheTime = &f
	}
	for _, p := range d.Policies {
		if p.Persistent {
			continue // historical policy, not the current refresh policy
		}
		m.Policies = append(m.Policies, stats.Policy{Interval: p.Interval})
	}
	return m
}

// GetStatisticsKey fetches metadata for a single stat key.
func (c *OneFSClient) GetStatisticsKey(ctx context.Context, id string) (stats.Metadata, error) {
	resp, err := c.restGet(ctx, statInfoPath+id)
	if err != nil {
		return stats.Metadata{}, err
	}
	var v map[string]any
	if err := json.Unmarshal(resp, &v); err != nil {
		return stats.Metadata{}, err
	}
	if ea, ok := v["errors"]; ok {
		return stats.Metadata{}, apiErrorsToErr(ea)
	}
	keysAny, ok := v["keys"]
	if !ok {
		return stats.Metadata{}, fmt.Errorf("unexpected response for stat %q: missing keys", id)
	}
	raw, err := json.Marshal(keysAny)
	if err != nil {
		return stats.Metadata{}, err
	}
	var details []apiKeyDetail
	if err := json.Unmarshal(raw, &details); err != nil {
		return stats.Metadata{}, err
	}
	if len(details) == 0 {
		return stats.Metadata{}, fmt.Errorf("no metadata returned for stat %q", id)
	}
	return details[0].toMetadata(), nil
}

// GetStatisticsKeys pages through the full metadata key dump (all keys),
// used by the resolver when more than 200 stat names are requested. It
// decodes the same default_cache_time/policies fields GetStatisticsKey
// does, so a caller filtering the dump to a wanted subset never has to
// re-fetch each match one key at a time.
func (c *OneFSClient) GetStatisticsKeys(ctx context.Context, resume string) ([]stats.Metadata, string, error) {
	path := statInfoPath
	if resume != "" {
		path += "?resume=" + url.QueryEscape(resume)
	}
	resp, err := c.restGet(ctx, path)
	if err != nil {
		return nil, "", err
	}
	var v struct {
		Keys   []apiKeyDetail `json:"keys"`
		Resume *string        `json:"resume"`
	}
	if err := json.Unmarshal(resp, &v); err != nil {
		return nil, "", err
	}
	metas := make([]stats.Metadata, len(v.Keys))
	for i, d := range v.Keys {
		metas[i] = d.toMetadata()
	}
	next := ""
	if v.Resume != nil {
		next = *v.Resume
	}
	return metas, next, nil
}

func apiErrorsToErr(ea any) error {
	eaSlice, ok := ea.([]any)
	if !ok {
		return fmt.Errorf("unexpected type for errors field")
	}
	var sb strings.Builder
	for _, e := range eaSlice {
		eMap, ok := e.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "code: %v, message: %v; ", eMap["code"], eMap["message"])
	}
	return fmt.Errorf("%s", sb.String())
}

// restGet performs a GET against the cluster API, re-authenticating on a
// 401 or when the session timer has expired, and retrying connection
// failures with exponential backoff.
func (c *OneFSClient) restGet(ctx context.Context, endpoint string) ([]byte, error) {
	if c.AuthType == AuthTypeSession && !c.reauthTime.IsZero() && time.Now().After(c.reauthTime) {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, err
	}
	req, err := c.newGetRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	retrySecs := 1
	for i := 1; i <= c.MaxRetries; i++ {
		resp, err = c.client.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				if c.AuthType == AuthTypeBasic {
					return nil, fmt.Errorf("basic authentication for cluster %s failed", c)
				}
				if err = c.Authenticate(ctx); err != nil {
					return nil, err
				}
				req, err = c.newGetRequest(ctx, u.String())
				if err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("cluster %s returned unexpected HTTP response: %s", c, resp.Status)
		}
		if !isConnectionRefused(err) {
			return nil, err
		}
		c.log.Error("connection refused, retrying", slog.String("cluster", c.String()), slog.Int("retry_secs", retrySecs))
		if !sleepCtx(ctx, time.Duration(retrySecs)*time.Second) {
			return nil, ctx.Err()
		}
		retrySecs = clampBackoff(retrySecs * 2)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cluster %s returned unexpected HTTP response: %s", c, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *OneFSClient) newGetRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.AuthType == AuthTypeBasic {
		req.SetBasicAuth(c.Username, c.Password)
	}
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
		req.Header.Set("Referer", c.baseURL)
	}
	return req, nil
}

func isConnectionRefused(err error) bool {
	var uerr *url.Error
	if ok := asURLError(err, &uerr); !ok {
		return false
	}
	var nerr *net.OpError
	if ok := asOpError(uerr.Err, &nerr); !ok {
		return false
	}
	oerr, ok := nerr.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	return oerr.Err == syscall.ECONNREFUSED
}

func asURLError(err error, target **url.Error) bool {
	if e, ok := err.(*url.Error); ok {
		*target = e
		return true
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	if e, ok := err.(*net.OpError); ok {
		*target = e
		return true
	}
	return false
}

func clampBackoff(secs int) int {
	if secs > maxTimeoutSecs {
		return maxTimeoutSecs
	}
	return secs
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
