// Package evalclient talks to an external known-item-search evaluation
// server (login, submit, logout), grounded on the original
// evaluation-server/client-dres.cpp and on the teacher's own blocking
// net/http HTTP client idiom in rankers.SecondaryTextRanker. Every
// call is synchronous; transient network failures are logged and
// folded into a false/SubmitUnknown return rather than left to panic,
// mirroring the rescore pipeline's "swallow as warning" policy.
package evalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/logging"
	"github.com/siret/somhunter-go/internal/types"
)

// SubmitResult is the outcome of one submit_to_eval_server call.
type SubmitResult int

const (
	SubmitUnknown SubmitResult = iota
	SubmitCorrect
	SubmitIncorrect
	SubmitNotAuthorized
)

func (r SubmitResult) String() string {
	switch r {
	case SubmitCorrect:
		return "correct"
	case SubmitIncorrect:
		return "incorrect"
	case SubmitNotAuthorized:
		return "not_authorized"
	default:
		return "unknown"
	}
}

// Client is a session-scoped handle to the evaluation server: at most
// one login is active at a time, mirroring ClientDres's single
// _username/session-token field. Not safe for concurrent use from
// multiple goroutines without external locking, same contract
// UserContext's own single-mutex-per-token callers already provide.
type Client struct {
	HTTP      *http.Client
	Endpoint  string // base URL, e.g. https://eval.example.org
	Username  string
	Password  string
	DatasetID string
	Log       logging.Logger

	sessionID string
}

// New builds a Client with a sane default timeout, grounded on the
// teacher's rankers.SecondaryTextRanker construction pattern.
func New(endpoint, username, password, datasetID string, log logging.Logger) *Client {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Client{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Endpoint:  endpoint,
		Username:  username,
		Password:  password,
		DatasetID: datasetID,
		Log:       log,
	}
}

// LoggedIn reports whether Login succeeded and Logout has not since
// been called, per spec.md §10's submitter login state machine.
func (c *Client) LoggedIn() bool { return c.sessionID != "" }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"sessionId"`
}

// Login authenticates against the evaluation server and stores the
// returned session token. Transient failures are logged and reported
// via the bool return, exactly as ClientDres::login swallows a
// failed HTTP round-trip into a false return rather than an exception.
func (c *Client) Login(ctx context.Context) bool {
	body, err := json.Marshal(loginRequest{Username: c.Username, Password: c.Password})
	if err != nil {
		c.Log.Warn("evalclient: failed to encode login request", "err", err)
		return false
	}

	var res loginResponse
	if err := c.post(ctx, "/login", body, &res); err != nil {
		c.Log.Warn("evalclient: login request failed", "err", err)
		return false
	}
	if res.SessionID == "" {
		c.Log.Warn("evalclient: login response carried no session id")
		return false
	}
	c.sessionID = res.SessionID
	c.Log.Info("evalclient: login succeeded")
	return true
}

// Logout invalidates the current session on the server and clears the
// stored token regardless of whether the remote call succeeds, so a
// subsequent Submit reliably returns NotAuthorized.
func (c *Client) Logout(ctx context.Context) bool {
	session := c.sessionID
	c.sessionID = ""
	if session == "" {
		return true
	}
	if err := c.post(ctx, fmt.Sprintf("/logout?session=%s", session), nil, nil); err != nil {
		c.Log.Warn("evalclient: logout request failed", "err", err)
		return false
	}
	return true
}

type submitResponse struct {
	Submission string `json:"submission"`
}

// Submit reports frame as the current answer for videoID/frameNum,
// per spec.md §10's submitter state machine: without a prior Login
// this returns SubmitNotAuthorized without making any network call,
// mirroring ClientDres::submit's is_logged_in() guard.
func (c *Client) Submit(ctx context.Context, id types.FrameID, videoID int, frameNum int) (SubmitResult, error) {
	if !c.LoggedIn() {
		return SubmitNotAuthorized, errs.Wrap("evalclient.submit", errs.ErrNotAuthorized)
	}

	path := fmt.Sprintf("/submit?session=%s&item=%05d&frame=%d", c.sessionID, videoID+1, frameNum)
	var res submitResponse
	if err := c.get(ctx, path, &res); err != nil {
		c.Log.Warn("evalclient: submit request failed", "err", err, "frame_id", id)
		return SubmitUnknown, nil
	}
	if res.Submission == "CORRECT" {
		return SubmitCorrect, nil
	}
	return SubmitIncorrect, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("evaluation server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
