package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

const DefaultTimeout = 10 * time.Second

type ExchangeConfig struct {
	// Endpoint is the coordinator base address. ws:// and wss:// are
	// accepted and rewritten to http:// and https://.
	Endpoint string
	Timeout  time.Duration
	Token    string
}

// Exchange performs the single batched candidate round trip with the
// coordinator.
type Exchange struct {
	endpoint *url.URL
	client   *http.Client
	token    string
}

func NewExchange(cfg ExchangeConfig) (*Exchange, error) {
	endpoint, err := HTTPEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Exchange{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		token: cfg.Token,
	}, nil
}

// HTTPEndpoint parses a coordinator address and maps websocket schemes onto
// their HTTP counterparts.
func HTTPEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "endpoint")
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, errors.Errorf("endpoint: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u, nil
}

func (e *Exchange) SetToken(token string) {
	e.token = token
}

// ShareCandidates sends the local candidates and returns the remote side's.
func (e *Exchange) ShareCandidates(ctx context.Context, roomName, sessionID string, candidates []webrtc.ICECandidateInit) (remote []webrtc.ICECandidateInit, err error) {
	defer err2.Handle(&err)

	if len(sessionID) == 0 {
		return nil, ErrEmptySessionID
	}

	if candidates == nil {
		candidates = []webrtc.ICECandidateInit{}
	}

	body := try.To1(json.Marshal(ShareRequest{
		SessionID:  sessionID,
		Candidates: candidates,
		Token:      e.token,
	}))

	req := try.To1(e.newReq(ctx, http.MethodPost, "matchmake/"+ShareMethod+"/"+url.PathEscape(roomName), bytes.NewReader(body)))
	res := try.To1(e.doReq(req))
	defer res.Body.Close()

	var out ShareResponse
	try.To(json.NewDecoder(res.Body).Decode(&out))

	return out.Candidates, nil
}

// Post issues a matchmaking request and decodes the JSON response into out.
func (e *Exchange) Post(ctx context.Context, path string, in, out any) (err error) {
	defer err2.Handle(&err)

	body := try.To1(json.Marshal(in))
	req := try.To1(e.newReq(ctx, http.MethodPost, path, bytes.NewReader(body)))
	res := try.To1(e.doReq(req))
	defer res.Body.Close()

	try.To(json.NewDecoder(res.Body).Decode(out))

	return nil
}

func (e *Exchange) newReq(ctx context.Context, method, path string, body io.Reader) (req *http.Request, err error) {
	target := e.endpoint.JoinPath(path)

	if req, err = http.NewRequestWithContext(ctx, method, target.String(), body); err != nil {
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if len(e.token) != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	return
}

func (e *Exchange) doReq(req *http.Request) (res *http.Response, err error) {
	res, err = e.client.Do(req)
	if err != nil {
		return
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return
	}

	defer res.Body.Close()

	var text []byte
	if text, err = io.ReadAll(res.Body); err != nil {
		return nil, err
	}

	var body ErrorResponse
	if json.Unmarshal(text, &body) == nil && len(body.Error) != 0 {
		return nil, &ExchangeError{Code: body.Code, Message: body.Error}
	}

	return nil, fmt.Errorf("server err. status: %s. content: %s", res.Status, text)
}
