package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnreachable = errors.New("prediction: service unreachable")
	ErrBadResponse = errors.New("prediction: bad response")
	ErrNotFound    = errors.New("prediction: address not found")
)

const DefaultTimeout = 10 * time.Second

// Prediction is a successful answer of the scoring service.
// Confidence is nil when the model reported no probability.
type Prediction struct {
	IsFraud    bool     `json:"is_fraud"`
	Confidence *float64 `json:"confidence"`
}

type Client struct {
	base string
	hc   *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

type predictReq struct {
	Address string `json:"address"`
}

// predictResp carries both variants of the service answer.
type predictResp struct {
	Prediction  *int     `json:"prediction"`
	Probability *float64 `json:"probability"`
	Error       string   `json:"error"`
}

// Predict scores one lower-case address.
func (c *Client) Predict(ctx context.Context, lower string) (Prediction, error) {
	body, err := json.Marshal(predictReq{Address: lower})
	if err != nil {
		return Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/predict", bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(ctx, req)
	if err != nil {
		return Prediction{}, err
	}

	var out predictResp
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	// A 404 without the service's error body is a wrong route, not an unknown address.
	case status == http.StatusNotFound && decodeErr == nil && out.Error != "":
		return Prediction{}, fmt.Errorf("%w: %s", ErrNotFound, serviceMessage(out, raw))
	case status < 200 || status > 299:
		return Prediction{}, fmt.Errorf("%w: status=%d msg=%s", ErrBadResponse, status, serviceMessage(out, raw))
	case decodeErr != nil:
		return Prediction{}, fmt.Errorf("%w: decode: %w", ErrBadResponse, decodeErr)
	}
	return out.toPrediction()
}

func (r predictResp) toPrediction() (Prediction, error) {
	if r.Prediction == nil {
		return Prediction{}, fmt.Errorf("%w: missing prediction", ErrBadResponse)
	}
	if *r.Prediction != 0 && *r.Prediction != 1 {
		return Prediction{}, fmt.Errorf("%w: prediction=%d not 0|1", ErrBadResponse, *r.Prediction)
	}
	if p := r.Probability; p != nil && (*p < 0 || *p > 1 || math.IsNaN(*p)) {
		return Prediction{}, fmt.Errorf("%w: probability=%v out of [0,1]", ErrBadResponse, *p)
	}
	return Prediction{IsFraud: *r.Prediction == 1, Confidence: r.Probability}, nil
}

type healthResp struct {
	Status string `json:"status"`
}

// Health checks GET /health reports {"status":"healthy"}.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	raw, status, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: health status=%d", ErrBadResponse, status)
	}
	var h healthResp
	if err := json.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("%w: health decode: %w", ErrBadResponse, err)
	}
	if h.Status != "healthy" {
		return fmt.Errorf("%w: health status=%q", ErrBadResponse, h.Status)
	}
	return nil
}

// maxBody bounds what we read from an untrusted service.
const maxBody = 1 << 20

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: read body: %w", ErrUnreachable, err)
	}
	return raw, resp.StatusCode, nil
}

func serviceMessage(r predictResp, raw []byte) string {
	if r.Error != "" {
		return r.Error
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
