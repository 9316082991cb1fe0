// Package validators holds the outbound client interfaces C7 calls per
// chunk, plus a real HTTP implementation (the bearer token is passed per
// call and sent as an Authorization header) and in-memory fakes for
// tests. Grounded on the LegacyClient/oauth2 wiring in
// chromeperf/pinpoint/server/server.go (jwt.Config-backed bearer auth,
// errors.Annotate around non-2xx responses).
package validators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.chromium.org/luci/common/errors"
)

// TestOutcome is one named SP 800-22 test's result (spec §6).
type TestOutcome struct {
	Name    string   `json:"name"`
	Passed  bool     `json:"passed"`
	PValue  *float64 `json:"p_value,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// Suite22Result is RunTestSuite22's response shape.
type Suite22Result struct {
	Results         []TestOutcome `json:"results"`
	TestsRun        int           `json:"tests_run"`
	OverallPassRate float64       `json:"overall_pass_rate"`
	NISTCompliant   bool          `json:"nist_compliant"`
}

// EstimatorOutcome is one named SP 800-90B estimator's result (spec §6).
type EstimatorOutcome struct {
	Name            string   `json:"name"`
	EntropyEstimate *float64 `json:"entropy_estimate,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`
	Details         string   `json:"details,omitempty"`
}

// Assessment90BResult is AssessEntropy90B's response shape.
type Assessment90BResult struct {
	MinEntropy        float64            `json:"min_entropy"`
	Passed            bool               `json:"passed"`
	AssessmentSummary string             `json:"assessment_summary"`
	IIDResults        []EstimatorOutcome `json:"iid_results"`
	NonIIDResults     []EstimatorOutcome `json:"non_iid_results"`
}

// Suite22Client is the outbound SP 800-22 validator (spec §6).
type Suite22Client interface {
	RunTestSuite22(ctx context.Context, bearer string, bits []byte) (Suite22Result, error)
}

// Assessor90BClient is the outbound SP 800-90B validator (spec §6).
type Assessor90BClient interface {
	AssessEntropy90B(ctx context.Context, bearer string, data []byte, bitsPerSymbol int, iid, nonIID bool, verbosity int) (Assessment90BResult, error)
}

// DefaultValidatorTimeout is the default outbound RPC timeout budget
// (spec §5: "default 10 minutes for validators").
const DefaultValidatorTimeout = 10 * time.Minute

// HTTPSuite22Client calls a remote SP 800-22 service over HTTP, Bearer
// authenticated (spec §4.6 "Outbound auth").
type HTTPSuite22Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPSuite22Client builds a client whose HTTP transport enforces
// DefaultValidatorTimeout. No oauth2.Transport is installed: the bearer
// value changes per job, so RunTestSuite22 takes it as an argument and
// sets the Authorization header itself.
func NewHTTPSuite22Client(baseURL string) *HTTPSuite22Client {
	return &HTTPSuite22Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: DefaultValidatorTimeout}}
}

func (c *HTTPSuite22Client) RunTestSuite22(ctx context.Context, bearer string, bits []byte) (Suite22Result, error) {
	var out Suite22Result
	body, err := json.Marshal(struct {
		Bits []byte `json:"bits"`
	}{Bits: bits})
	if err != nil {
		return out, errors.Annotate(err, "marshalling suite22 request").Err()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/suite22:run", bytes.NewReader(body))
	if err != nil {
		return out, errors.Annotate(err, "building suite22 request").Err()
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return out, errors.Annotate(err, "calling suite22 validator").Tag(tempUnavailable).Err()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return out, errors.Reason("suite22 validator returned %d: %s", resp.StatusCode, b).Err()
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Annotate(err, "decoding suite22 response").Err()
	}
	return out, nil
}

// HTTPAssessor90BClient calls a remote SP 800-90B service over HTTP.
type HTTPAssessor90BClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPAssessor90BClient mirrors NewHTTPSuite22Client's construction.
func NewHTTPAssessor90BClient(baseURL string) *HTTPAssessor90BClient {
	return &HTTPAssessor90BClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: DefaultValidatorTimeout}}
}

func (c *HTTPAssessor90BClient) AssessEntropy90B(ctx context.Context, bearer string, data []byte, bitsPerSymbol int, iid, nonIID bool, verbosity int) (Assessment90BResult, error) {
	var out Assessment90BResult
	body, err := json.Marshal(struct {
		Data          []byte `json:"data"`
		BitsPerSymbol int    `json:"bits_per_symbol"`
		IID           bool   `json:"iid"`
		NonIID        bool   `json:"non_iid"`
		Verbosity     int    `json:"verbosity"`
	}{Data: data, BitsPerSymbol: bitsPerSymbol, IID: iid, NonIID: nonIID, Verbosity: verbosity})
	if err != nil {
		return out, errors.Annotate(err, "marshalling 90b request").Err()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/assessment90b:run", bytes.NewReader(body))
	if err != nil {
		return out, errors.Annotate(err, "building 90b request").Err()
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return out, errors.Annotate(err, "calling 90b validator").Tag(tempUnavailable).Err()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return out, errors.Reason("90b validator returned %d: %s", resp.StatusCode, b).Err()
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Annotate(err, "decoding 90b response").Err()
	}
	return out, nil
}

var tempUnavailable = errors.BoolTag{Key: errors.NewTagKey("outbound validator temporarily unavailable")}

// NormalizeDetails validates that a JSON payload is well-formed,
// wrapping non-JSON payloads per spec §9 "Dynamic JSON details".
func NormalizeDetails(raw string) string {
	if raw == "" {
		return "{}"
	}
	var probe json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		return raw
	}
	wrapped, err := json.Marshal(map[string]string{"fallback_field": raw})
	if err != nil {
		return fmt.Sprintf(`{"fallback_field": %q}`, raw)
	}
	return string(wrapped)
}
