package submission

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_ValidatesURL(t *testing.T) {
	cases := []string{"", "ftp://example.com/x", "://bad"}
	for _, u := range cases {
		if _, err := NewClient(u, "s"); err == nil {
			t.Errorf("expected error for url %q", u)
		}
	}
	if _, err := NewClient("https://api.example.com/assessments", "s"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSignPayload(t *testing.T) {
	sig := SignPayload([]byte(`{"a":1}`), "secret")
	if len(sig) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != SignPayload([]byte(`{"a":1}`), "secret") {
		t.Error("expected deterministic signature")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"session_id":"s-1"}`)
	header := "sha256=" + SignPayload(payload, "secret")
	if !VerifySignature(payload, "secret", header) {
		t.Error("expected signature to verify")
	}
	if VerifySignature(payload, "other", header) {
		t.Error("expected wrong secret to fail")
	}
	if VerifySignature([]byte(`{}`), "secret", header) {
		t.Error("expected tampered payload to fail")
	}
}

func TestSubmit_SignsAndPosts(t *testing.T) {
	var (
		gotBody   []byte
		gotSig    string
		gotEvent  string
		gotStamp  string
		gotMethod string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotStamp = r.Header.Get(HeaderTimestamp)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"risk_assessment":{"level":"moderate"},"gamification_rewards":{"points":50,"badges":["first_steps"]},"next_steps":[{"action":"book_visit","description":"remote-1","priority":"medium"}]}`))
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL+"/submit", "secret", WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	d, err := c.Submit(context.Background(), "assessment.completed", map[string]string{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotEvent != "assessment.completed" {
		t.Errorf("expected event header, got %q", gotEvent)
	}
	if !VerifySignature(gotBody, "secret", gotSig) {
		t.Errorf("signature %q does not verify body %s", gotSig, gotBody)
	}
	if _, err := time.Parse(time.RFC3339, gotStamp); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %q", gotStamp)
	}
	if d.Status != "success" || d.StatusCode != http.StatusCreated {
		t.Errorf("unexpected delivery: %+v", d)
	}
	if !strings.Contains(d.ResponseBody, "remote-1") {
		t.Errorf("expected response body recorded, got %q", d.ResponseBody)
	}
	r := d.Response
	if r == nil || !r.Success || r.RiskAssessment == nil || r.RiskAssessment.Level != "moderate" {
		t.Fatalf("unexpected decoded response %+v", r)
	}
	if r.GamificationRewards == nil || r.GamificationRewards.Points != 50 {
		t.Errorf("expected rewards decoded, got %+v", r.GamificationRewards)
	}
	if len(r.NextSteps) != 1 || r.NextSteps[0].Action != "book_visit" {
		t.Errorf("unexpected next steps %+v", r.NextSteps)
	}
}

func TestSubmit_NotAccepted(t *testing.T) {
	bodies := map[string]string{
		"success false": `{"success":false,"risk_assessment":{"level":"high"},"next_steps":[],"message":"duplicate"}`,
		"missing flag":  `{"risk_assessment":{"level":"high"}}`,
		"not json":      `accepted`,
		"empty":         ``,
	}
	for name, body := range bodies {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		c, _ := NewClient(ts.URL, "secret", WithHTTPClient(ts.Client()))
		d, err := c.Submit(context.Background(), "assessment.completed", struct{}{})
		if !errors.Is(err, ErrNotAccepted) {
			t.Errorf("%s: expected ErrNotAccepted, got %v", name, err)
		}
		if d == nil || d.Status != "failed" || d.StatusCode != http.StatusOK {
			t.Errorf("%s: expected failed delivery with 200, got %+v", name, d)
		}
		ts.Close()
	}
}

func TestSubmit_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	c, _ := NewClient(ts.URL, "secret", WithHTTPClient(ts.Client()))
	d, err := c.Submit(context.Background(), "assessment.completed", struct{}{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", se.StatusCode)
	}
	if d == nil || d.Status != "failed" {
		t.Errorf("expected failed delivery, got %+v", d)
	}
}

func TestSubmit_ConnectionFailure(t *testing.T) {
	c, _ := NewClient("http://192.0.2.1:1/submit", "secret", WithTimeout(100*time.Millisecond))
	d, err := c.Submit(context.Background(), "assessment.completed", struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if d == nil || d.StatusCode != 0 {
		t.Errorf("expected status code 0 for connection failure, got %+v", d)
	}
}

func TestSubmit_ResponseBodyTruncated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"` + strings.Repeat("x", 4096) + `"}`))
	}))
	defer ts.Close()

	c, _ := NewClient(ts.URL, "secret", WithHTTPClient(ts.Client()))
	d, err := c.Submit(context.Background(), "assessment.completed", struct{}{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(d.ResponseBody) != 1024 {
		t.Errorf("expected body truncated to 1024, got %d", len(d.ResponseBody))
	}
}
