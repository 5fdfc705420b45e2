package mockpredict

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chenzhangda16/web3-fraud-oracle/pkg/rng"
)

func TestLoadCSV(t *testing.T) {
	s := NewServer()
	in := "address,prediction,probability\n" +
		"0x00009277775AC7D0D59eaAd8FeE3d10AC6C805E8,1,0.91\n" +
		"0x0002b44ddb1476db43c868bd494422ee4c136fed,0,\n"
	if err := s.LoadCSV(strings.NewReader(in)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len=%d", s.Len())
	}
	e := s.table["0x00009277775ac7d0d59eaad8fee3d10ac6c805e8"]
	if e.Prediction != 1 || e.Probability == nil || *e.Probability != 0.91 {
		t.Fatalf("entry=%+v", e)
	}
	if s.table["0x0002b44ddb1476db43c868bd494422ee4c136fed"].Probability != nil {
		t.Fatalf("empty probability must stay nil")
	}
}

func TestLoadCSVRejectsBadPrediction(t *testing.T) {
	s := NewServer()
	if err := s.LoadCSV(strings.NewReader("0xabc,yes,0.1\n")); err == nil {
		t.Fatalf("want error")
	}
}

func TestSyntheticScores(t *testing.T) {
	s := NewServer()
	s.SetSynthetic(rng.New(rng.Deterministic, 7), 0.5)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	predict := func(addr string) map[string]any {
		resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader(`{"address":"`+addr+`"}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d", resp.StatusCode)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	const addr = "0x0002bda54cb772d040f779e88eb453cac0daa244"
	a, b := predict(addr), predict(addr[:2]+strings.ToUpper(addr[2:]))
	if a["prediction"] != b["prediction"] || a["probability"] != b["probability"] {
		t.Fatalf("synthetic score not stable: %v vs %v", a, b)
	}
	p := a["probability"].(float64)
	fraud := a["prediction"] == float64(1)
	if (fraud && (p < 0.5 || p > 1)) || (!fraud && (p < 0 || p >= 0.5)) {
		t.Fatalf("prediction=%v probability=%v", a["prediction"], p)
	}
	if s.Len() != 0 {
		t.Fatalf("synthetic scores must not be stored")
	}
}

func TestHandlerContract(t *testing.T) {
	s := NewServer()
	p := 0.85
	s.Set("0x00009277775AC7D0D59eaAd8FeE3d10AC6C805E8", Entry{Prediction: 1, Probability: &p})
	h := s.Handler()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		field  string
		want   any
	}{
		{"health", http.MethodGet, "/health", "", 200, "status", "healthy"},
		{"hit", http.MethodPost, "/predict", `{"address":"0x00009277775ac7d0d59eaad8fee3d10ac6c805e8"}`, 200, "probability", 0.85},
		{"miss", http.MethodPost, "/predict", `{"address":"0x0002b44ddb1476db43c868bd494422ee4c136fed"}`, 404, "error", "Address not found in dataset"},
		{"no address", http.MethodPost, "/predict", `{}`, 400, "error", "Address is required"},
		{"bad json", http.MethodPost, "/predict", `{`, 400, "", nil},
		{"wrong method", http.MethodGet, "/predict", "", 405, "error", "method not allowed"},
		{"unknown route", http.MethodPost, "/v2/predict", `{"address":"0x00009277775ac7d0d59eaad8fee3d10ac6c805e8"}`, 404, "", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(c.method, c.path, strings.NewReader(c.body)))
			if rec.Code != c.code {
				t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
			}
			if c.field == "" {
				return
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body[c.field] != c.want {
				t.Fatalf("%s=%v want %v", c.field, body[c.field], c.want)
			}
		})
	}
	if s.Hits("0x00009277775ac7d0d59eaad8fee3d10ac6c805e8") != 1 {
		t.Fatalf("hits=%d", s.Hits("0x00009277775ac7d0d59eaad8fee3d10ac6c805e8"))
	}
}
