package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSelectRelevant(t *testing.T) {
	fake := &fakeLLM{responses: []string{`{"indices":[1,0]}`}}
	f := NewRelevanceFilter(fake, "filter-model")

	got, err := f.SelectRelevant(context.Background(), "ACL injury", []string{"doc a", "doc b", "doc c"})
	if err != nil {
		t.Fatalf("SelectRelevant error: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("indices = %v, want [1 0] in model order", got)
	}

	req := fake.requests[0]
	if req.Model != "filter-model" {
		t.Errorf("model = %q, want filter-model", req.Model)
	}
	if !req.JSONObject {
		t.Error("filter must request a json object")
	}
	if req.Temperature > 0.2 {
		t.Errorf("temperature = %v, want low", req.Temperature)
	}
	for _, want := range []string{"[0] doc a", "[1] doc b", "[2] doc c", "ACL injury"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
		}
	}
}

func TestSelectRelevantPropagatesFailure(t *testing.T) {
	genErr := errors.New("model down")
	f := NewRelevanceFilter(&fakeLLM{err: genErr}, "filter-model")

	_, err := f.SelectRelevant(context.Background(), "q", []string{"doc"})
	if !errors.Is(err, genErr) {
		t.Errorf("error = %v, want wrapped generation error", err)
	}
}

func TestParseRelevanceIndices(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []int
		wantErr bool
	}{
		{"valid", `{"indices":[0,2,1]}`, []int{0, 2, 1}, false},
		{"empty", `{"indices":[]}`, []int{}, false},
		{"out of range kept for caller", `{"indices":[99]}`, []int{99}, false},
		{"unknown field", `{"indices":[0],"scores":[1.0]}`, nil, true},
		{"prose", `the relevant ones are 0 and 2`, nil, true},
		{"trailing value", `{"indices":[0]}[1]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRelevanceIndices(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("indices = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("indices = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
