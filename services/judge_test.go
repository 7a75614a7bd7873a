package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareCanonicalInteger(t *testing.T) {
	assert.True(t, compareCanonical(AnswerInteger, "42", "42"))
	assert.True(t, compareCanonical(AnswerInteger, "42", "  42 "))
	assert.False(t, compareCanonical(AnswerInteger, "42", "41"))
	assert.False(t, compareCanonical(AnswerInteger, "42", ""))

	// unparsable input degrades to normalized string comparison
	assert.True(t, compareCanonical(AnswerInteger, "abc", "ABC"))
}

func TestCompareCanonicalExpression(t *testing.T) {
	assert.True(t, compareCanonical(AnswerExpression, "x^2/2", "X^2 / 2"))
	assert.True(t, compareCanonical(AnswerExpression, "x^2/2", "x^2/2 + C"))
	assert.True(t, compareCanonical(AnswerExpression, "x^2/2", "$x^2/2$"))
	assert.True(t, compareCanonical(AnswerExpression, "2x", "2*x"))
	assert.True(t, compareCanonical(AnswerExpression, "ln|x|", "ln|x|+c"))
	assert.False(t, compareCanonical(AnswerExpression, "x^2/2", "x^3/3"))
}

func TestJudgeAnswerTypedSubmission(t *testing.T) {
	judge := NewAnswerJudge(nil)
	correct, version := judge.JudgeAnswer(context.Background(), "$3 + 4$", AnswerInteger, "7", "7", false)
	assert.True(t, correct)
	assert.Equal(t, judgeVersionExact, version)

	correct, _ = judge.JudgeAnswer(context.Background(), "$3 + 4$", AnswerInteger, "7", "8", false)
	assert.False(t, correct)
}

func TestJudgeAnswerVision(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Service-Token")
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "x^2/2", body["expected_answer"])
		json.NewEncoder(w).Encode(JudgeVerdict{Correct: true, Confidence: 0.93})
	}))
	defer srv.Close()

	vision := &VisionJudgeClient{BaseURL: srv.URL, ServiceToken: "secret", HTTPClient: srv.Client()}
	judge := NewAnswerJudge(vision)

	correct, version := judge.JudgeAnswer(context.Background(), `$\int x \, dx$`, AnswerExpression, "x^2/2", "https://cdn.example/sheet.png", true)
	assert.True(t, correct)
	assert.Equal(t, judgeVersionVision, version)
	assert.Equal(t, "secret", gotToken)
}

func TestJudgeAnswerVisionFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	vision := &VisionJudgeClient{BaseURL: srv.URL, ServiceToken: "secret", HTTPClient: srv.Client()}
	judge := NewAnswerJudge(vision)

	// Collaborator down: the deterministic compare still grades the raw value.
	correct, version := judge.JudgeAnswer(context.Background(), `$\int x \, dx$`, AnswerExpression, "x^2/2", "x^2/2+C", true)
	assert.True(t, correct)
	assert.Equal(t, judgeVersionExact, version)
}

func TestVisionJudgeClientUnconfigured(t *testing.T) {
	client := &VisionJudgeClient{HTTPClient: http.DefaultClient}
	_, err := client.Judge(context.Background(), "p", "e", "s")
	assert.Error(t, err)
}
