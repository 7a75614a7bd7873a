package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Judge versions recorded on each answer
const (
	judgeVersionExact  = "exact-v1"
	judgeVersionVision = "vision-v1"
)

// JudgeVerdict is the vision collaborator's grading result.
type JudgeVerdict struct {
	Correct    bool    `json:"correct"`
	Confidence float64 `json:"confidence"`
}

// VisionJudge grades handwritten submissions (e.g. an uploaded answer sheet)
// against a problem and its expected answer. Implementations may be remote;
// the caller always has a deterministic fallback.
type VisionJudge interface {
	Judge(ctx context.Context, problem, expected, submitted string) (JudgeVerdict, error)
}

// VisionJudgeClient calls the external vision grading service.
type VisionJudgeClient struct {
	BaseURL      string
	ServiceToken string
	HTTPClient   *http.Client
}

func NewVisionJudgeClient() *VisionJudgeClient {
	return &VisionJudgeClient{
		BaseURL:      os.Getenv("VISION_JUDGE_URL"),
		ServiceToken: os.Getenv("VISION_JUDGE_TOKEN"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *VisionJudgeClient) Judge(ctx context.Context, problem, expected, submitted string) (JudgeVerdict, error) {
	if c.BaseURL == "" {
		return JudgeVerdict{}, fmt.Errorf("vision judge not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"problem":         problem,
		"expected_answer": expected,
		"submitted":       submitted,
	})
	if err != nil {
		return JudgeVerdict{}, fmt.Errorf("failed to encode judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/v1/judge", bytes.NewReader(payload))
	if err != nil {
		return JudgeVerdict{}, fmt.Errorf("failed to create judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.ServiceToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return JudgeVerdict{}, fmt.Errorf("failed to call vision judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JudgeVerdict{}, fmt.Errorf("vision judge returned status %d", resp.StatusCode)
	}

	var verdict JudgeVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return JudgeVerdict{}, fmt.Errorf("failed to decode judge response: %w", err)
	}
	return verdict, nil
}

// AnswerJudge decides correctness of a submitted value against a round's
// canonical answer spec. Handwritten (writing-mode) submissions are deferred
// to the vision collaborator; any collaborator failure falls back to the
// deterministic comparison so a submission never fails outright.
type AnswerJudge struct {
	Vision VisionJudge
}

func NewAnswerJudge(vision VisionJudge) *AnswerJudge {
	return &AnswerJudge{Vision: vision}
}

// JudgeAnswer returns correctness and the judge version that produced it.
func (j *AnswerJudge) JudgeAnswer(ctx context.Context, prompt, answerType, expected, submitted string, handwritten bool) (bool, string) {
	if handwritten && j.Vision != nil {
		verdict, err := j.Vision.Judge(ctx, prompt, expected, submitted)
		if err == nil {
			return verdict.Correct, judgeVersionVision
		}
		log.Printf("⚠️  Vision judge unavailable, falling back to exact compare: %v", err)
	}
	return compareCanonical(answerType, expected, submitted), judgeVersionExact
}

// compareCanonical is the deterministic comparison: numeric equality for
// integer specs, normalized string equality for expressions.
func compareCanonical(answerType, expected, submitted string) bool {
	switch answerType {
	case AnswerInteger:
		want, err1 := strconv.ParseInt(strings.TrimSpace(expected), 10, 64)
		got, err2 := strconv.ParseInt(strings.TrimSpace(submitted), 10, 64)
		if err1 == nil && err2 == nil {
			return want == got
		}
		// unparsable input degrades to string comparison
		return normalizeExpression(expected) == normalizeExpression(submitted)
	default:
		return normalizeExpression(expected) == normalizeExpression(submitted)
	}
}

// normalizeExpression strips whitespace, LaTeX dollar fences, case and an
// optional "+C" integration constant.
func normalizeExpression(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\t", "")
	s = strings.Trim(s, "$")
	s = strings.TrimSuffix(s, "+c")
	s = strings.ReplaceAll(s, "*", "")
	return s
}
