package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/tests"
)

type fakeReply struct {
	text string
	err  error
}

type fakeCompleter struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   int
}

func (fc *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	idx := fc.calls
	if idx >= len(fc.replies) {
		idx = len(fc.replies) - 1
	}
	fc.calls++
	return fc.replies[idx].text, fc.replies[idx].err
}

func newTestLogger() core.Logger {
	return testutil.NewLogger(core.NewTestConfig(""))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence", in: "  print(1)\n", want: "print(1)"},
		{name: "python fence", in: "```python\nprint(1)\n```", want: "print(1)"},
		{name: "bare fence", in: "```\nprint(2)\n```\ntrailing", want: "print(2)"},
		{name: "unclosed fence", in: "```python\nprint(3)", want: "print(3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		wantScore    float64
		wantFeedback string
		wantErr      error
	}{
		{name: "plain json", reply: `{"score": 85, "feedback": " Nice "}`, wantScore: 85, wantFeedback: "Nice"},
		{
			name:         "json wrapped in prose",
			reply:        "Here is the grade:\n```json\n{\"score\": 42.5, \"feedback\": \"Missing input validation\"}\n```",
			wantScore:    42.5,
			wantFeedback: "Missing input validation",
		},
		{name: "string score", reply: `{"score": "70", "feedback": "ok"}`, wantScore: 70, wantFeedback: "ok"},
		{name: "no json", reply: "I cannot grade this", wantErr: errUnparsable},
		{name: "missing feedback", reply: `{"score": 10}`, wantErr: errMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, feedback, err := parseGrade(tt.reply)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantFeedback, feedback)
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-5, 100))
	assert.Equal(t, 100.0, clampScore(120, 100))
	assert.Equal(t, 55.5, clampScore(55.5, 100))
}

func TestOfflineSolution(t *testing.T) {
	assert.Contains(t, offlineSolution("Compute the Factorial of n"), "def factorial(n):")
	assert.Contains(t, offlineSolution("print the fibonacci sequence"), "def fibonacci(n):")
	assert.Contains(t, offlineSolution("Compute the shipping price"), "calculate_shipping_cost")
	assert.Contains(t, offlineSolution("Total COST of items"), "calculate_shipping_cost")

	generic := offlineSolution("Write a program that reverses a string typed by the user and prints it")
	assert.Contains(t, generic, "Write a program that reverses a string typed by th...")
	assert.Contains(t, generic, `print("Hello, World!")`)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("", ""))
	assert.Equal(t, 1.0, similarity("print(1)", "print(1)"))
	assert.Equal(t, 0.0, similarity("abc", "xyz"))
	// same characters in another order only share one matching block
	assert.Equal(t, 0.5, similarity("ab", "ba"))
	assert.InDelta(t, 0.75, similarity("abcd", "abdc"), 1e-9)
}

func TestOfflineGrade(t *testing.T) {
	solution := offlineSolution("factorial")

	// identical code: base 60 + 30 - 10
	res := offlineGrade(core.GradeRequest{Code: solution, Solution: solution, MaxPoints: 100})
	assert.Equal(t, 80.0, res.Score)
	assert.Equal(t, core.GradeStatusGraded, res.Status)
	assert.Equal(t, offlineFeedback[0].text, res.Feedback)

	// clamped to max points
	res = offlineGrade(core.GradeRequest{Code: solution, Solution: solution, MaxPoints: 50})
	assert.Equal(t, 50.0, res.Score)

	// empty submission: base 20 - 10
	res = offlineGrade(core.GradeRequest{Code: "", Solution: solution, MaxPoints: 100})
	assert.Equal(t, 10.0, res.Score)
	assert.Equal(t, offlineFeedback[3].text, res.Feedback)

	// deterministic
	code := "print('hello')"
	first := offlineGrade(core.GradeRequest{Code: code, Solution: solution, MaxPoints: 100})
	second := offlineGrade(core.GradeRequest{Code: code, Solution: solution, MaxPoints: 100})
	assert.Equal(t, first, second)
	assert.True(t, first.Score >= 30 && first.Score <= 60)
}

func TestService_GradeSubmission(t *testing.T) {
	req := core.GradeRequest{StudentName: "alice", Code: "print(1)", Solution: "print(1)", MaxPoints: 100}
	errAPI := errors.New("quota exceeded")

	tests := []struct {
		name      string
		replies   []fakeReply
		want      core.GradeResult
		wantCalls int
	}{
		{
			name:      "first attempt succeeds",
			replies:   []fakeReply{{text: `{"score": 90, "feedback": "Great"}`}},
			want:      core.GradeResult{Score: 90, Feedback: "Great", Status: core.GradeStatusGraded},
			wantCalls: 1,
		},
		{
			name:      "score is clamped",
			replies:   []fakeReply{{text: `{"score": 130, "feedback": "Too generous"}`}},
			want:      core.GradeResult{Score: 100, Feedback: "Too generous", Status: core.GradeStatusGraded},
			wantCalls: 1,
		},
		{
			name: "retries after api error",
			replies: []fakeReply{
				{err: errAPI},
				{text: `{"score": 75, "feedback": "Fine"}`},
			},
			want:      core.GradeResult{Score: 75, Feedback: "Fine", Status: core.GradeStatusGraded},
			wantCalls: 2,
		},
		{
			name:      "unparsable on last attempt",
			replies:   []fakeReply{{text: "no idea"}},
			want:      core.GradeResult{Score: 0, Feedback: parseErrorFeedback, Status: core.GradeStatusError},
			wantCalls: 3,
		},
		{
			name:      "api error on last attempt falls back offline",
			replies:   []fakeReply{{err: errAPI}},
			want:      offlineGrade(req),
			wantCalls: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{replies: tt.replies}
			svc := NewServiceWithCompleter(completer, 3, newTestLogger())

			got, err := svc.GradeSubmission(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, completer.calls)
		})
	}
}

func TestService_GenerateSolution(t *testing.T) {
	req := core.SolutionRequest{Question: "factorial of n", MaxPoints: 100}

	completer := &fakeCompleter{replies: []fakeReply{{text: "```python\nprint('solution')\n```"}}}
	svc := NewServiceWithCompleter(completer, 3, newTestLogger())
	got, err := svc.GenerateSolution(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "print('solution')", got)

	completer = &fakeCompleter{replies: []fakeReply{{err: errors.New("boom")}}}
	svc = NewServiceWithCompleter(completer, 3, newTestLogger())
	got, err = svc.GenerateSolution(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, offlineSolution(req.Question), got)

	svc = NewServiceWithCompleter(nil, 3, newTestLogger())
	assert.True(t, svc.Offline())
	got, err = svc.GenerateSolution(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, offlineSolution(req.Question), got)
}

func TestNewService_offline(t *testing.T) {
	conf := core.NewTestConfig("")
	conf.AI.ForceOffline = false
	assert.True(t, NewService(conf, newTestLogger()).Offline(), "no api key")

	conf.AI.GeminiAPIKey = "key"
	assert.False(t, NewService(conf, newTestLogger()).Offline())

	conf.AI.ForceOffline = true
	assert.True(t, NewService(conf, newTestLogger()).Offline())
}

func TestGeminiClient_Complete(t *testing.T) {
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(gotBody.Contents[0].Parts[0].Text, "fail"):
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
		case strings.Contains(gotBody.Contents[0].Parts[0].Text, "empty"):
			_, _ = w.Write([]byte(`{"candidates": []}`))
		default:
			_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": " hello "}]}}]}`))
		}
	}))
	defer srv.Close()

	conf := core.NewTestConfig("")
	conf.AI.BaseURL = srv.URL
	conf.AI.Model = "gemini-test"
	conf.AI.GeminiAPIKey = "secret-key"
	conf.AI.Timeout = 5 * time.Second
	client := NewGeminiClient(conf)
	defer func() { _ = client.Close() }()

	got, err := client.Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "say hello", gotBody.Contents[0].Parts[0].Text)

	_, err = client.Complete(context.Background(), "please fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = client.Complete(context.Background(), "empty")
	assert.Equal(t, errEmptyReply, err)
}
