package tests

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/grader/apps/api/echo"
	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/tests"
)

// uploadSubmissions posts a ZIP of files to the assignment's upload endpoint.
func uploadSubmissions(t *testing.T, env testEnv, asnID int, files map[string]string) echoapi.UploadResponse {
	req, rec := newMultipartRequest(t, "/api/assignments/"+itoa(asnID)+"/upload", nil, "submissions.zip", testutil.MakeZip(t, files))
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.UploadResponse
	unmarshal(t, rec, &resp)
	return resp
}

func TestAssignmentAPI_Create(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateProfessor(t, env.profRepo, "Ada Lovelace", "ada@uni.edu", "CS", "")

	runHTTPTests(t, env.app, []httpTest{
		{
			name:     "empty body",
			method:   http.MethodPost,
			path:     "/api/assignments",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required", "professor_id": "this field is required"}`),
		},
		{
			name:     "unknown professor",
			method:   http.MethodPost,
			path:     "/api/assignments",
			body:     []byte(`{"title": "HW 1", "professor_id": 999}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"professor_id": "professor not found"}`),
		},
		{
			name:     "bad due date",
			method:   http.MethodPost,
			path:     "/api/assignments",
			body:     []byte(`{"title": "HW 1", "professor_id": ` + itoa(prof.ID) + `, "due_date": "next friday"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"due_date": "invalid date, expected YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"}`),
		},
	})

	t.Run("created", func(t *testing.T) {
		body := `{"title": " HW 1 ", "description": "Compute a factorial", "due_date": "2025-03-01", "professor_id": ` + itoa(prof.ID) + `}`
		req, rec := newRequest(http.MethodPost, "/api/assignments", []byte(body))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var asn assignment.Assignment
		unmarshal(t, rec, &asn)
		assert.NotZero(t, asn.ID)
		assert.Equal(t, "HW 1", asn.Title)
		assert.Equal(t, "Compute a factorial", asn.Description)
		assert.Equal(t, assignment.DefaultMaxPoints, asn.MaxPoints)
		assert.Equal(t, prof.ID, asn.ProfessorID)
		assert.Equal(t, assignment.SolutionNone, asn.SolutionStatus)
		require.NotNil(t, asn.DueDate)
		assert.True(t, asn.DueDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	})
}

func TestAssignmentAPI_CreateWithQuestionFile(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateProfessor(t, env.profRepo, "Ada Lovelace", "ada@uni.edu", "CS", "")
	fields := map[string]string{"title": "HW 2", "professor_id": itoa(prof.ID), "max_points": "20"}

	t.Run("no file", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/upload-question-file", fields, "", nil)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"file": "no file selected"}`),
		}, rec)
	})

	t.Run("missing title", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/upload-question-file", map[string]string{"professor_id": itoa(prof.ID)}, "q.txt", []byte("?"))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required"}`),
		}, rec)
	})

	t.Run("text question", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/upload-question-file", fields, "question.txt", []byte("  Write a fibonacci program.\n"))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var asn assignment.Assignment
		unmarshal(t, rec, &asn)
		assert.Equal(t, "HW 2", asn.Title)
		assert.Equal(t, 20, asn.MaxPoints)
		assert.Equal(t, "Write a fibonacci program.", asn.QuestionText)
		assert.NotEmpty(t, asn.QuestionFilePath)
		assert.FileExists(t, asn.QuestionFilePath)
	})

	t.Run("binary question", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/upload-question-file", fields, "question.pdf", []byte("%PDF-1.4"))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var asn assignment.Assignment
		unmarshal(t, rec, &asn)
		assert.Empty(t, asn.QuestionText)
		assert.NotEmpty(t, asn.QuestionFilePath)
	})
}

func TestAssignmentAPI_UploadLimit(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	conf.Uploads.MaxUploadSize = 2048
	env := setupWithConfig(t, conf)
	prof := testutil.CreateProfessor(t, env.profRepo, "Ada Lovelace", "ada@uni.edu", "CS", "")
	asn := testutil.CreateAssignment(t, env.asnRepo, prof.ID, "Factorial", "Compute a factorial", 100)
	big := bytes.Repeat([]byte("x"), 4096)
	tooLarge := marchallObj(t, httpErr{Error: http.StatusText(http.StatusRequestEntityTooLarge)})

	t.Run("question file", func(t *testing.T) {
		fields := map[string]string{"title": "HW 2", "professor_id": itoa(prof.ID)}
		req, rec := newMultipartRequest(t, "/api/upload-question-file", fields, "question.txt", big)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusRequestEntityTooLarge, wantData: tooLarge}, rec)
	})

	t.Run("submissions", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/assignments/"+itoa(asn.ID)+"/upload", nil, "submissions.zip", big)
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusRequestEntityTooLarge, wantData: tooLarge}, rec)

		saved, err := env.asnRepo.GetAssignment(context.Background(), asn.ID)
		require.NoError(t, err)
		assert.Empty(t, saved.ZipFilePath)
	})

	t.Run("within limit", func(t *testing.T) {
		resp := uploadSubmissions(t, env, asn.ID, map[string]string{"alice.py": "print(1)"})
		assert.NotEmpty(t, resp.ZipPath)
	})
}

func TestAssignmentAPI_QueryAndDetail(t *testing.T) {
	env := setup(t)
	ada := testutil.CreateProfessor(t, env.profRepo, "Ada Lovelace", "ada@uni.edu", "CS", "")
	alan := testutil.CreateProfessor(t, env.profRepo, "Alan Turing", "alan@uni.edu", "CS", "")
	hw1 := testutil.CreateAssignment(t, env.asnRepo, ada.ID, "Factorial", "Compute a factorial", 100)
	hw2 := testutil.CreateAssignment(t, env.asnRepo, ada.ID, "Fibonacci", "Print the sequence", 50)
	hw3 := testutil.CreateAssignment(t, env.asnRepo, alan.ID, "Shipping", "Compute a shipping cost", 10)

	updated := hw2
	updated.Title = "Fibonacci II"
	updated.MaxPoints = 40

	runHTTPTests(t, env.app, []httpTest{
		{
			name:     "all",
			path:     "/api/assignments",
			wantCode: http.StatusOK,
			wantData: marchallList(t, hw1, hw2, hw3),
		},
		{
			name:     "by professor",
			path:     "/api/assignments?professor_id=" + itoa(alan.ID),
			wantCode: http.StatusOK,
			wantData: marchallList(t, hw3),
		},
		{
			name:     "search",
			path:     "/api/assignments?search=compute&ordering=-max_points",
			wantCode: http.StatusOK,
			wantData: marchallList(t, hw1, hw3),
		},
		{
			name:     "retrieve",
			path:     "/api/assignments/" + itoa(hw1.ID),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, hw1),
		},
		{
			name:     "not found",
			path:     "/api/assignments/999",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "assignment not found"}),
		},
		{
			name:     "update invalid max points",
			method:   http.MethodPut,
			path:     "/api/assignments/" + itoa(hw2.ID),
			body:     []byte(`{"max_points": -5}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"max_points": "max_points must be greater than 0"}`),
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/api/assignments/" + itoa(hw2.ID),
			body:     []byte(`{"title": "Fibonacci II", "max_points": 40}`),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, updated),
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/api/assignments/" + itoa(hw3.ID),
			wantCode: http.StatusNoContent,
		},
		{
			name:     "deleted",
			path:     "/api/assignments/" + itoa(hw3.ID),
			wantCode: http.StatusNotFound,
		},
	})
}

func TestAssignmentAPI_Upload(t *testing.T) {
	env := setup(t)
	prof := testutil.CreateProfessor(t, env.profRepo, "Ada Lovelace", "ada@uni.edu", "CS", "")
	asn := testutil.CreateAssignment(t, env.asnRepo, prof.ID, "Factorial", "Compute a factorial", 100)
	path := "/api/assignments/" + itoa(asn.ID) + "/upload"

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  []byte
		wantData string
	}{
		{name: "no file", wantData: `{"file": "no file selected"}`},
		{name: "empty file", filename: "subs.zip", wantData: `{"file": "no file selected"}`},
		{name: "not a zip", filename: "subs.rar", content: []byte("Rar!"), wantData: `{"file": "only ZIP files are allowed"}`},
		{name: "corrupted zip", filename: "subs.zip", content: []byte("not a zip at all"), wantData: `{"file": "invalid or corrupted ZIP file"}`},
		{
			name:     "bad max points",
			fields:   map[string]string{"max_points": "ten"},
			filename: "subs.zip",
			content:  testutil.MakeZip(t, map[string]string{"alice.py": "print(1)"}),
			wantData: `{"max_points": "must be a positive integer"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newMultipartRequest(t, path, tt.fields, tt.filename, tt.content)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(tt.wantData)}, rec)
		})
	}

	t.Run("no gradable files", func(t *testing.T) {
		resp := uploadSubmissions(t, env, asn.ID, map[string]string{"readme.txt": "hello"})
		assert.Equal(t, "File uploaded, no submission files found", resp.Message)
		assert.Nil(t, resp.Grading)
		assert.NotEmpty(t, resp.ZipPath)
	})

	t.Run("uploaded and graded", func(t *testing.T) {
		resp := uploadSubmissions(t, env, asn.ID, map[string]string{
			"alice.py":           "def main():\n    print(1)\nmain()",
			"bob.py":             "print(2)",
			"__MACOSX/._bob.py":  "junk",
			"nested/carol.py":    "x = 1",
			"nested/notes.md":    "not graded",
		})
		assert.Equal(t, "File uploaded and graded successfully", resp.Message)
		assert.FileExists(t, resp.ZipPath)
		assert.DirExists(t, resp.ExtractedPath)
		require.NotNil(t, resp.Grading)
		assert.Equal(t, asn.ID, resp.Grading.AssignmentID)
		assert.Equal(t, 3, resp.Grading.TotalSubmissions)
		assert.Equal(t, 3, resp.Grading.SuccessfulGrades)
		assert.Contains(t, resp.Grading.GeneratedSolution, "def factorial(n):")

		var names []string
		for _, r := range resp.Grading.Results {
			names = append(names, r.StudentName)
			assert.Equal(t, float64(100), r.MaxScore)
		}
		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, names)

		_, err := os.Stat(resp.ExtractedPath + "/__MACOSX")
		assert.True(t, os.IsNotExist(err), "__MACOSX entries are skipped")

		saved, err := env.asnRepo.GetAssignment(context.Background(), asn.ID)
		require.NoError(t, err)
		assert.Equal(t, assignment.SolutionGenerated, saved.SolutionStatus)
		assert.True(t, strings.HasSuffix(saved.ZipFilePath, "submissions.zip"))
	})

	t.Run("unknown assignment", func(t *testing.T) {
		req, rec := newMultipartRequest(t, "/api/assignments/999/upload", nil, "subs.zip", []byte("x"))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "assignment not found"})}, rec)
	})
}
