package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/grader/apps/api/echo"
	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/core/workflow"
	"github.com/trezcool/grader/services/ai"
	emailsvc "github.com/trezcool/grader/services/email"
	"github.com/trezcool/grader/services/filestore"
	inmemdb "github.com/trezcool/grader/storage/database/inmem"
	"github.com/trezcool/grader/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app        *echoapi.Server
	conf       *core.Config
	profRepo   professor.Repository
	asnRepo    assignment.Repository
	gradingSvc *grading.Service
}

func setup(t *testing.T, requireAuth ...bool) testEnv {
	conf := core.NewTestConfig(t.TempDir())
	conf.Server.RequireAuth = len(requireAuth) > 0 && requireAuth[0]
	return setupWithConfig(t, conf)
}

func setupWithConfig(t *testing.T, conf *core.Config) testEnv {
	logger := testutil.NewLogger(conf)
	require.NoError(t, core.ParseEmailTemplates())
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := inmemdb.Open()
	profRepo := inmemdb.NewProfessorRepository(db)
	asnRepo := inmemdb.NewAssignmentRepository(db)

	// set up services
	store, err := filestore.NewLocalStore(filepath.Join(conf.Uploads.Dir, "files"))
	if err != nil {
		t.Fatalf("NewLocalStore(): %v", err)
	}
	profSvc := professor.NewService(profRepo)
	asnSvc := assignment.NewService(
		asnRepo,
		profSvc,
		store,
		filestore.ZipExtractor{MaxSize: conf.Uploads.MaxExtractedSize},
		filepath.Join(conf.Uploads.Dir, "extracted"),
		logger,
	)
	gradingSvc := grading.NewService(
		inmemdb.NewGradingRepository(db),
		asnSvc,
		profSvc,
		ai.NewService(conf, logger),
		emailsvc.NewConsoleServiceMock(conf),
		conf,
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	gradingSvc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		gradingSvc.Wait()
	})

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		ProfessorSvc:   profSvc,
		AssignmentSvc:  asnSvc,
		GradingSvc:     gradingSvc,
		WorkflowSvc:    workflow.NewService(inmemdb.NewWorkflowStore(), asnSvc, gradingSvc),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return testEnv{app: app, conf: conf, profRepo: profRepo, asnRepo: asnRepo, gradingSvc: gradingSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a multipart/form-data request. No `file` part is written when filename is empty.
func newMultipartRequest(t *testing.T, path string, fields map[string]string, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("newMultipartRequest(): %v", err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("newMultipartRequest(): %v", err)
		}
		if _, err = fw.Write(content); err != nil {
			t.Fatalf("newMultipartRequest(): %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("newMultipartRequest(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, prof professor.Professor, conf *core.Config) string {
	token, err := echoapi.GenerateToken(echoapi.GetProfessorClaims(prof, conf), conf)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func itoa(i int) string { return strconv.Itoa(i) }

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app http.Handler, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
