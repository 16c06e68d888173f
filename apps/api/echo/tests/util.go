package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/yarcoin/marketplace/apps/api/echo"
	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/email"
	"github.com/yarcoin/marketplace/services/filestore"
	"github.com/yarcoin/marketplace/services/lock"
	"github.com/yarcoin/marketplace/services/metrics"
	"github.com/yarcoin/marketplace/storage/database/inmem"
	"github.com/yarcoin/marketplace/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testEnv is a running API backed by a fresh in-memory database.
type testEnv struct {
	app     Server
	conf    *core.Config
	locker  core.Locker
	mailSvc *emailsvc.ConsoleService

	usrRepo  user.Repository
	stRepo   student.Repository
	tchrRepo teacher.Repository
	bidRepo  bidding.Repository
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testEnv {
	conf := testutil.NewConfig()
	conf.Server.RateLimit = 0
	conf.Server.DisableReqLogs = true
	conf.Server.MediaDir = t.TempDir()
	conf.Bidding.LockWait = 200 * time.Millisecond
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger(conf)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	core.ParseEmailTemplates(logger, true /* strict */)

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		conf:     conf,
		locker:   lock.NewLocal(conf.Bidding.LockWait),
		mailSvc:  emailsvc.NewConsoleServiceMock(logger, conf),
		usrRepo:  inmemdb.NewUserRepository(db),
		stRepo:   inmemdb.NewStudentRepository(db),
		tchrRepo: inmemdb.NewTeacherRepository(db),
	}
	env.bidRepo = inmemdb.NewBidRepository(db)

	// set up services
	usrSvc := user.NewService(env.usrRepo, env.mailSvc, conf)
	stSvc := student.NewService(db, env.stRepo, env.bidRepo, filestore.NewLocal(conf.Server.MediaDir), conf)
	tchrSvc := teacher.NewService(env.tchrRepo, conf)

	// set up server
	env.app = NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&Deps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			Metrics:    metrics.New(),
			UserSvc:    usrSvc,
			AccountSvc: account.NewService(db, usrSvc, stSvc, tchrSvc),
			StudentSvc: stSvc,
			TeacherSvc: tchrSvc,
			BiddingSvc: bidding.NewService(db, env.locker, env.bidRepo, env.stRepo, env.tchrRepo),
		},
	)
	return env
}

// do serves req and returns the recorded response.
func (env *testEnv) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.app.ServeHTTP(rec, req)
	return rec
}

// studentAccount creates a student profile along with the user owning it.
func (env *testEnv) studentAccount(t *testing.T, name, uname string, basePrice int64) (student.Student, user.User) {
	st := testutil.CreateStudent(t, env.stRepo, name, uname+"@test.cd", basePrice)
	usr := testutil.CreateUser(t, env.usrRepo, name, "Student", uname, uname+"@test.cd", "", user.RoleStudent, st.ID)
	return st, usr
}

// teacherAccount creates a teacher profile along with the user owning it.
func (env *testEnv) teacherAccount(t *testing.T, name, uname string, purse int64) (teacher.Teacher, user.User) {
	tchr := testutil.CreateTeacher(t, env.tchrRepo, name, uname+"@test.cd", "Math", purse)
	usr := testutil.CreateUser(t, env.usrRepo, name, "Teacher", uname, uname+"@test.cd", "", user.RoleTeacher, tchr.ID)
	return tchr, usr
}

type httpErr struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
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

// newMultipartRequest sends fields along with an optional file under fileField.
func newMultipartRequest(
	t *testing.T,
	path, token string,
	fields map[string]string,
	fileField, filename string,
	content io.Reader,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = io.Copy(fw, content); err != nil {
			t.Fatalf("io.Copy() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Writer.Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, conf), conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	_, ok1 := j1.([]interface{})
	_, ok2 := j2.([]interface{})
	if !(ok1 && ok2) {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, env.do(req, rec))
		})
	}
}
