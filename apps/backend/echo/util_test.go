package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/user"
	logsvc "github.com/eduweave/eduweave/services/logger"
	inmemdb "github.com/eduweave/eduweave/storage/database/inmem"
	testutil "github.com/eduweave/eduweave/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type (
	env struct {
		srv      *Server
		conf     *core.Config
		accounts user.Repository
		rows     rest.Repository
		logger   *logsvc.MemoryLogger
		oauth    *fakeOAuth
	}

	fakeOAuth struct {
		email string
		err   error
	}

	httpErr struct {
		Error string `json:"error"`
	}

	httpTest struct {
		name     string
		method   string
		path     string
		body     []byte
		token    string
		wantCode int
		wantData []byte
	}
)

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.test/o/oauth2/auth?state=" + state
}

func (f *fakeOAuth) Email(_ context.Context, code string) (string, error) {
	if code == "" {
		return "", assert.AnError
	}
	return f.email, f.err
}

func setup(t *testing.T) *env {
	conf := testutil.NewConfig()
	db := inmemdb.Open()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	e := &env{
		conf:     conf,
		accounts: inmemdb.NewAccountRepository(db),
		rows:     inmemdb.NewRestRepository(db),
		logger:   logsvc.NewMemoryLogger(),
		oauth:    &fakeOAuth{},
	}
	e.srv = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     e.logger,
		UserSvc:    user.NewService(e.accounts),
		Rows:       e.rows,
		OAuth:      e.oauth,
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = e.srv.Shutdown(context.Background()) })
	return e
}

func (e *env) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(e.srv.newClaims(usr), e.conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.srv.ServeHTTP(rec, req)
	return rec
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
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
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
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
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
