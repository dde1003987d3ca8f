package echoportal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/eduweave/eduweave/apps/backend/echo"
	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/rest"
	"github.com/eduweave/eduweave/core/session"
	"github.com/eduweave/eduweave/core/user"
	"github.com/eduweave/eduweave/services/baas"
	emailsvc "github.com/eduweave/eduweave/services/email"
	logsvc "github.com/eduweave/eduweave/services/logger"
	"github.com/eduweave/eduweave/storage/credentials/memstore"
	inmemdb "github.com/eduweave/eduweave/storage/database/inmem"
	testutil "github.com/eduweave/eduweave/tests"
)

const pwd = "l1teracy-rocks"

// env is a portal talking over HTTP to a backend backed by the in-memory database.
type env struct {
	srv      *Server
	conf     *core.Config
	backend  *httptest.Server
	client   *baas.Client
	accounts user.Repository
	rows     rest.Repository
	creds    *memstore.Store
	store    *session.Store
	mail     interface{ SentMessages() []core.EmailMessage }
	logger   *logsvc.MemoryLogger

	teacher user.Account
	officer user.Account
}

type viewResp struct {
	View  string          `json:"view"`
	User  *user.User      `json:"user"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// setup starts the backend and the portal. The session is restored unless restore is false.
func setup(t *testing.T, restore bool) *env {
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
		creds:    memstore.New(),
		logger:   logsvc.NewMemoryLogger(),
	}
	backendSrv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     e.logger,
		UserSvc:    user.NewService(e.accounts),
		Rows:       e.rows,
		Validate:   validate,
		Translator: translator,
	})
	e.backend = httptest.NewServer(backendSrv)
	t.Cleanup(e.backend.Close)
	conf.Backend.URL = e.backend.URL

	e.teacher = testutil.CreateAccount(t, e.accounts, "asha@school.test", "Asha", user.RoleTeacher, "d1", pwd, true)
	e.officer = testutil.CreateAccount(t, e.accounts, "meera@diet.test", "Meera", user.RoleDistrictOfficial, "d1", pwd, true)

	e.client = baas.NewClient(conf.Backend, e.backend.Client())
	e.store = session.NewStore(e.creds, e.client, e.logger)
	if restore {
		e.store.Restore(context.Background())
	}

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	e.mail = mailSvc
	e.srv = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     e.logger,
		Session:    e.store,
		Records:    records.NewService(e.client, mailSvc, e.logger, conf),
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() {
		_ = e.srv.Shutdown(context.Background())
		_ = backendSrv.Shutdown(context.Background())
	})
	return e
}

func (e *env) do(method, path string, data ...[]byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *env) signIn(t *testing.T, acc user.Account) {
	rec := e.do(http.MethodPost, user.LoginPath, marshalObj(t, loginForm{Email: acc.Email, Password: pwd}))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewResp {
	var v viewResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
