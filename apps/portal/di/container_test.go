package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoportal "github.com/eduweave/eduweave/apps/portal/echo"
	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/records"
	"github.com/eduweave/eduweave/core/session"
	testutil "github.com/eduweave/eduweave/tests"
)

func TestNew(t *testing.T) {
	c := New(testutil.NewConfig)

	err := c.Invoke(func(
		conf *core.Config,
		closeParam CloseCredentialsParam,
		creds session.CredentialStore,
		idp session.IdentityProvider,
		store *session.Store,
		recordSvc *records.Service,
		server *echoportal.Server,
	) {
		defer closeParam.Close()
		assert.Equal(t, "memory", conf.Credentials.Driver)
		assert.NotNil(t, creds)
		assert.NotNil(t, idp)
		assert.True(t, store.Loading(), "not restored yet")
		assert.NotNil(t, recordSvc)
		assert.NotNil(t, server)
	})
	require.NoError(t, err)

	graph, err := Describe(c)
	require.NoError(t, err)
	assert.Contains(t, graph, "digraph")
}
