package echoportal

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/query"
	"github.com/eduweave/eduweave/core/user"
)

// fetch runs the data query of a page for the signed-in user and waits for it.
// params are the page's route parameters; together with the user they key the query.
func fetch[T any](
	ctx echo.Context,
	s *Server,
	fn func(c context.Context, token string, usr user.User) (T, error),
	params ...interface{},
) (T, error) {
	usr, _ := contextUser(ctx)
	token := s.deps.Session.Token()

	q := query.NewQuery(func(c context.Context) (T, error) {
		return fn(c, token, usr)
	})
	defer q.Close()

	reqCtx := ctx.Request().Context()
	st := q.Run(reqCtx, append([]interface{}{usr.ID}, params...)...)
	if st.Loading {
		return st.Data, errors.Wrap(reqCtx.Err(), "loading page data")
	}
	if st.Err != nil {
		return st.Data, st.Err
	}
	return st.Data, nil
}

// mutate runs a page's write for the signed-in user.
func mutate[V, T any](
	ctx echo.Context,
	s *Server,
	fn func(c context.Context, token string, usr user.User, v V) (T, error),
	v V,
) (T, error) {
	usr, _ := contextUser(ctx)
	token := s.deps.Session.Token()

	m := query.NewMutation(func(c context.Context, v V) (T, error) {
		return fn(c, token, usr, v)
	})
	return m.Mutate(ctx.Request().Context(), v)
}
