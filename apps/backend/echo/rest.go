package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/rest"
)

type restAPI struct {
	repo rest.Repository
}

func registerRestAPI(g *echo.Group, repo rest.Repository) {
	api := restAPI{repo: repo}

	g.GET("/:collection", api.query)
	g.POST("/:collection", api.insert)
	g.PATCH("/:collection", api.update)
}

func collectionParam(ctx echo.Context) (rest.Collection, error) {
	return rest.Lookup(rest.TrimKey(ctx.Param("collection")))
}

// writable rejects writes to collections owned by the account endpoints.
func writable(c rest.Collection) error {
	if c.Name == rest.Users {
		return errReadOnly
	}
	return nil
}

// decodeRows accepts a single object or an array of objects.
func decodeRows(body io.Reader) ([]rest.Row, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "reading body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, core.NewValidationError(errors.New("empty body"))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if data[0] == '[' {
		var rows []rest.Row
		if err := dec.Decode(&rows); err != nil {
			return nil, core.NewValidationError(errors.New("malformed JSON array"))
		}
		return rows, nil
	}
	var row rest.Row
	if err := dec.Decode(&row); err != nil {
		return nil, core.NewValidationError(errors.New("malformed JSON object"))
	}
	return []rest.Row{row}, nil
}

// Handlers

func (api *restAPI) query(ctx echo.Context) error {
	c, err := collectionParam(ctx)
	if err != nil {
		return err
	}
	q, err := rest.ParseQuery(ctx.QueryParams(), c)
	if err != nil {
		return err
	}
	rows, err := api.repo.Select(ctx.Request().Context(), c, q)
	if err != nil {
		return errors.Wrapf(err, "selecting %s", c.Name)
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *restAPI) insert(ctx echo.Context) error {
	c, err := collectionParam(ctx)
	if err != nil {
		return err
	}
	if err := writable(c); err != nil {
		return err
	}
	rows, err := decodeRows(ctx.Request().Body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ctx.JSON(http.StatusCreated, []rest.Row{})
	}
	inserted, err := api.repo.Insert(ctx.Request().Context(), c, rows)
	if err != nil {
		return errors.Wrapf(err, "inserting into %s", c.Name)
	}
	return ctx.JSON(http.StatusCreated, inserted)
}

func (api *restAPI) update(ctx echo.Context) error {
	c, err := collectionParam(ctx)
	if err != nil {
		return err
	}
	if err := writable(c); err != nil {
		return err
	}
	q, err := rest.ParseQuery(ctx.QueryParams(), c)
	if err != nil {
		return err
	}
	if len(q.Filters) == 0 {
		return errMissingFilter
	}
	rows, err := decodeRows(ctx.Request().Body)
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return core.NewValidationError(errors.New("patch must be a single object"))
	}
	updated, err := api.repo.Update(ctx.Request().Context(), c, rest.Query{Filters: q.Filters}, rows[0])
	if err != nil {
		return errors.Wrapf(err, "updating %s", c.Name)
	}
	return ctx.JSON(http.StatusOK, updated)
}
