package main

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/hazira/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(ctx context.Context, db *sql.DB, args []string) error {
	migrations, err := database.Migrations()
	if err != nil {
		return errors.Wrap(err, "loading migrations")
	}
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err = goose.SetDialect("postgres"); err != nil {
		return err
	}

	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(ctx, args[0], db, ".", arguments...)
}
