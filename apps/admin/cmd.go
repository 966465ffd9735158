package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/storage/database"
	sqlxrepos "github.com/trezcool/hazira/storage/database/sqlx"
)

var (
	createDBFunc = database.CreateIfNotExist // mockable

	errHelp = errors.New("help provided")
)

type (
	recordQuerier interface {
		QueryRecords(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error)
	}

	commandLine struct {
		conf   *core.Config
		out    io.Writer
		openDB func() (*sqlx.DB, error)

		db         *sqlx.DB // opened on first use
		identities identity.Repository
		attendance recordQuerier
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run a goose command (up, up-to N, down, down-to N, redo, reset, status, version) on the portal database")
	fmt.Fprintln(cli.out, "  createdb                                      - create the portal database and its user if they do not exist")
	fmt.Fprintln(cli.out, "  import-faces --file FACES.json                - enroll the faces of a JSON roster in the portal registry")
	fmt.Fprintln(cli.out, "  summary --course ID [--from DATE] [--to DATE] - print the attendance summary of a course")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		db, err := cli.database()
		if err != nil {
			return err
		}
		return cli.migrate(ctx, db.DB, args[2:])

	case "createdb":
		if err := createDBFunc(cli.conf); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "database %q is ready\n", cli.conf.Database.Name)
		return nil

	case "import-faces":
		importCmd := pflag.NewFlagSet("import-faces", pflag.ContinueOnError)
		importCmd.SetOutput(cli.out)
		file := importCmd.StringP("file", "f", "", "JSON array of {id, externalRef, displayName, descriptor, notifyAddress}")
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *file == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importFaces(ctx, *file)

	case "summary":
		summaryCmd := pflag.NewFlagSet("summary", pflag.ContinueOnError)
		summaryCmd.SetOutput(cli.out)
		course := summaryCmd.Int64("course", 0, "course ID")
		from := summaryCmd.String("from", "", "first day (YYYY-MM-DD)")
		to := summaryCmd.String("to", "", "last day (YYYY-MM-DD)")
		if err := summaryCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *course <= 0 {
			summaryCmd.Usage()
			return errHelp
		}
		filter := attendance.Filter{CourseID: *course}
		for _, d := range []struct {
			raw string
			dst *attendance.Date
		}{{*from, &filter.From}, {*to, &filter.To}} {
			if d.raw == "" {
				continue
			}
			date, err := attendance.ParseDate(d.raw)
			if err != nil {
				return err
			}
			*d.dst = date
		}
		return cli.summary(ctx, filter)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) database() (*sqlx.DB, error) {
	if cli.db == nil {
		db, err := cli.openDB()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "opening database")
		}
		cli.db = db
	}
	return cli.db, nil
}

func (cli *commandLine) close() {
	if cli.db != nil {
		_ = cli.db.Close()
		cli.db = nil
	}
}

func (cli *commandLine) identityRepo() (identity.Repository, error) {
	if cli.identities == nil {
		db, err := cli.database()
		if err != nil {
			return nil, err
		}
		cli.identities = sqlxrepos.NewIdentityRepository(db)
	}
	return cli.identities, nil
}

func (cli *commandLine) attendanceRepo() (recordQuerier, error) {
	if cli.attendance == nil {
		db, err := cli.database()
		if err != nil {
			return nil, err
		}
		cli.attendance = sqlxrepos.NewAttendanceRepository(db)
	}
	return cli.attendance, nil
}

// importFaces validates the whole roster before enrolling any face of it.
func (cli *commandLine) importFaces(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Wrap(err, "reading roster")
	}
	var roster []identity.NewIdentity
	if err = json.Unmarshal(raw, &roster); err != nil {
		return pkgerrors.Wrap(err, "decoding roster")
	}

	validate, translator := core.NewValidator()
	for i := range roster {
		roster[i].Clean()
		if err = validate.Struct(roster[i]); err != nil {
			var vErrs validator.ValidationErrors
			if errors.As(err, &vErrs) {
				err = core.NewValidationError(err, core.TranslateErrors(vErrs, translator)...)
			}
			return pkgerrors.Wrapf(err, "face #%d (%s)", i+1, roster[i].ExternalRef)
		}
	}

	repo, err := cli.identityRepo()
	if err != nil {
		return err
	}
	store := identity.NewStore(repo)
	for _, ni := range roster {
		if _, err = store.Put(ctx, ni.Identity()); err != nil {
			return pkgerrors.Wrapf(err, "enrolling %s", ni.ExternalRef)
		}
	}
	fmt.Fprintf(cli.out, "enrolled %d face(s)\n", len(roster))
	return nil
}

func (cli *commandLine) summary(ctx context.Context, filter attendance.Filter) error {
	repo, err := cli.attendanceRepo()
	if err != nil {
		return err
	}
	records, err := repo.QueryRecords(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tTOTAL\tPRESENT\tLATE\tABSENT\tATTENDANCE")
	for _, sum := range attendance.Summarize(records) {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.2f%%\n", sum.SubjectID, sum.Total, sum.Present, sum.Late, sum.Absent, sum.Percentage)
	}
	return w.Flush()
}
