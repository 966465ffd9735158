package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/enrollment"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/syncer"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	app *app
	out io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  enroll --id ID --ref REF [--name NAME] [--notify ADDRESS]           - enroll a subject's face from the camera")
	fmt.Fprintln(cli.out, "  mark --course ID --photo FILE [--date DATE] [--roster ID,ID...]     - mark attendance from a class photo")
	fmt.Fprintln(cli.out, "  set --course ID --subject ID --status STATUS [--date DATE]          - set one subject's attendance by hand")
	fmt.Fprintln(cli.out, "  sync                                                                - push the pending attendance to the portal")
	fmt.Fprintln(cli.out, "  status                                                              - show the device state")
	fmt.Fprintln(cli.out, "  summary --course ID [--from DATE] [--to DATE]                       - per-subject attendance of a course")
	fmt.Fprintln(cli.out, "  export --course ID [--from DATE] [--to DATE] [--out FILE]           - export attendance as CSV")
	fmt.Fprintln(cli.out, "  pull-faces                                                          - download the enrolled faces from the portal")
	fmt.Fprintln(cli.out, "  watch                                                               - keep syncing in the background until interrupted")
}

func (cli *commandLine) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "enroll":
		fs := cli.newFlagSet("enroll")
		id := fs.Int64("id", 0, "the subject's portal ID")
		ref := fs.String("ref", "", "the subject's external reference (roll number)")
		name := fs.String("name", "", "display name (defaults to the reference)")
		addr := fs.String("notify", "", "e-mail address or phone number to notify about attendance")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *id <= 0 || *ref == "" {
			fs.Usage()
			return errHelp
		}
		return cli.enroll(ctx, enrollment.Params{SubjectID: *id, ExternalRef: *ref, DisplayName: *name, NotifyAddress: *addr})

	case "mark":
		fs := cli.newFlagSet("mark")
		course := fs.Int64("course", 0, "course ID")
		photo := fs.String("photo", "", "class photo (JPEG or PNG)")
		date := fs.String("date", "", "day of the class (YYYY-MM-DD, defaults to today)")
		roster := fs.Int64Slice("roster", nil, "subject IDs expected in class; the missing ones are marked absent")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *course <= 0 || *photo == "" {
			fs.Usage()
			return errHelp
		}
		day, err := parseDay(*date)
		if err != nil {
			return err
		}
		return cli.mark(ctx, *course, *photo, day, *roster)

	case "set":
		fs := cli.newFlagSet("set")
		course := fs.Int64("course", 0, "course ID")
		subject := fs.Int64("subject", 0, "subject ID")
		status := fs.String("status", "", "present, absent or late")
		date := fs.String("date", "", "day of the class (YYYY-MM-DD, defaults to today)")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *course <= 0 || *subject <= 0 || *status == "" {
			fs.Usage()
			return errHelp
		}
		st, err := attendance.ParseStatus(*status)
		if err != nil {
			return err
		}
		day, err := parseDay(*date)
		if err != nil {
			return err
		}
		return cli.set(ctx, *subject, *course, day, st)

	case "sync":
		return cli.sync(ctx)

	case "status":
		return cli.status(ctx)

	case "summary", "export":
		fs := cli.newFlagSet(args[1])
		course := fs.Int64("course", 0, "course ID")
		from := fs.String("from", "", "first day (YYYY-MM-DD)")
		to := fs.String("to", "", "last day (YYYY-MM-DD)")
		out := fs.StringP("out", "o", "", "CSV file to write (defaults to the standard output)")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *course <= 0 {
			fs.Usage()
			return errHelp
		}
		filter := attendance.Filter{CourseID: *course}
		var err error
		if filter.From, err = parseOptionalDay(*from); err != nil {
			return err
		}
		if filter.To, err = parseOptionalDay(*to); err != nil {
			return err
		}
		if args[1] == "summary" {
			return cli.summary(ctx, filter)
		}
		return cli.export(ctx, filter, *out)

	case "pull-faces":
		return cli.pullFaces(ctx)

	case "watch":
		return cli.watch(ctx)

	default:
		cli.printUsage()
		return errHelp
	}
}

func parseDay(s string) (attendance.Date, error) {
	if s == "" {
		return attendance.Today(), nil
	}
	return attendance.ParseDate(s)
}

func parseOptionalDay(s string) (attendance.Date, error) {
	if s == "" {
		return "", nil
	}
	return attendance.ParseDate(s)
}

// Commands

func (cli *commandLine) enroll(ctx context.Context, params enrollment.Params) error {
	a := cli.app
	if a.faces == nil {
		return attendance.ErrNoFaceCapability
	}
	cam, err := a.camera()
	if err != nil {
		return err
	}
	sess, err := enrollment.NewSession(cam, a.faces, a.store, params, a.enrollmentOptions())
	if err != nil {
		return err
	}

	var last string
	idt, err := sess.Run(ctx, a.conf.Kiosk.TickInterval, func(st enrollment.Status) {
		if line := renderGuidance(st); line != last {
			fmt.Fprintln(cli.out, line)
			last = line
		}
	})
	if err != nil {
		var cErr *enrollment.CaptureError
		if errors.As(err, &cErr) {
			fmt.Fprintln(cli.out, errorStyle.Render(cErr.Guidance()))
		}
		return err
	}
	fmt.Fprintf(cli.out, "enrolled %s (%s, id %d)\n", idt.DisplayName, idt.ExternalRef, idt.ID)

	// mirror to the portal, best effort
	if err = a.portal.PutIdentity(ctx, idt); err != nil {
		a.logger.Warn(fmt.Sprintf("pushing enrollment of %s: %v", idt.ExternalRef, err), err, idt)
		msg := "the portal could not be reached: the enrollment is only stored on this device"
		if syncer.IsRejected(err) {
			msg = "the portal refused the enrollment (" + err.Error() + "): it is only stored on this device"
		}
		fmt.Fprintln(cli.out, warnStyle.Render(msg))
	}
	return nil
}

func (cli *commandLine) mark(ctx context.Context, course int64, photo string, day attendance.Date, roster []int64) error {
	data, err := os.ReadFile(photo)
	if err != nil {
		return pkgerrors.Wrap(err, "reading photo")
	}
	frame, err := face.FrameFromImage(1, data)
	if err != nil {
		return err
	}

	report, err := cli.app.svc.MarkFromFrame(ctx, frame, course, day, roster)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d face(s), %d recognized, %d unknown\n", report.Faces, len(report.Matches), report.Unknown)
	for _, ch := range report.Changes {
		fmt.Fprintf(cli.out, "  %-8d %s\n", ch.Record.SubjectID, renderStatus(ch.Record.Status))
	}
	if len(report.Unrostered) > 0 {
		ids := make([]string, 0, len(report.Unrostered))
		for _, id := range report.Unrostered {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		fmt.Fprintln(cli.out, warnStyle.Render("not on the roster (not marked): "+strings.Join(ids, ", ")))
	}
	return cli.trySync(ctx)
}

func (cli *commandLine) set(ctx context.Context, subject, course int64, day attendance.Date, st attendance.Status) error {
	ch, err := cli.app.svc.Override(ctx, subject, course, day, st)
	if err != nil {
		return err
	}
	if ch.Changed() {
		fmt.Fprintf(cli.out, "%d marked %s for course %d on %s\n", subject, renderStatus(st), course, day)
	} else {
		fmt.Fprintf(cli.out, "%d already marked %s\n", subject, renderStatus(st))
	}
	return cli.trySync(ctx)
}

// trySync pushes the new marks right away when the portal is reachable. Failures leave them queued.
func (cli *commandLine) trySync(ctx context.Context) error {
	if err := cli.sync(ctx); err != nil && !syncer.IsTransient(err) {
		return err
	}
	return nil
}

func (cli *commandLine) sync(ctx context.Context) error {
	a := cli.app
	online := a.portal.Probe(ctx) == nil
	res, err := a.engine.OnConnectivityChange(ctx, online)
	if err != nil {
		return err
	}
	if !online {
		pending, err := a.engine.Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, warnStyle.Render(fmt.Sprintf("offline: %d record(s) queued", pending)))
		return nil
	}
	if res.BatchID == "" {
		// already online: nothing was flushed by the transition
		pending, err := a.engine.Pending(ctx)
		if err != nil {
			return err
		}
		if pending == 0 {
			fmt.Fprintln(cli.out, okStyle.Render("up to date"))
			return nil
		}
		if res, err = a.engine.Flush(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "synced %d of %d record(s), %d pending\n", res.Synced, res.Sent, res.Pending)
	return nil
}

func (cli *commandLine) status(ctx context.Context) error {
	a := cli.app
	pending, err := a.engine.Pending(ctx)
	if err != nil {
		return err
	}
	idts, err := a.store.All(ctx)
	if err != nil {
		return err
	}

	portal := okStyle.Render("reachable")
	if err = a.portal.Probe(ctx); err != nil {
		portal = errorStyle.Render("unreachable")
	}
	faces := okStyle.Render("available")
	if a.faces == nil {
		faces = warnStyle.Render("unavailable")
	}
	device := a.conf.Kiosk.DeviceID
	if device == "" {
		device = "-"
	}

	fmt.Fprintln(cli.out, renderPanel(a.conf.AppName+" kiosk",
		kv{"device", device},
		kv{"portal", portal},
		kv{"enrolled", strconv.Itoa(len(idts))},
		kv{"pending", strconv.Itoa(pending)},
		kv{"faces", faces},
	))
	return nil
}

func (cli *commandLine) summary(ctx context.Context, filter attendance.Filter) error {
	sums, err := cli.app.svc.Summary(ctx, filter.CourseID, filter.From, filter.To)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintln(cli.out, "no attendance recorded")
		return nil
	}
	fmt.Fprintln(cli.out, titleStyle.Render(fmt.Sprintf("course %d", filter.CourseID)))
	for _, sum := range sums {
		fmt.Fprintf(cli.out, "  %-8d %3d/%-3d %6.2f%%  (%d late, %d absent)\n",
			sum.SubjectID, sum.Present+sum.Late, sum.Total, sum.Percentage, sum.Late, sum.Absent)
	}
	return nil
}

func (cli *commandLine) export(ctx context.Context, filter attendance.Filter, path string) error {
	records, err := cli.app.ledger.Query(ctx, filter)
	if err != nil {
		return err
	}
	idts, err := cli.app.store.All(ctx)
	if err != nil {
		return err
	}

	w := cli.out
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return pkgerrors.Wrap(err, "creating export file")
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err = attendance.WriteCSV(w, records, idts); err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(cli.out, "exported %d record(s) to %s\n", len(records), path)
	}
	return nil
}

// pullFaces enrolls the portal's faces on this device. Faces this device cannot take
// (invalid or of another descriptor length) are skipped.
func (cli *commandLine) pullFaces(ctx context.Context) error {
	a := cli.app
	idts, err := a.portal.ListIdentities(ctx)
	if err != nil {
		return err
	}
	var stored, skipped int
	for _, idt := range idts {
		if _, err = a.store.Put(ctx, idt); err != nil {
			a.logger.Warn(fmt.Sprintf("skipping face %s: %v", idt.ExternalRef, err), err)
			skipped++
			continue
		}
		stored++
	}
	fmt.Fprintf(cli.out, "pulled %d face(s)", stored)
	if skipped > 0 {
		fmt.Fprint(cli.out, warnStyle.Render(fmt.Sprintf(", skipped %d", skipped)))
	}
	fmt.Fprintln(cli.out)
	return nil
}

// watch probes the portal and retries the sync until ctx is done.
func (cli *commandLine) watch(ctx context.Context) error {
	a := cli.app
	fmt.Fprintln(cli.out, titleStyle.Render("watching connectivity (Ctrl+C to stop)"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.engine.Run(ctx, a.conf.Sync.RetryInterval)
	}()
	a.monitor.Run(ctx)
	<-done
	return nil
}
