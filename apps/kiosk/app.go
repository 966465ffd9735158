package main

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/enrollment"
	"github.com/trezcool/hazira/core/face"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/matching"
	"github.com/trezcool/hazira/core/notify"
	"github.com/trezcool/hazira/core/syncer"
	camerasvc "github.com/trezcool/hazira/services/camera"
	notifysvc "github.com/trezcool/hazira/services/notify"
	remotesvc "github.com/trezcool/hazira/services/remote"
	"github.com/trezcool/hazira/storage/local"
)

type (
	// portal is the remote side of the kiosk: attendance sync and the faces registry.
	portal interface {
		syncer.RemoteStore
		syncer.Prober
		PutIdentity(ctx context.Context, idt identity.EnrolledIdentity) error
		ListIdentities(ctx context.Context) ([]identity.EnrolledIdentity, error)
	}

	appDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Identities identity.Repository
		Attendance attendance.Repository
		Faces      face.Capability // nil when the device has no face model
		Sender     notify.Sender
		Portal     portal
		Camera     func() (enrollment.Camera, error)
	}

	// app holds the kiosk services shared by all commands.
	app struct {
		conf       *core.Config
		logger     core.Logger
		store      *identity.Store
		ledger     *attendance.Ledger
		svc        *attendance.Service
		dispatcher *notify.Dispatcher
		engine     *syncer.Engine
		monitor    *syncer.Monitor
		portal     portal
		faces      face.Capability
		camera     func() (enrollment.Camera, error)

		closers []func()
	}
)

func assemble(deps appDeps) *app {
	conf := deps.Conf
	store := identity.NewStore(deps.Identities)
	ledger := attendance.NewLedger(deps.Attendance)
	dispatcher := notify.NewDispatcher(deps.Sender, deps.Logger, nil, conf.Notify.Timeout)
	engine := syncer.NewEngine(ledger, deps.Portal, deps.Logger)

	return &app{
		conf:   conf,
		logger: deps.Logger,
		store:  store,
		ledger: ledger,
		svc: attendance.NewService(attendance.ServiceDeps{
			Ledger:     ledger,
			Identities: store,
			Faces:      deps.Faces,
			Matcher:    matching.NewMatcher(conf.Matching.Threshold),
			Notifier:   dispatcher,
			Logger:     deps.Logger,
		}),
		dispatcher: dispatcher,
		engine:     engine,
		monitor:    syncer.NewMonitor(engine, deps.Portal, conf.Sync.ProbeInterval, deps.Logger),
		portal:     deps.Portal,
		faces:      deps.Faces,
		camera:     deps.Camera,
	}
}

// newApp opens the local store and connects the configured services.
func newApp(ctx context.Context, conf *core.Config, logger core.Logger) (*app, error) {
	db, err := localdb.OpenAndMigrate(ctx, conf.Kiosk.DataPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening local store")
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sender, closeSender, err := newSender(conf, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closeSender)

	faces, closeFaces, err := loadFaces(conf, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closeFaces)

	a := assemble(appDeps{
		Conf:       conf,
		Logger:     logger,
		Identities: localdb.NewIdentityRepository(db),
		Attendance: localdb.NewAttendanceRepository(db),
		Faces:      faces,
		Sender:     sender,
		Portal:     remotesvc.NewClient(conf),
		Camera: func() (enrollment.Camera, error) {
			return camerasvc.New(conf)
		},
	})
	a.closers = closers
	return a, nil
}

func newSender(conf *core.Config, logger core.Logger) (notify.Sender, func(), error) {
	switch conf.Notify.Provider {
	case "sendgrid":
		return notifysvc.NewSendgridSender(conf), func() {}, nil
	case "mqtt":
		s, err := notifysvc.NewMQTTSender(conf, logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connecting to the notification broker")
		}
		return s, s.Close, nil
	case "", "console":
		return notifysvc.NewConsoleSender(log.New(os.Stdout, "NOTIFY : ", log.LstdFlags)), func() {}, nil
	default:
		return nil, nil, errors.Errorf("unknown notification provider %q", conf.Notify.Provider)
	}
}

// close waits for the pending notifications, then releases the services in reverse order.
func (a *app) close() {
	a.dispatcher.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) enrollmentOptions() enrollment.Options {
	e := a.conf.Enrollment
	return enrollment.Options{
		CountdownTicks:   e.CountdownTicks,
		MaxAttempts:      e.MaxAttempts,
		MinFaceRatio:     e.MinFaceRatio,
		MaxFaceRatio:     e.MaxFaceRatio,
		IdealFaceRatio:   e.IdealFaceRatio,
		MaxCenterOffset:  e.MaxCenterOffset,
		SizeWeight:       e.SizeWeight,
		ConfidenceWeight: e.ConfidenceWeight,
		GoodEnough:       e.GoodEnough,
	}
}
