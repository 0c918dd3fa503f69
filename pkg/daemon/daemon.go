// Package daemon implements the gazed daemon: the session tick loop,
// the calibration state machine, the recalibration scheduler, and the
// HTTP API served over a unix socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/config"
	"github.com/eyetrax/gazed/pkg/events"
	"github.com/eyetrax/gazed/pkg/sampler"
)

var (
	samplerConn sampler.Sampler
	conf        config.Config
	sseHub      = events.NewHub()
	scheduler   *Scheduler
)

// Options configures a daemon run.
type Options struct {
	ConfigPath     string
	SocketPath     string
	StatePath      string
	AllowNonRoot   bool
	SyntheticInput bool // use the synthetic sampler instead of a camera
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.PUT("/settle-window", setSettleWindowMS)
	router.PUT("/step-window", setStepWindowMS)
	router.PUT("/tick-interval", setTickIntervalMS)
	router.GET("/telemetry", getTelemetry)
	router.GET("/point", getPoint)
	router.GET("/raw", getRaw)
	router.POST("/calibration/start", startCalibration)
	router.POST("/calibration/pause", pauseCalibration)
	router.POST("/calibration/resume", resumeCalibration)
	router.POST("/calibration/cancel", cancelCalibration)
	router.GET("/calibration", getCalibrationStatus)
	router.PUT("/schedule", setSchedule)
	router.GET("/schedule", getSchedule)
	router.POST("/schedule/postpone", postponeSchedule)
	router.POST("/schedule/skip", skipSchedule)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func Run(opts Options) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	initSessionState(opts.StatePath)

	if opts.SyntheticInput {
		logrus.Info("using synthetic gaze sampler")
		samplerConn = sampler.NewSynthetic(time.Now().UnixNano())
	} else {
		cam, err := sampler.OpenCamera(conf.CameraIndex(), conf.FaceCascadePath(), conf.EyeCascadePath())
		if err != nil {
			// The daemon stays up so the API can report what went wrong;
			// calibration cannot start until a restart brings a working
			// camera.
			setSamplerHealth(err)
			setSessionError(fmt.Sprintf("failed to open camera %d: %v", conf.CameraIndex(), err))
		} else {
			samplerConn = cam
		}
	}

	scheduler = NewScheduler(
		startSession,
		func() error {
			if !samplerHealthy() {
				return errors.New("sampler is unhealthy")
			}
			return nil
		},
		func(data any) {
			runAt, _ := data.(time.Time)
			sseHub.Publish(events.SessionAction, events.SessionActionEvent{
				Action:  string(calibration.ActionSchedule),
				Message: fmt.Sprintf("Recalibration will start at %s", runAt.Format(time.DateTime)),
				Ts:      time.Now().Unix(),
			})
		},
		func(data any) {
			err, _ := data.(error)
			logrus.WithError(err).Error("scheduled recalibration failed")
		},
	)
	if expr := conf.RecalibrationCron(); expr != "" {
		if err := scheduler.Schedule(expr); err != nil {
			logrus.Errorf("invalid recalibration cron %q in config: %v", expr, err)
		}
	}
	scheduler.Start()

	srv := &http.Server{
		Handler: router,
	}

	// Remove a stale socket from a previous unclean shutdown, then
	// create the socket to listen on.
	if _, err := os.Stat(opts.SocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", opts.SocketPath)
		_ = os.Remove(opts.SocketPath)
	}
	l, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.SocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.SocketPath)
		err = os.Chmod(opts.SocketPath, 0777)
		if err != nil {
			_ = l.Close()
			return pkgerrors.Wrapf(err, "failed to chmod %s", opts.SocketPath)
		}
	}

	// Serve HTTP on unix socket
	serveErrCh := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	stopLoopCh := make(chan struct{})
	go func() {
		logrus.Debugln("session loop starts")

		infiniteLoop(stopLoopCh)

		logrus.Debugln("session loop exited")
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM, or for the http server to die:
	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErrCh:
		runErr = pkgerrors.Wrap(err, "http server failed")
		logrus.WithError(err).Error("http server failed, shutting down")
	}

	close(stopLoopCh)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	sessionMu.Lock()
	persistSessionState()
	sessionMu.Unlock()

	if samplerConn != nil {
		logrus.Info("closing sampler")
		if err := samplerConn.Close(); err != nil {
			logrus.Errorf("failed to close sampler: %v", err)
		}
	}

	logrus.Info("exiting")
	return runErr
}
