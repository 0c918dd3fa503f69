package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/config"
	"github.com/eyetrax/gazed/pkg/gazeinfo"
	"github.com/eyetrax/gazed/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

// setSettleWindowMS changes the per-step settle window. The change
// applies to the next session; an in-progress session keeps the windows
// it started with.
func setSettleWindowMS(c *gin.Context) {
	var ms int
	if err := c.BindJSON(&ms); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if ms < 0 {
		err := fmt.Errorf("settle window must be non-negative, got %d", ms)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if ms >= conf.StepWindowMS() {
		err := fmt.Errorf("settle window (%dms) must be less than step window (%dms)", ms, conf.StepWindowMS())
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetSettleWindowMS(ms)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set settle window to %dms", ms)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set settle window to %dms, collection window is now %dms per step", ms, conf.StepWindowMS()-ms))
}

func setStepWindowMS(c *gin.Context) {
	var ms int
	if err := c.BindJSON(&ms); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if ms <= conf.SettleWindowMS() {
		err := fmt.Errorf("step window (%dms) must be greater than settle window (%dms)", ms, conf.SettleWindowMS())
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetStepWindowMS(ms)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set step window to %dms", ms)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set step window to %dms, a full calibration will take about %s", ms, formatDuration(time.Duration(ms*len(targets))*time.Millisecond)))
}

func setTickIntervalMS(c *gin.Context) {
	var ms int
	if err := c.BindJSON(&ms); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if ms < 10 || ms > 1000 {
		err := fmt.Errorf("tick interval must be between 10 and 1000 ms, got %d", ms)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetTickIntervalMS(ms)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set tick interval to %dms", ms)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func getGazeInfo() *gazeinfo.Gaze {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	return &gazeinfo.Gaze{
		Raw:            lastSample,
		Point:          currentPoint,
		SamplerHealthy: samplerHealthy(),
		LastSampleAt:   lastSampleAt,
		TickIntervalMS: conf.TickIntervalMS(),
	}
}

// getTelemetry returns the unified telemetry document. Clients can
// exclude sections with ?gaze=0 or ?calibration=0.
func getTelemetry(c *gin.Context) {
	tr := &gazeinfo.Telemetry{}

	if c.Query("gaze") != "0" {
		tr.Gaze = getGazeInfo()
	}
	if c.Query("calibration") != "0" {
		tr.Calibration = getSessionStatus()
	}

	c.IndentedJSON(http.StatusOK, tr)
}

func getPoint(c *gin.Context) {
	sessionMu.Lock()
	p := currentPoint
	sessionMu.Unlock()

	if p == nil {
		err := errors.New("no calibration mapping, run calibration first")
		c.IndentedJSON(http.StatusServiceUnavailable, err.Error())
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	c.IndentedJSON(http.StatusOK, p)
}

func getRaw(c *gin.Context) {
	sessionMu.Lock()
	p := lastSample
	sessionMu.Unlock()

	c.IndentedJSON(http.StatusOK, p)
}

func startCalibration(c *gin.Context) {
	if err := startSession(); err != nil {
		code := http.StatusConflict
		if errors.Is(err, ErrSamplerUnavailable) {
			code = http.StatusServiceUnavailable
		}
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}

	logrus.Info("calibration session started via api")

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("calibration started: %d targets", len(targets)))
}

func pauseCalibration(c *gin.Context) {
	if err := pauseSession(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "calibration paused")
}

func resumeCalibration(c *gin.Context) {
	if err := resumeSession(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "calibration resumed, current step restarted")
}

func cancelCalibration(c *gin.Context) {
	if err := cancelSession(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "calibration canceled")
}

func getCalibrationStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getSessionStatus())
}

// setSchedule sets the recalibration cron expression. An empty body
// disables the schedule.
func setSchedule(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	expr := strings.TrimSpace(string(b))

	if expr == "" {
		scheduler.Disable()
		conf.SetRecalibrationCron("")
		if err := conf.Save(); err != nil {
			logrus.Errorf("saveConfig failed: %v", err)
			c.IndentedJSON(http.StatusInternalServerError, err.Error())
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		logrus.Info("recalibration schedule disabled")
		c.IndentedJSON(http.StatusCreated, gin.H{"cron": ""})
		return
	}

	if err := scheduler.Schedule(expr); err != nil {
		err = fmt.Errorf("invalid cron expression %q: %v", expr, err)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetRecalibrationCron(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set recalibration schedule to %q", expr)

	nextRuns, _ := scheduler.NextRuns(expr, 3)
	c.IndentedJSON(http.StatusCreated, gin.H{"cron": expr, "nextRuns": nextRuns})
}

func getSchedule(c *gin.Context) {
	expr := conf.RecalibrationCron()
	if expr == "" {
		c.IndentedJSON(http.StatusOK, gin.H{"cron": ""})
		return
	}

	nextRuns, err := scheduler.NextRuns(expr, 3)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusOK, gin.H{"cron": expr, "nextRuns": nextRuns})
}

func postponeSchedule(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	d, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := scheduler.Postpone(d); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	logrus.Infof("postponed next recalibration by %s", d)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("postponed next recalibration by %s", d))
}

func skipSchedule(c *gin.Context) {
	if err := scheduler.Skip(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	next, _ := scheduler.Status()
	logrus.Infof("skipped next recalibration, next run at %s", next.Format(time.DateTime))

	c.IndentedJSON(http.StatusCreated, "skipped next recalibration")
}

// getEvents streams daemon events over SSE until the client goes away.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
