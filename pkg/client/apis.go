package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/config"
	"github.com/eyetrax/gazed/pkg/events"
	"github.com/eyetrax/gazed/pkg/gazeinfo"
)

func (c *Client) SetSettleWindowMS(ms int) (string, error) {
	return c.Put("/settle-window", strconv.Itoa(ms))
}

func (c *Client) SetStepWindowMS(ms int) (string, error) {
	return c.Put("/step-window", strconv.Itoa(ms))
}

func (c *Client) SetTickIntervalMS(ms int) (string, error) {
	return c.Put("/tick-interval", strconv.Itoa(ms))
}

func (c *Client) GetPoint() (*calibration.Point, error) {
	ret, err := c.Get("/point")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibrated point")
	}

	var p calibration.Point
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibrated point")
	}
	return &p, nil
}

func (c *Client) GetRaw() (*calibration.Point, error) {
	ret, err := c.Get("/raw")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get raw gaze sample")
	}

	var p calibration.Point
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal raw gaze sample")
	}
	return &p, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	ret = ret[1 : len(ret)-1]
	return ret, nil
}

// GetTelemetry fetches unified telemetry; set gaze or calibration to
// false to exclude.
func (c *Client) GetTelemetry(includeGaze, includeCalibration bool) (*gazeinfo.Telemetry, error) {
	q := ""
	if !includeGaze {
		q += "gaze=0&"
	}
	if !includeCalibration {
		q += "calibration=0&"
	}
	if len(q) > 0 {
		q = "?" + q[:len(q)-1]
	}
	ret, err := c.Get("/telemetry" + q)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get telemetry")
	}
	var tr gazeinfo.Telemetry
	if err := json.Unmarshal([]byte(ret), &tr); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal telemetry")
	}
	return &tr, nil
}

func (c *Client) StartCalibration() (string, error) {
	return c.Send("POST", "/calibration/start", "")
}

func (c *Client) PauseCalibration() (string, error) {
	return c.Send("POST", "/calibration/pause", "")
}

func (c *Client) ResumeCalibration() (string, error) {
	return c.Send("POST", "/calibration/resume", "")
}

func (c *Client) CancelCalibration() (string, error) {
	return c.Send("POST", "/calibration/cancel", "")
}

type ScheduleResponse struct {
	Cron     string      `json:"cron"`
	NextRuns []time.Time `json:"nextRuns,omitempty"`
}

func (c *Client) SetSchedule(cronExpr string) (*ScheduleResponse, error) {
	ret, err := c.Put("/schedule", cronExpr)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	var sr ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &sr); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule response")
	}
	return &sr, nil
}

func (c *Client) GetSchedule() (*ScheduleResponse, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}
	var sr ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &sr); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule response")
	}
	return &sr, nil
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	return c.Send("POST", "/schedule/postpone", d.String())
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Send("POST", "/schedule/skip", "")
}

// StreamEvents subscribes to the daemon's SSE stream. Events are sent
// on the returned channel until the context is canceled or the stream
// ends; the channel is closed on exit.
func (c *Client) StreamEvents(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", "http://unix/events", nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create events request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open events stream")
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, pkgerrors.Errorf("events stream returned %d", resp.StatusCode)
	}

	ch := make(chan events.Event, 32)
	go func() {
		defer close(ch)
		defer func() { _ = resp.Body.Close() }()

		var name string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				ev := events.Event{Name: name, Data: json.RawMessage(data)}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
