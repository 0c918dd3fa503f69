package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		TickIntervalMS: ptr.To(50),
		SettleWindowMS: ptr.To(1000),
		StepWindowMS:   ptr.To(5000),
		CameraIndex:    ptr.To(0),
		// Debian/Ubuntu opencv-data paths. Override on other distros.
		FaceCascadePath:    ptr.To("/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml"),
		EyeCascadePath:     ptr.To("/usr/share/opencv4/haarcascades/haarcascade_eye.xml"),
		AllowNonRootAccess: ptr.To(false),
		RecalibrationCron:  ptr.To(""),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	TickIntervalMS     *int    `json:"tickIntervalMS,omitempty"`
	SettleWindowMS     *int    `json:"settleWindowMS,omitempty"`
	StepWindowMS       *int    `json:"stepWindowMS,omitempty"`
	CameraIndex        *int    `json:"cameraIndex,omitempty"`
	FaceCascadePath    *string `json:"faceCascadePath,omitempty"`
	EyeCascadePath     *string `json:"eyeCascadePath,omitempty"`
	AllowNonRootAccess *bool   `json:"allowNonRootAccess,omitempty"`
	RecalibrationCron  *string `json:"recalibrationCron,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		TickIntervalMS:     ptr.To(c.TickIntervalMS()),
		SettleWindowMS:     ptr.To(c.SettleWindowMS()),
		StepWindowMS:       ptr.To(c.StepWindowMS()),
		CameraIndex:        ptr.To(c.CameraIndex()),
		FaceCascadePath:    ptr.To(c.FaceCascadePath()),
		EyeCascadePath:     ptr.To(c.EyeCascadePath()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		RecalibrationCron:  ptr.To(c.RecalibrationCron()),
	}

	return rawConfig, nil
}

func (f *File) intField(get func(*RawFileConfig) *int) int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := get(f.c); v != nil {
		return *v
	}
	return *get(defaultFileConfig)
}

func (f *File) stringField(get func(*RawFileConfig) *string) string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := get(f.c); v != nil {
		return *v
	}
	return *get(defaultFileConfig)
}

func (f *File) TickIntervalMS() int {
	return f.intField(func(c *RawFileConfig) *int { return c.TickIntervalMS })
}

func (f *File) SettleWindowMS() int {
	return f.intField(func(c *RawFileConfig) *int { return c.SettleWindowMS })
}

func (f *File) StepWindowMS() int {
	return f.intField(func(c *RawFileConfig) *int { return c.StepWindowMS })
}

func (f *File) CameraIndex() int {
	return f.intField(func(c *RawFileConfig) *int { return c.CameraIndex })
}

func (f *File) FaceCascadePath() string {
	return f.stringField(func(c *RawFileConfig) *string { return c.FaceCascadePath })
}

func (f *File) EyeCascadePath() string {
	return f.stringField(func(c *RawFileConfig) *string { return c.EyeCascadePath })
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

func (f *File) RecalibrationCron() string {
	return f.stringField(func(c *RawFileConfig) *string { return c.RecalibrationCron })
}

func (f *File) SetTickIntervalMS(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TickIntervalMS = &i
}

func (f *File) SetSettleWindowMS(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SettleWindowMS = &i
}

func (f *File) SetStepWindowMS(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.StepWindowMS = &i
}

func (f *File) SetCameraIndex(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.CameraIndex = &i
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) SetRecalibrationCron(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.RecalibrationCron = &s
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"tickIntervalMS":     f.TickIntervalMS(),
		"settleWindowMS":     f.SettleWindowMS(),
		"stepWindowMS":       f.StepWindowMS(),
		"cameraIndex":        f.CameraIndex(),
		"faceCascadePath":    f.FaceCascadePath(),
		"eyeCascadePath":     f.EyeCascadePath(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"recalibrationCron":  f.RecalibrationCron(),
	}
}
