package sampler

import (
	"image"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Camera produces gaze estimates from a front-facing camera using Haar
// cascade face and eye localization. A capture goroutine runs the
// camera at its own pace and caches the latest normalized estimate;
// PollGaze only reads the cache, so the daemon's tick loop never waits
// on a frame.
type Camera struct {
	mu     sync.RWMutex
	latest Sample

	cap         *gocv.VideoCapture
	faceCascade gocv.CascadeClassifier
	eyeCascade  gocv.CascadeClassifier

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenCamera opens the capture device and loads the cascade models,
// then starts the capture goroutine.
func OpenCamera(deviceIndex int, faceCascadePath, eyeCascadePath string) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(deviceIndex)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open capture device %d", deviceIndex)
	}

	faceCascade := gocv.NewCascadeClassifier()
	if !faceCascade.Load(faceCascadePath) {
		_ = cap.Close()
		_ = faceCascade.Close()
		return nil, pkgerrors.Errorf("failed to load face cascade from %s", faceCascadePath)
	}

	eyeCascade := gocv.NewCascadeClassifier()
	if !eyeCascade.Load(eyeCascadePath) {
		_ = cap.Close()
		_ = faceCascade.Close()
		_ = eyeCascade.Close()
		return nil, pkgerrors.Errorf("failed to load eye cascade from %s", eyeCascadePath)
	}

	c := &Camera{
		cap:         cap,
		faceCascade: faceCascade,
		eyeCascade:  eyeCascade,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	go c.captureLoop()

	return c, nil
}

// PollGaze returns the latest cached estimate. It never blocks on the
// camera. Callers tolerate staleness up to staleAfter; beyond that the
// capture pipeline is considered unhealthy.
func (c *Camera) PollGaze() (Sample, error) {
	c.mu.RLock()
	s := c.latest
	c.mu.RUnlock()

	if s.At.IsZero() {
		return Sample{}, ErrNoSample
	}
	if time.Since(s.At) > staleAfter {
		return Sample{}, ErrStale
	}
	return s, nil
}

// Close stops the capture goroutine and releases camera and cascade
// resources.
func (c *Camera) Close() error {
	close(c.stopCh)
	<-c.doneCh

	err := c.cap.Close()
	if cerr := c.faceCascade.Close(); err == nil {
		err = cerr
	}
	if cerr := c.eyeCascade.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Camera) captureLoop() {
	defer close(c.doneCh)

	img := gocv.NewMat()
	defer func() { _ = img.Close() }()
	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if ok := c.cap.Read(&img); !ok || img.Empty() {
			logrus.Trace("camera returned no frame")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

		estimate := c.estimate(&gray, img.Cols(), img.Rows())

		c.mu.Lock()
		c.latest = estimate
		c.mu.Unlock()
	}
}

// estimate locates the largest face, then the eye centroid within its
// upper half, and normalizes to frame dimensions. When no face (or no
// eyes) are found it falls back to screen center: this biases
// calibration toward (0.5, 0.5) when detection drops out, a behavior
// carried over from the original pipeline.
func (c *Camera) estimate(gray *gocv.Mat, width, height int) Sample {
	now := time.Now()
	center := Sample{X: 0.5, Y: 0.5, At: now}

	faces := c.faceCascade.DetectMultiScale(*gray)
	if len(faces) == 0 {
		return center
	}

	face := largestRect(faces)

	// Eyes live in the upper half of the face rect; searching the full
	// rect produces nostril false positives.
	eyeRegion := image.Rect(face.Min.X, face.Min.Y, face.Max.X, face.Min.Y+face.Dy()/2)
	region := gray.Region(eyeRegion)
	eyes := c.eyeCascade.DetectMultiScale(region)
	_ = region.Close()

	var cx, cy float64
	if len(eyes) == 0 {
		cx = float64(face.Min.X) + float64(face.Dx())/2
		cy = float64(face.Min.Y) + float64(face.Dy())/4
	} else {
		for _, e := range eyes {
			cx += float64(eyeRegion.Min.X+e.Min.X) + float64(e.Dx())/2
			cy += float64(eyeRegion.Min.Y+e.Min.Y) + float64(e.Dy())/2
		}
		cx /= float64(len(eyes))
		cy /= float64(len(eyes))
	}

	s := Sample{
		X:  cx / float64(width),
		Y:  cy / float64(height),
		At: now,
	}
	if !s.Valid() {
		return center
	}
	return s
}

func largestRect(rects []image.Rectangle) image.Rectangle {
	largest := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > largest.Dx()*largest.Dy() {
			largest = r
		}
	}
	return largest
}
