// Package engine orchestrates the full stereo + mono depth pipeline: a
// single worker consumes queued frame pairs, runs the stereo and mono
// branches in parallel, calibrates, fuses, and emits result envelopes.
package engine

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/edgescope/depthfusion/depth"
	"github.com/edgescope/depthfusion/mono"
	"github.com/edgescope/depthfusion/rimage"
	"github.com/edgescope/depthfusion/rimage/transform"
	"github.com/edgescope/depthfusion/stereo"
	"github.com/edgescope/depthfusion/utils"
)

// ErrQueueFull is returned by Submit when the request FIFO is at capacity.
var ErrQueueFull = errors.New("request queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("engine is stopped")

// Engine is the façade over the whole pipeline. One worker goroutine owns
// the stereo matcher, the mono runtime and the intermediate cache; callers
// interact through Submit and the Results channel.
type Engine struct {
	conf   Config
	logger golog.Logger

	calib      *transform.StereoCalibration
	matcher    *stereo.Matcher
	calibrator *depth.Calibrator
	monoSrc    mono.Source

	// procMu serializes pipeline stages between the worker and the
	// direct compute helpers.
	procMu       sync.Mutex
	rectifier    *transform.Rectifier
	monoDisabled bool

	mu            sync.Mutex
	cond          *sync.Cond
	queue         []*Request
	running       bool
	cancelCurrent context.CancelFunc
	qOverride     *depth.QParams

	sessionID atomic.Int64

	// resMu orders emissions against the close in Stop.
	resMu         sync.Mutex
	results       chan Result
	resultsClosed bool

	cacheMu sync.Mutex
	cache   map[string]interface{}

	activeBackgroundWorkers sync.WaitGroup
}

// New builds an engine, loads calibration when configured, and starts the
// worker. monoSrc may be nil to run stereo-only.
func New(conf Config, monoSrc mono.Source, logger golog.Logger) (*Engine, error) {
	if err := conf.Stereo.Validate(); err != nil {
		return nil, err
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = 4
	}
	matcher, err := stereo.NewMatcher(conf.Stereo)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		conf:       conf,
		logger:     logger,
		matcher:    matcher,
		calibrator: depth.NewCalibrator(conf.Calibration, logger),
		monoSrc:    monoSrc,
		running:    true,
		results:    make(chan Result, conf.QueueSize*2),
		cache:      map[string]interface{}{},
	}
	e.cond = sync.NewCond(&e.mu)
	if conf.CalibrationDir != "" {
		cal, err := transform.LoadStereoCalibration(conf.CalibrationDir)
		if err != nil {
			return nil, err
		}
		e.calib = cal
	}
	e.sessionID.Store(time.Now().UnixMilli())

	e.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(e.workerLoop, e.activeBackgroundWorkers.Done)
	return e, nil
}

// Results delivers one envelope per submitted request, in submission order
// within a session.
func (e *Engine) Results() <-chan Result {
	return e.results
}

// SessionID returns the current session id stamped on new requests.
func (e *Engine) SessionID() int64 {
	return e.sessionID.Load()
}

// Submit enqueues a frame pair. The request is stamped with the current
// session id when it carries none.
func (e *Engine) Submit(req *Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrStopped
	}
	if len(e.queue) >= e.conf.QueueSize {
		return ErrQueueFull
	}
	if req.SessionID == 0 {
		req.SessionID = e.sessionID.Load()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	e.queue = append(e.queue, req)
	e.cond.Signal()
	return nil
}

// CancelCurrentTask clears the queue, interrupts the in-flight request, and
// emits one synthetic failed result so any awaiter unblocks.
func (e *Engine) CancelCurrentTask() {
	e.mu.Lock()
	e.queue = e.queue[:0]
	inFlight := e.cancelCurrent != nil
	if inFlight {
		// the worker reports the cancelled in-flight request itself
		e.cancelCurrent()
	}
	sid := e.sessionID.Load()
	e.mu.Unlock()
	if !inFlight {
		e.emit(Result{
			SessionID:    sid,
			ErrorKind:    ErrKindTaskCancelled,
			ErrorMessage: "task cancelled by host",
		})
	}
}

// ResetSession clears the queue and advances the session id; receivers must
// drop results stamped with older ids.
func (e *Engine) ResetSession() int64 {
	e.mu.Lock()
	e.queue = e.queue[:0]
	e.mu.Unlock()
	id := time.Now().UnixMilli()
	if id <= e.sessionID.Load() {
		id = e.sessionID.Load() + 1
	}
	e.sessionID.Store(id)
	return id
}

// Stop shuts the worker down and waits for it. The mono runtime is released
// here.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	if e.cancelCurrent != nil {
		e.cancelCurrent()
	}
	e.cond.Broadcast()
	e.mu.Unlock()
	e.activeBackgroundWorkers.Wait()
	if e.monoSrc != nil {
		if err := e.monoSrc.Close(); err != nil {
			e.logger.Errorw("error closing mono depth source", "error", err)
		}
	}
	e.resMu.Lock()
	e.resultsClosed = true
	close(e.results)
	e.resMu.Unlock()
}

// SetQMatrix injects an external 4x4 or 3x4 reprojection matrix, used when
// frames arrive already rectified upstream.
func (e *Engine) SetQMatrix(q *mat.Dense) error {
	params, err := depth.QParamsFromMatrix(q)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.qOverride = params
	e.mu.Unlock()
	return nil
}

// SetBaseline injects reprojection parameters directly from a baseline and
// focal length.
func (e *Engine) SetBaseline(baselineMm, focalPx, cx, cy float64) error {
	params, err := depth.NewQParams(baselineMm, focalPx, cx, cy)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.qOverride = params
	e.mu.Unlock()
	return nil
}

// Cached returns a copy-free reference to a named intermediate of the most
// recent frame, for the debug view.
func (e *Engine) Cached(name string) (interface{}, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	v, ok := e.cache[name]
	return v, ok
}

func (e *Engine) setCached(name string, v interface{}) {
	e.cacheMu.Lock()
	e.cache[name] = v
	e.cacheMu.Unlock()
}

func (e *Engine) emit(res Result) {
	e.resMu.Lock()
	defer e.resMu.Unlock()
	if e.resultsClosed {
		return
	}
	select {
	case e.results <- res:
	default:
		// receiver fell behind; drop the oldest to keep results fresh
		select {
		case <-e.results:
		default:
		}
		e.results <- res
	}
}

func (e *Engine) workerLoop() {
	for {
		e.mu.Lock()
		for e.running && len(e.queue) == 0 {
			e.cond.Wait()
		}
		if !e.running {
			e.mu.Unlock()
			return
		}
		req := e.queue[0]
		e.queue = e.queue[1:]
		ctx, cancel := context.WithCancel(context.Background())
		e.cancelCurrent = cancel
		e.mu.Unlock()

		res := e.process(ctx, req)

		e.mu.Lock()
		e.cancelCurrent = nil
		e.mu.Unlock()
		cancel()

		if res != nil {
			e.emit(*res)
		}
	}
}

// process runs the full pipeline for one request. Failures downgrade rather
// than abort: mono problems fall back to stereo-only, calibration problems
// keep the stereo depth verbatim.
func (e *Engine) process(ctx context.Context, req *Request) *Result {
	res := &Result{SessionID: req.SessionID}
	if ctx.Err() != nil {
		res.ErrorKind = ErrKindTaskCancelled
		res.ErrorMessage = "task cancelled by host"
		return res
	}
	e.procMu.Lock()
	defer e.procMu.Unlock()

	left := e.preprocess(req.Left)
	right := e.preprocess(req.Right)
	if left == nil || right == nil || left.Width() != right.Width() || left.Height() != right.Height() {
		res.ErrorKind = ErrKindResolutionMismatch
		res.ErrorMessage = "left and right frames differ in size"
		return res
	}

	left, right, err := e.rectify(left, right)
	if err != nil {
		res.ErrorKind = ErrKindResolutionMismatch
		res.ErrorMessage = err.Error()
		return res
	}
	e.setCached(CachePreprocessed, left)

	qp, err := e.reprojection(req, left.Width(), left.Height())
	if err != nil {
		res.ErrorKind = ErrKindCalibrationLoad
		res.ErrorMessage = err.Error()
		return res
	}

	// stereo and mono branches run in parallel and join before calibration
	var disp, stereoDepth, monoRaw *rimage.FloatMap
	var stereoErr, monoErr error
	branches := []utils.SimpleFunc{
		func(ctx context.Context) error {
			disp, stereoDepth, stereoErr = e.stereoBranch(left, right, qp)
			return nil
		},
	}
	if e.monoSrc != nil && !e.monoDisabled {
		branches = append(branches, func(ctx context.Context) error {
			monoRaw, monoErr = e.monoSrc.Infer(ctx, left)
			return nil
		})
	}
	err = utils.RunInParallel(ctx, branches)
	if ctx.Err() != nil {
		res.ErrorKind = ErrKindTaskCancelled
		res.ErrorMessage = "task cancelled by host"
		return res
	}
	if err != nil {
		res.ErrorKind = ErrKindInference
		res.ErrorMessage = err.Error()
		return res
	}

	if stereoErr != nil {
		if errors.Is(stereoErr, depth.ErrDegenerateDisparity) {
			res.Disparity = disp
			res.DepthMap = stereoDepth
			res.Width, res.Height = stereoDepth.Width(), stereoDepth.Height()
			res.ErrorKind = ErrKindDegenerateDisparity
			res.ErrorMessage = stereoErr.Error()
			return res
		}
		// anything else from the matcher is a frame geometry problem
		res.ErrorMessage = stereoErr.Error()
		res.ErrorKind = ErrKindResolutionMismatch
		return res
	}
	e.setCached(CacheDisparity, disp)
	e.setCached(CacheStereoDepth, stereoDepth)
	e.logger.Debugw("stereo branch complete",
		"median_disparity", utils.MedianF32(disp.ValidValues()),
		"estimated_z_mm", utils.MedianF32(stereoDepth.ValidValues()),
		"valid_pixels", stereoDepth.ValidCount(),
	)
	if monoErr != nil {
		// mono stays off for the rest of the session; stereo still works
		e.monoDisabled = true
		e.logger.Warnw("mono depth failed, continuing stereo-only", "error", monoErr)
		monoRaw = nil
		res.ErrorKind = ErrKindInference
		res.ErrorMessage = monoErr.Error()
	}

	final := stereoDepth
	if monoRaw != nil {
		e.setCached(CacheMonoDepth, monoRaw)
		res.MonoRaw = monoRaw
		final = e.fusionStage(res, disp, stereoDepth, monoRaw)
	} else {
		res.CalibrationSuccess = false
		if e.monoSrc != nil && res.ErrorKind == ErrKindNone {
			res.ErrorKind = ErrKindFusionUnavailable
			res.ErrorMessage = "mono depth unavailable, returning stereo depth"
		}
	}

	roi := image.Rect(0, 0, final.Width(), final.Height())
	if req.Apply43Crop {
		if req.CropROI != nil {
			roi = *req.CropROI
		} else {
			roi = crop43ROI(final.Width(), final.Height())
		}
	}
	res.CropROI = roi
	res.DepthMap = cropMap(final, roi)
	res.Disparity = cropMap(disp, roi)
	res.MonoRaw = cropMap(res.MonoRaw, roi)
	res.MonoCalibrated = cropMap(res.MonoCalibrated, roi)
	res.Confidence = cropMap(res.Confidence, roi)
	res.Width, res.Height = res.DepthMap.Width(), res.DepthMap.Height()
	res.Success = true
	e.setCached(CacheFused, res.DepthMap)
	return res
}

// fusionStage calibrates the mono depth against stereo and fuses the two.
// Any failure returns the stereo depth untouched.
func (e *Engine) fusionStage(
	res *Result,
	disp, stereoDepth, monoRaw *rimage.FloatMap,
) *rimage.FloatMap {
	cal, err := e.calibrator.Calibrate(stereoDepth, monoRaw, disp)
	if err != nil {
		e.logger.Warnw("mono calibration failed, using stereo depth verbatim", "error", err)
		res.ErrorKind = ErrKindCalibrationFailure
		res.ErrorMessage = err.Error()
		res.CalibrationSuccess = false
		return stereoDepth
	}
	res.CalibrationScale = cal.Scale
	res.CalibrationBias = cal.Bias
	res.CalibrationSuccess = true
	if cal.Mask != nil {
		e.setCached(CacheCalibrationMask, cal.Mask)
	}

	monoCal := cal.Apply(monoRaw)
	e.setCached(CacheCalibrated, monoCal)
	res.MonoCalibrated = monoCal

	conf := depth.BuildConfidence(disp, stereoDepth, e.conf.Confidence)
	e.setCached(CacheConfidence, conf)
	res.Confidence = conf

	return depth.Fuse(stereoDepth, monoCal, conf, e.conf.Fuse)
}

// stereoBranch computes disparity and reprojects it to metric depth.
func (e *Engine) stereoBranch(left, right *rimage.Image, qp *depth.QParams) (*rimage.FloatMap, *rimage.FloatMap, error) {
	disp, err := e.matcher.Compute(left.ToGray(), right.ToGray())
	if err != nil {
		return nil, nil, err
	}
	stereoDepth, err := depth.FromDisparity(disp, qp)
	if err != nil {
		return disp, stereoDepth, err
	}
	return disp, depth.Filter(stereoDepth, nil), nil
}

// rectify warps the pair through the calibration LUTs, building them on the
// first frame. Pairs pass through untouched when no calibration is loaded.
func (e *Engine) rectify(left, right *rimage.Image) (*rimage.Image, *rimage.Image, error) {
	if e.calib == nil {
		return left, right, nil
	}
	if e.rectifier == nil {
		rect, err := transform.NewRectifier(e.calib, left.Width(), left.Height())
		if err != nil {
			return nil, nil, err
		}
		e.rectifier = rect
		// exclude the unmatched left band from calibration sampling
		conf := e.conf.Calibration
		conf.LeftBoundX = utils.MaxInt(rect.ROI1.Min.X, rect.ROI2.Min.X)
		e.calibrator = depth.NewCalibrator(conf, e.logger)
	}
	return e.rectifier.RectifyPair(left, right)
}

// reprojection picks Q parameters in priority order: injected Q, derived
// rectification, then per-request baseline and focal length.
func (e *Engine) reprojection(req *Request, w, h int) (*depth.QParams, error) {
	e.mu.Lock()
	override := e.qOverride
	e.mu.Unlock()
	if override != nil {
		return override, nil
	}
	if e.rectifier != nil {
		return depth.QParamsFromMatrix(e.rectifier.Q)
	}
	if req.BaselineMm > 0 && req.FocalPx > 0 {
		return depth.NewQParams(req.BaselineMm, req.FocalPx, float64(w)/2, float64(h)/2)
	}
	return nil, errors.New("no reprojection source: need calibration, a Q matrix, or baseline+focal")
}

// LeftBoundX returns the left edge of the stereo overlap, the max of the
// two rectified ROIs, used to exclude unmatched columns from calibration.
func (e *Engine) LeftBoundX() int {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	if e.rectifier == nil {
		return 0
	}
	return utils.MaxInt(e.rectifier.ROI1.Min.X, e.rectifier.ROI2.Min.X)
}
