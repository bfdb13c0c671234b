package transform

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Stereo calibration file names as written by the factory calibration rig.
const (
	LeftIntrinsicsFile  = "camera0_intrinsics.dat"
	RightIntrinsicsFile = "camera1_intrinsics.dat"
	RotTransFile        = "camera1_rot_trans.dat"
)

// ErrCalibrationLoad is returned when a calibration file is unreadable or malformed.
var ErrCalibrationLoad = errors.New("cannot load stereo calibration")

// NewCalibrationLoadError wraps ErrCalibrationLoad with the offending file and reason.
func NewCalibrationLoadError(path, reason string) error {
	return errors.Wrapf(ErrCalibrationLoad, "%s: %s", path, reason)
}

// CameraModel is one camera's intrinsic matrix plus its lens distortion.
type CameraModel struct {
	Intrinsics PinholeCameraIntrinsics
	Distortion *BrownConrady
}

// StereoCalibration is the immutable calibration of a stereo rig: both camera
// models and the pose of the right camera relative to the left.
type StereoCalibration struct {
	Left, Right CameraModel
	Rotation    *mat.Dense // 3x3
	Translation r3.Vector  // mm
}

// Baseline returns the distance between the two optical centers in mm.
func (sc *StereoCalibration) Baseline() float64 {
	return sc.Translation.Norm()
}

// CheckValid checks that both camera models and the extrinsics are usable.
func (sc *StereoCalibration) CheckValid() error {
	if sc == nil {
		return errors.Wrap(ErrCalibrationLoad, "calibration is nil")
	}
	if sc.Left.Intrinsics.Fx <= 0 || sc.Left.Intrinsics.Fy <= 0 {
		return errors.Wrap(ErrCalibrationLoad, "left camera focal length not positive")
	}
	if sc.Right.Intrinsics.Fx <= 0 || sc.Right.Intrinsics.Fy <= 0 {
		return errors.Wrap(ErrCalibrationLoad, "right camera focal length not positive")
	}
	if sc.Rotation == nil {
		return errors.Wrap(ErrCalibrationLoad, "missing rotation")
	}
	if sc.Baseline() <= 0 {
		return errors.Wrap(ErrCalibrationLoad, "zero baseline")
	}
	return nil
}

// LoadStereoCalibration reads the three calibration files from dir.
func LoadStereoCalibration(dir string) (*StereoCalibration, error) {
	left, err := loadCameraModel(filepath.Join(dir, LeftIntrinsicsFile))
	if err != nil {
		return nil, err
	}
	right, err := loadCameraModel(filepath.Join(dir, RightIntrinsicsFile))
	if err != nil {
		return nil, err
	}
	rot, trans, err := loadRotTrans(filepath.Join(dir, RotTransFile))
	if err != nil {
		return nil, err
	}
	sc := &StereoCalibration{Left: *left, Right: *right, Rotation: rot, Translation: trans}
	if err := sc.CheckValid(); err != nil {
		return nil, err
	}
	return sc, nil
}

func loadCameraModel(path string) (*CameraModel, error) {
	sections, err := parseTaggedSections(path)
	if err != nil {
		return nil, err
	}
	k := findSection(sections, "intrinsic")
	if len(k) < 9 {
		return nil, NewCalibrationLoadError(path, "expected 9 values after intrinsic tag")
	}
	d := findSection(sections, "distortion")
	if len(d) > 5 {
		d = d[:5]
	}
	dist, err := NewBrownConrady(d)
	if err != nil {
		return nil, NewCalibrationLoadError(path, err.Error())
	}
	return &CameraModel{
		Intrinsics: PinholeCameraIntrinsics{
			Fx:  k[0],
			Fy:  k[4],
			Ppx: k[2],
			Ppy: k[5],
		},
		Distortion: dist,
	}, nil
}

func loadRotTrans(path string) (*mat.Dense, r3.Vector, error) {
	sections, err := parseTaggedSections(path)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	r := findSection(sections, "r")
	if len(r) < 9 {
		return nil, r3.Vector{}, NewCalibrationLoadError(path, "expected 9 values after R tag")
	}
	t := findSection(sections, "t")
	if len(t) < 3 {
		return nil, r3.Vector{}, NewCalibrationLoadError(path, "expected 3 values after T tag")
	}
	return mat.NewDense(3, 3, r[:9]), r3.Vector{X: t[0], Y: t[1], Z: t[2]}, nil
}

type taggedSection struct {
	tag    string
	values []float64
}

// parseTaggedSections reads a calibration file as alternating tag lines and
// number runs. Any character other than digits, '.', '-', '+', 'e', 'E' acts
// as a separator when tokenizing numbers.
func parseTaggedSections(path string) ([]taggedSection, error) {
	//nolint:gosec
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, NewCalibrationLoadError(path, err.Error())
	}
	var sections []taggedSection
	for _, line := range strings.Split(string(contents), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if tag, rest, ok := splitTagLine(trimmed); ok {
			sections = append(sections, taggedSection{tag: tag})
			trimmed = rest
		}
		if len(sections) == 0 {
			// numbers before any tag have nowhere to go
			return nil, NewCalibrationLoadError(path, "values before first tag line")
		}
		vals := tokenizeNumbers(trimmed)
		last := &sections[len(sections)-1]
		last.values = append(last.values, vals...)
	}
	if len(sections) == 0 {
		return nil, NewCalibrationLoadError(path, "file is empty")
	}
	return sections, nil
}

// splitTagLine detects a "name:" tag at the start of the line and returns the
// lowercased name and whatever follows the colon.
func splitTagLine(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", line, false
	}
	name := strings.ToLower(strings.TrimSpace(line[:idx]))
	if name == "" || strings.ContainsAny(name, "0123456789") {
		return "", line, false
	}
	return name, line[idx+1:], true
}

func tokenizeNumbers(s string) []float64 {
	isNumChar := func(r rune) bool {
		return (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E'
	}
	var out []float64
	var token strings.Builder
	flush := func() {
		if token.Len() == 0 {
			return
		}
		if v, err := strconv.ParseFloat(token.String(), 64); err == nil {
			out = append(out, v)
		}
		token.Reset()
	}
	for _, r := range s {
		if isNumChar(r) {
			token.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func findSection(sections []taggedSection, prefix string) []float64 {
	for _, s := range sections {
		if strings.HasPrefix(s.tag, prefix) {
			return s.values
		}
	}
	return nil
}
