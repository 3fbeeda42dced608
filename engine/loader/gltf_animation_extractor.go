package loader

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/srender/engine/model"
)

// stepEpsilon is how far before the next key a STEP sampler's held value ends.
const stepEpsilon = 1e-4

// extractAnimations converts every animation into a clip over skel's joints. Channels that
// target nodes outside the skeleton, and morph weight channels, are dropped. CUBICSPLINE
// samplers keep their values and lose their tangents; STEP samplers are emulated with a
// duplicate key just before each change.
//
// Parameters:
//   - skel: the skeleton the clips animate
//
// Returns:
//   - []*model.AnimationClip: one clip per animation, channels ordered by joint
//   - error: the first malformed sampler
func (p *gltfParser) extractAnimations(skel *gltfSkeleton) ([]*model.AnimationClip, error) {
	clips := make([]*model.AnimationClip, 0, len(p.doc.Animations))
	for ai, anim := range p.doc.Animations {
		clip := &model.AnimationClip{Name: anim.Name}
		if clip.Name == "" {
			clip.Name = fmt.Sprintf("animation_%d", ai)
		}
		byJoint := make(map[int32]*model.AnimationChannel)
		for ci, ch := range anim.Channels {
			if ch.Target.Node == nil {
				continue
			}
			joint, ok := skel.nodeToJoint[*ch.Target.Node]
			if !ok {
				continue
			}
			if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
				return nil, fmt.Errorf("%w: %s channel %d sampler %d", ErrInvalidGLTF, clip.Name, ci, ch.Sampler)
			}
			s := anim.Samplers[ch.Sampler]
			times, err := p.scalars(s.Input)
			if err != nil {
				return nil, fmt.Errorf("%s channel %d times: %w", clip.Name, ci, err)
			}
			if len(times) > 0 {
				clip.Duration = max(clip.Duration, times[len(times)-1])
			}
			out := byJoint[joint]
			if out == nil {
				out = &model.AnimationChannel{JointIndex: joint}
				byJoint[joint] = out
			}

			switch ch.Target.Path {
			case gltfPathTranslation, gltfPathScale:
				values, err := p.vec3s(s.Output)
				if err != nil {
					return nil, fmt.Errorf("%s channel %d values: %w", clip.Name, ci, err)
				}
				keys := vectorKeys(times, splineValues(values, s.Interpolation), s.Interpolation)
				if ch.Target.Path == gltfPathTranslation {
					out.PositionKeys = keys
				} else {
					out.ScaleKeys = keys
				}
			case gltfPathRotation:
				values, err := p.vec4s(s.Output)
				if err != nil {
					return nil, fmt.Errorf("%s channel %d values: %w", clip.Name, ci, err)
				}
				out.RotationKeys = quaternionKeys(times, splineValues(values, s.Interpolation), s.Interpolation)
			}
		}
		for _, ch := range byJoint {
			if len(ch.PositionKeys)+len(ch.RotationKeys)+len(ch.ScaleKeys) > 0 {
				clip.Channels = append(clip.Channels, *ch)
			}
		}
		slices.SortFunc(clip.Channels, func(a, b model.AnimationChannel) int {
			return int(a.JointIndex - b.JointIndex)
		})
		clips = append(clips, clip)
	}
	return clips, nil
}

// splineValues drops the in and out tangents of CUBICSPLINE output, which stores three
// values per key.
func splineValues[T any](values []T, interpolation string) []T {
	if interpolation != gltfInterpolationCubicSpline {
		return values
	}
	out := make([]T, len(values)/3)
	for i := range out {
		out[i] = values[i*3+1]
	}
	return out
}

// stepKeys expands times and values so linear interpolation holds each value until the next
// key.
func stepKeys[T any](times []float32, values []T) ([]float32, []T) {
	n := min(len(times), len(values))
	if n < 2 {
		return times[:n], values[:n]
	}
	ts := make([]float32, 0, n*2)
	vs := make([]T, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			ts = append(ts, max(times[i]-stepEpsilon, times[i-1]))
			vs = append(vs, values[i-1])
		}
		ts = append(ts, times[i])
		vs = append(vs, values[i])
	}
	return ts, vs
}

func vectorKeys(times []float32, values [][3]float32, interpolation string) []model.VectorKeyframe {
	if interpolation == gltfInterpolationStep {
		times, values = stepKeys(times, values)
	}
	keys := make([]model.VectorKeyframe, min(len(times), len(values)))
	for i := range keys {
		keys[i] = model.VectorKeyframe{Time: times[i], Value: values[i]}
	}
	return keys
}

func quaternionKeys(times []float32, values [][4]float32, interpolation string) []model.QuaternionKeyframe {
	if interpolation == gltfInterpolationStep {
		times, values = stepKeys(times, values)
	}
	keys := make([]model.QuaternionKeyframe, min(len(times), len(values)))
	for i := range keys {
		keys[i] = model.QuaternionKeyframe{Time: times[i], Value: values[i]}
	}
	return keys
}
