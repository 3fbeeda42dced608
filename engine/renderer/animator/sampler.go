package animator

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/model"
	"github.com/chewxy/math32"
)

// keyIndex returns the index of the last keyframe at or before t, clamped to [0, n-2] so that
// index and index+1 always bracket the sample.
func keyIndex(n int, timeAt func(int) float32, t float32) int {
	i := sort.Search(n, func(i int) bool { return timeAt(i) > t }) - 1
	return max(0, min(i, n-2))
}

// segment returns the interpolation factor of t between two keyframe times, clamped to [0, 1].
func segment(t0, t1, t float32) float32 {
	d := t1 - t0
	if d <= 0 {
		return 0
	}
	return math32.Max(0, math32.Min(1, (t-t0)/d))
}

func lerp3(a, b [3]float32, f float32) [3]float32 {
	return [3]float32{
		a[0] + (b[0]-a[0])*f,
		a[1] + (b[1]-a[1])*f,
		a[2] + (b[2]-a[2])*f,
	}
}

// slerp interpolates two unit quaternions along the shorter arc.
func slerp(a, b [4]float32, f float32) [4]float32 {
	dot := a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
	if dot < 0 {
		b = [4]float32{-b[0], -b[1], -b[2], -b[3]}
		dot = -dot
	}
	var wa, wb float32
	if dot > 0.9995 {
		// nearly parallel: normalized lerp
		wa, wb = 1-f, f
	} else {
		theta := math32.Acos(dot)
		sinTheta := math32.Sin(theta)
		wa = math32.Sin((1-f)*theta) / sinTheta
		wb = math32.Sin(f*theta) / sinTheta
	}
	q := [4]float32{
		a[0]*wa + b[0]*wb,
		a[1]*wa + b[1]*wb,
		a[2]*wa + b[2]*wb,
		a[3]*wa + b[3]*wb,
	}
	l := math32.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if l == 0 {
		return [4]float32{0, 0, 0, 1}
	}
	return [4]float32{q[0] / l, q[1] / l, q[2] / l, q[3] / l}
}

func sampleVector(keys []model.VectorKeyframe, t float32, def [3]float32) [3]float32 {
	switch len(keys) {
	case 0:
		return def
	case 1:
		return keys[0].Value
	}
	i := keyIndex(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return lerp3(keys[i].Value, keys[i+1].Value, segment(keys[i].Time, keys[i+1].Time, t))
}

func sampleQuaternion(keys []model.QuaternionKeyframe, t float32, def [4]float32) [4]float32 {
	switch len(keys) {
	case 0:
		return def
	case 1:
		return keys[0].Value
	}
	i := keyIndex(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return slerp(keys[i].Value, keys[i+1].Value, segment(keys[i].Time, keys[i+1].Time, t))
}

// SampleClip writes the joint-local pose of clip at time t into out. Joints without a channel
// keep their bind-pose transform.
//
// Parameters:
//   - skel: the skeleton the clip animates
//   - clip: the clip to sample, nil for the bind pose
//   - t: the clip time in seconds
//   - out: destination, one transform per joint
func SampleClip(skel *model.Skeleton, clip *model.AnimationClip, t float32, out []model.Transform) {
	if len(out) < len(skel.Joints) {
		panic(fmt.Sprintf("animator: pose buffer of %d for %d joints", len(out), len(skel.Joints)))
	}
	for i, j := range skel.Joints {
		out[i] = j.Local
	}
	if clip == nil {
		return
	}
	for _, ch := range clip.Channels {
		if ch.JointIndex < 0 || int(ch.JointIndex) >= len(skel.Joints) {
			continue
		}
		local := &out[ch.JointIndex]
		local.Translation = sampleVector(ch.PositionKeys, t, local.Translation)
		local.Rotation = sampleQuaternion(ch.RotationKeys, t, local.Rotation)
		local.Scale = sampleVector(ch.ScaleKeys, t, local.Scale)
	}
}

// BlendPoses interpolates two poses joint by joint into out.
//
// Parameters:
//   - from: the pose at weight 0
//   - to: the pose at weight 1
//   - weight: the blend factor in [0, 1]
//   - out: destination, may alias from
func BlendPoses(from, to []model.Transform, weight float32, out []model.Transform) {
	for i := range out {
		out[i] = model.Transform{
			Translation: lerp3(from[i].Translation, to[i].Translation, weight),
			Rotation:    slerp(from[i].Rotation, to[i].Rotation, weight),
			Scale:       lerp3(from[i].Scale, to[i].Scale, weight),
		}
	}
}

// ComposeJointMatrices flattens joint-local transforms into the bind-to-current matrices the
// skinning pass consumes. Parents precede children, so one forward pass composes every
// joint-to-model transform before it is needed.
//
// Parameters:
//   - skel: the validated skeleton
//   - locals: one joint-local transform per joint
//   - out: destination, one matrix per joint (model-space current * inverse bind)
func ComposeJointMatrices(skel *model.Skeleton, locals []model.Transform, out []common.Mat4) {
	n := len(skel.Joints)
	if len(locals) < n || len(out) < n {
		panic(fmt.Sprintf("animator: compose %d joints with %d locals into %d matrices", n, len(locals), len(out)))
	}
	// out first holds joint-to-model, then is multiplied by the inverse bind in place
	for i, j := range skel.Joints {
		local := locals[i].Matrix()
		if j.Parent == model.NoParent {
			out[i] = local
			continue
		}
		if int(j.Parent) >= i {
			panic(fmt.Sprintf("animator: joint %d parent %d does not precede it", i, j.Parent))
		}
		out[i] = out[j.Parent].Mul(local)
	}
	for i, j := range skel.Joints {
		out[i] = out[i].Mul(j.InverseBind)
	}
}
