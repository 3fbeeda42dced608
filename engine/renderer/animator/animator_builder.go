package animator

import (
	"github.com/Carmen-Shannon/srender/engine/model"
)

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithSkeleton is an option builder that sets the joint hierarchy of the Animator. It panics
// on an invalid hierarchy.
//
// Parameters:
//   - skel: the skeleton the clips animate
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the skeleton option to an animator
func WithSkeleton(skel *model.Skeleton) AnimatorBuilderOption {
	return func(a *animator) {
		a.SetSkeleton(skel)
	}
}

// WithClips is an option builder that registers animation clips in order.
//
// Parameters:
//   - clips: the clips to register
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the clips option to an animator
func WithClips(clips ...*model.AnimationClip) AnimatorBuilderOption {
	return func(a *animator) {
		for _, c := range clips {
			a.AddClip(c)
		}
	}
}

// WithModel is an option builder that takes the skeleton and every clip of an imported model.
//
// Parameters:
//   - m: the imported model, which must carry a skeleton
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the model option to an animator
func WithModel(m *model.ImportedModel) AnimatorBuilderOption {
	return func(a *animator) {
		a.SetSkeleton(m.Skeleton)
		for _, c := range m.Animations {
			a.AddClip(c)
		}
	}
}

// WithInstances is an option builder that registers one bind-pose instance per model index.
func WithInstances(modelIndices ...int) AnimatorBuilderOption {
	return func(a *animator) {
		for _, m := range modelIndices {
			a.AddInstance(m)
		}
	}
}
