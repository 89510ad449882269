package motion

import (
	"context"
	"errors"
)

// Unsupported reports whether err means the capability is absent.
func Unsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func BasePose(ctx context.Context, s Service) (Pose, error) {
	p, ok := s.(Poser)
	if !ok {
		return Pose{}, ErrUnsupported
	}
	return p.Pose(ctx)
}

func SetCollisionProtection(ctx context.Context, s Service, chain string, enabled bool) error {
	c, ok := s.(CollisionGuard)
	if !ok {
		return ErrUnsupported
	}
	return c.SetCollisionProtection(ctx, chain, enabled)
}

func SetAdaptiveStiffness(ctx context.Context, s Service, enabled bool) error {
	a, ok := s.(StiffnessAdapter)
	if !ok {
		return ErrUnsupported
	}
	return a.SetAdaptiveStiffness(ctx, enabled)
}

func SetBreathing(ctx context.Context, s Service, group string, enabled bool) error {
	b, ok := s.(Breather)
	if !ok {
		return ErrUnsupported
	}
	return b.SetBreathing(ctx, group, enabled)
}

func StopAwareness(ctx context.Context, s Service) error {
	a, ok := s.(AwarenessTracker)
	if !ok {
		return ErrUnsupported
	}
	return a.StopAwareness(ctx)
}

func SetAutonomyState(ctx context.Context, s Service, state string) error {
	a, ok := s.(AutonomyController)
	if !ok {
		return ErrUnsupported
	}
	return a.SetAutonomyState(ctx, state)
}

func Wake(ctx context.Context, s Service) error {
	w, ok := s.(Waker)
	if !ok {
		return ErrUnsupported
	}
	return w.Wake(ctx)
}
