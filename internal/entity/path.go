package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scenes/internal/domain"
)

// PathSeparator joins hops in an indirect field path, e.g. "Pump->Motor->Speed".
const PathSeparator = "->"

var errEmptySegment = errors.New("empty path segment")

// PathError reports which hop of an indirect path failed.
type PathError struct {
	Path    string
	Segment string
	Index   int
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: hop %d (%s): %v", e.Path, e.Index, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ParsePath splits path on "->" and trims each hop.
func ParsePath(path string) ([]string, error) {
	parts := strings.Split(path, PathSeparator)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &PathError{Path: path, Index: i, Err: errEmptySegment}
		}
		parts[i] = p
	}
	return parts, nil
}

// IsPath reports whether s names an indirect path.
func IsPath(s string) bool { return strings.Contains(s, PathSeparator) }

// Resolve walks every hop but the last, one read at a time, and returns the
// entity owning the final field together with that field's name.
func (a *Accessor) Resolve(ctx context.Context, start domain.EntityID, path string) (domain.EntityID, string, error) {
	hops, err := ParsePath(path)
	if err != nil {
		return 0, "", err
	}
	cur := start
	for i, hop := range hops[:len(hops)-1] {
		v, err := a.Lookup(ctx, cur, hop)
		if err != nil {
			return 0, "", &PathError{Path: path, Segment: hop, Index: i, Err: err}
		}
		if v == nil {
			return 0, "", &PathError{Path: path, Segment: hop, Index: i, Err: ErrNullReference}
		}
		if v.Kind != domain.KindEntityRef {
			return 0, "", &PathError{Path: path, Segment: hop, Index: i, Err: ErrNotReference}
		}
		ref, _ := v.AsEntityRef()
		if ref == nil {
			return 0, "", &PathError{Path: path, Segment: hop, Index: i, Err: ErrNullReference}
		}
		cur = *ref
	}
	return cur, hops[len(hops)-1], nil
}

// ReadPath reads a plain field name or an indirect path strictly.
func (a *Accessor) ReadPath(ctx context.Context, start domain.EntityID, path string) (*domain.Value, error) {
	target, field, err := a.Resolve(ctx, start, path)
	if err != nil {
		return nil, err
	}
	v, err := a.Lookup(ctx, target, field)
	if err != nil {
		if IsPath(path) {
			hops, _ := ParsePath(path)
			return nil, &PathError{Path: path, Segment: field, Index: len(hops) - 1, Err: err}
		}
		return nil, err
	}
	return v, nil
}

// WritePath writes raw to the field at the end of path.
func (a *Accessor) WritePath(ctx context.Context, start domain.EntityID, path string, raw any) error {
	target, field, err := a.Resolve(ctx, start, path)
	if err != nil {
		return err
	}
	return a.WriteValue(ctx, target, field, raw)
}
