// Package vars implements the typed variable tree processes read and write
// through, and the resolver that maps dotted or slashed paths onto it.
package vars

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Invocable is a host function mounted into the tree, e.g. a query the
// embedding application exposes under /lib.
type Invocable func(ctx context.Context, args []any) (any, error)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError is returned when a path segment does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Path)
}

// Is implements errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Split breaks a path into segments. Both "/" and "." separate segments,
// except that the relative segments "." and ".." are kept intact.
func Split(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "":
			continue
		case ".", "..":
			out = append(out, part)
			continue
		}
		for _, seg := range strings.Split(part, ".") {
			if seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}

// Join renders segments as an absolute path.
func Join(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// Resolve turns path into absolute segments. Paths starting with "/" are
// absolute, "~" stands for /home, everything else is relative to cwd.
func Resolve(cwd []string, path string) []string {
	var segs []string
	switch {
	case strings.HasPrefix(path, "/"):
	case path == "~" || strings.HasPrefix(path, "~/"):
		segs = []string{"home"}
		path = strings.TrimPrefix(path, "~")
	default:
		segs = append(segs, cwd...)
	}

	for _, seg := range Split(path) {
		switch seg {
		case ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, seg)
		}
	}
	return segs
}

// Lookup walks segs starting at root.
func Lookup(root any, segs []string) (any, error) {
	cur := root
	for i, seg := range segs {
		next, ok := child(cur, seg)
		if !ok {
			return nil, &NotFoundError{Path: Join(segs[:i+1])}
		}
		cur = next
	}
	return cur, nil
}

func child(node any, seg string) (any, bool) {
	switch node := node.(type) {
	case map[string]any:
		v, ok := node[seg]
		return v, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	case []string:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	}
	return nil, false
}

// Set stores v at segs below root, which must be a map. Intermediate maps
// are created as needed. Array parents accept an index up to their length,
// where the length appends.
func Set(root map[string]any, segs []string, v any) error {
	if len(segs) == 0 {
		return fmt.Errorf("cannot assign to /")
	}
	var parent any = root
	for i, seg := range segs[:len(segs)-1] {
		next, ok := child(parent, seg)
		if !ok || !isContainer(next) {
			m, isMap := parent.(map[string]any)
			if !isMap {
				return &NotFoundError{Path: Join(segs[:i+1])}
			}
			next = map[string]any{}
			m[seg] = next
		}
		parent = next
	}

	last := segs[len(segs)-1]
	switch parent := parent.(type) {
	case map[string]any:
		parent[last] = v
		return nil
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(parent) {
			return fmt.Errorf("%s: index out of range", Join(segs))
		}
		parent[i] = v
		return nil
	}
	return &NotFoundError{Path: Join(segs)}
}

// Delete removes the leaf at segs.
func Delete(root map[string]any, segs []string) error {
	if len(segs) == 0 {
		return fmt.Errorf("cannot remove /")
	}
	parent, err := Lookup(root, segs[:len(segs)-1])
	if err != nil {
		return err
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: not a map", Join(segs[:len(segs)-1]))
	}
	last := segs[len(segs)-1]
	if _, ok := m[last]; !ok {
		return &NotFoundError{Path: Join(segs)}
	}
	delete(m, last)
	return nil
}

// Keys lists the children of a node: sorted map keys or array indices.
func Keys(node any) []string {
	switch node := node.(type) {
	case map[string]any:
		out := make([]string, 0, len(node))
		for k := range node {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	case []any:
		return indices(len(node))
	case []string:
		return indices(len(node))
	}
	return nil
}

func indices(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// IsDir reports whether v has children that can be listed or entered.
func IsDir(v any) bool {
	switch v.(type) {
	case map[string]any, []any, []string:
		return true
	}
	return false
}
