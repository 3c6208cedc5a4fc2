package node

import (
	"reflect"

	"golang.org/x/xerrors"
)

// injector keeps the components in the order of their injection.
//
// - implements node.Injector
type injector struct {
	deps []interface{}
}

// NewInjector returns an empty injector.
func NewInjector() Injector {
	return &injector{}
}

// Resolve implements node.Injector. The first component assignable to the
// pointed type wins.
func (inj *injector) Resolve(target interface{}) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr {
		return xerrors.Errorf("target must be a pointer, got %T", target)
	}

	if ptr.IsNil() {
		return xerrors.New("target is a nil pointer")
	}

	want := ptr.Elem().Type()

	for _, dep := range inj.deps {
		if reflect.TypeOf(dep).AssignableTo(want) {
			ptr.Elem().Set(reflect.ValueOf(dep))
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", want)
}

// Inject implements node.Injector. Nil is ignored.
func (inj *injector) Inject(dep interface{}) {
	if dep == nil {
		return
	}

	typ := reflect.TypeOf(dep)

	for i, other := range inj.deps {
		if reflect.TypeOf(other) == typ {
			inj.deps[i] = dep
			return
		}
	}

	inj.deps = append(inj.deps, dep)
}

// Get returns the component of type T from the injector.
func Get[T any](inj Injector) (T, error) {
	var dep T
	err := inj.Resolve(&dep)

	return dep, err
}
