// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package recordio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/brio/errors"
	"github.com/grailbio/brio/recordio/recordioiov"
)

// TransformerFactory constructs a TransformFunc from the config part of
// a transformer spec ("name config").
type TransformerFactory func(config string) (TransformFunc, error)

type transformerRegistry struct {
	mu             sync.Mutex
	transformers   map[string]TransformerFactory
	untransformers map[string]TransformerFactory
}

var registry = &transformerRegistry{
	transformers:   make(map[string]TransformerFactory),
	untransformers: make(map[string]TransformerFactory),
}

// RegisterTransformer registers a block transformer and its inverse
// under name. It panics if name is already registered. Transformers are
// usually registered by the Init function of packages such as
// recordiozstd.
func RegisterTransformer(name string, transformer, untransformer TransformerFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.transformers[name]; ok {
		panic(fmt.Sprintf("recordio: transformer %q registered twice", name))
	}
	registry.transformers[name] = transformer
	registry.untransformers[name] = untransformer
}

// RegisteredTransformers returns the sorted names of the registered
// transformers.
func RegisteredTransformers() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	names := make([]string, 0, len(registry.transformers))
	for name := range registry.transformers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseTransformerSpec(spec string) (name, config string) {
	spec = strings.TrimSpace(spec)
	if i := strings.IndexAny(spec, " \t"); i >= 0 {
		return spec[:i], strings.TrimSpace(spec[i+1:])
	}
	return spec, ""
}

func (r *transformerRegistry) build(specs []string, factories map[string]TransformerFactory) ([]TransformFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fns := make([]TransformFunc, 0, len(specs))
	for _, spec := range specs {
		name, config := parseTransformerSpec(spec)
		factory, ok := factories[name]
		if !ok {
			return nil, errors.E(errors.NotSupported, fmt.Sprintf("recordio: transformer %q not registered", name))
		}
		fn, err := factory(config)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("recordio: transformer %q", spec), err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// getTransformer returns the composition of the transformers named by
// specs, applied in order.
func (r *transformerRegistry) getTransformer(specs []string) (TransformFunc, error) {
	fns, err := r.build(specs, r.transformers)
	if err != nil {
		return nil, err
	}
	return chain(fns), nil
}

// GetUntransformer returns the inverse of getTransformer(specs): the
// untransformers applied in reverse order.
func (r *transformerRegistry) GetUntransformer(specs []string) (TransformFunc, error) {
	fns, err := r.build(specs, r.untransformers)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(fns)-1; i < j; i, j = i+1, j-1 {
		fns[i], fns[j] = fns[j], fns[i]
	}
	return chain(fns), nil
}

func chain(fns []TransformFunc) TransformFunc {
	switch len(fns) {
	case 0:
		return idTransform
	case 1:
		return fns[0]
	}
	return func(scratch []byte, in [][]byte) ([]byte, error) {
		var (
			out []byte
			err error
		)
		for i, fn := range fns {
			if i > 0 {
				in = [][]byte{out}
				scratch = nil
			}
			if out, err = fn(scratch, in); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

// idTransform concatenates its input.
func idTransform(scratch []byte, in [][]byte) ([]byte, error) {
	out := recordioiov.Slice(scratch, recordioiov.TotalBytes(in))
	n := 0
	for _, b := range in {
		n += copy(out[n:], b)
	}
	return out, nil
}
