// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"sync"

	"github.com/samber/oops"
)

// FacadeFactory builds the facade for one active driver.
type FacadeFactory func(active Driver) (*Service, error)

// Registry lazily builds one facade per driver name. It is owned by the
// composition root and safe for concurrent use; after an entry is built,
// lookups never block.
type Registry struct {
	drivers     *DriverSet
	defaultName string
	build       FacadeFactory
	facades     sync.Map // driver name -> *facadeEntry
}

type facadeEntry struct {
	once sync.Once
	svc  *Service
	err  error
}

// NewRegistry creates a Registry. defaultName must name a registered driver.
func NewRegistry(drivers *DriverSet, defaultName string, build FacadeFactory) (*Registry, error) {
	if drivers == nil {
		return nil, oops.Errorf("driver set is required")
	}
	if build == nil {
		return nil, oops.Errorf("facade factory is required")
	}
	if defaultName == "" {
		defaultName = DefaultDriverName
	}
	if _, ok := drivers.Get(defaultName); !ok {
		return nil, oops.Code("DRIVER_NOT_REGISTERED").
			With("driver", defaultName).
			Errorf("default auth driver %q is not registered", defaultName)
	}
	return &Registry{drivers: drivers, defaultName: defaultName, build: build}, nil
}

// DefaultName returns the name used by Facade("").
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Drivers returns the registered drivers.
func (r *Registry) Drivers() *DriverSet {
	return r.drivers
}

// Facade returns the facade bound to the named driver, building it on first
// use. An empty name selects the default driver. A failed build is cached.
func (r *Registry) Facade(name string) (*Service, error) {
	if name == "" {
		name = r.defaultName
	}
	driver, ok := r.drivers.Get(name)
	if !ok {
		return nil, oops.Code("DRIVER_NOT_REGISTERED").
			With("driver", name).
			Errorf("auth driver %q is not registered", name)
	}

	v, _ := r.facades.LoadOrStore(name, &facadeEntry{})
	entry := v.(*facadeEntry)
	entry.once.Do(func() {
		entry.svc, entry.err = r.build(driver)
	})
	return entry.svc, entry.err
}
