// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools holds the tool routing registry and the dispatcher that
// invokes tool endpoints under the per-turn guardrail budget.
package tools

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrUnknownTool indicates a tool name with no registry entry. This is a
// programming error: fatal, never retried.
var ErrUnknownTool = errors.New("unknown tool")

//go:embed registry.yaml
var embeddedRegistry []byte

// ToolRoute is one registry entry: the transport endpoint for a tool.
type ToolRoute struct {
	Name        string `yaml:"name" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Method      string `yaml:"method" json:"method"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type registryFile struct {
	Tools []ToolRoute `yaml:"tools"`
}

// Registry maps tool names to their routes. The embedded registry ships
// with the binary; an optional override file can replace it at runtime and
// is hot-reloaded on change.
//
// Thread Safety: Safe for concurrent use via RWMutex.
type Registry struct {
	mu      sync.RWMutex
	routes  map[string]ToolRoute
	watcher *fsnotify.Watcher
}

// NewRegistry loads the embedded registry. If overridePath is non-empty and
// the file exists, it replaces the embedded routes and is watched for
// changes; a broken override leaves the previous routes in place.
func NewRegistry(overridePath string) (*Registry, error) {
	r := &Registry{}

	routes, err := parseRegistry(embeddedRegistry)
	if err != nil {
		return nil, fmt.Errorf("parse embedded tool registry: %w", err)
	}
	r.routes = routes

	if overridePath != "" {
		if err := r.loadOverride(overridePath); err != nil {
			slog.Warn("Tool registry override not loaded, using embedded routes",
				"path", overridePath, "error", err)
		}
		if err := r.watch(overridePath); err != nil {
			slog.Warn("Tool registry override watch failed",
				"path", overridePath, "error", err)
		}
	}

	return r, nil
}

// Resolve returns the route for a tool name or ErrUnknownTool.
func (r *Registry) Resolve(name string) (ToolRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[name]
	if !ok {
		return ToolRoute{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return route, nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	return names
}

// Close stops the override watcher, if any.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) loadOverride(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	routes, err := parseRegistry(raw)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()

	slog.Info("Tool registry loaded", "path", path, "tools", len(routes))
	return nil
}

func (r *Registry) watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := r.loadOverride(path); err != nil {
						slog.Warn("Tool registry reload failed, keeping previous routes",
							"path", path, "error", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Tool registry watcher error", "error", err)
			}
		}
	}()

	return nil
}

func parseRegistry(raw []byte) (map[string]ToolRoute, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if len(file.Tools) == 0 {
		return nil, errors.New("registry defines no tools")
	}

	routes := make(map[string]ToolRoute, len(file.Tools))
	for _, route := range file.Tools {
		if route.Name == "" || route.Path == "" {
			return nil, fmt.Errorf("registry entry missing name or path: %+v", route)
		}
		if route.Method == "" {
			route.Method = "POST"
		}
		routes[route.Name] = route
	}
	return routes, nil
}
