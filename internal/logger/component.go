// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"strings"

	"github.com/gobuffalo/envy"
)

// Component is an enumeration representing the parts of the library that emit logs.
type Component int

const (
	// ComponentAll enables logging for all components.
	ComponentAll Component = iota

	// ComponentSerialization enables class map and known-type logging.
	ComponentSerialization

	// ComponentWireMessage enables batch splitting and frame decoding logging.
	ComponentWireMessage

	// ComponentCompression enables compressor logging.
	ComponentCompression
)

// String returns the literal for the component.
func (component Component) String() string {
	switch component {
	case ComponentSerialization:
		return string(ComponentLiteralSerialization)
	case ComponentWireMessage:
		return string(ComponentLiteralWireMessage)
	case ComponentCompression:
		return string(ComponentLiteralCompression)
	default:
		return string(ComponentLiteralAll)
	}
}

// ComponentLiteral is the string representation of a Component.
type ComponentLiteral string

const (
	ComponentLiteralAll           ComponentLiteral = "all"
	ComponentLiteralSerialization ComponentLiteral = "serialization"
	ComponentLiteralWireMessage   ComponentLiteral = "wire"
	ComponentLiteralCompression   ComponentLiteral = "compression"
)

// Component returns the Component for the literal. Unknown literals map onto ComponentAll.
func (componentLiteral ComponentLiteral) Component() Component {
	switch componentLiteral {
	case ComponentLiteralSerialization:
		return ComponentSerialization
	case ComponentLiteralWireMessage:
		return ComponentWireMessage
	case ComponentLiteralCompression:
		return ComponentCompression
	default:
		return ComponentAll
	}
}

type componentEnvVar string

const (
	componentEnvVarAll           componentEnvVar = "DOCWIRE_LOG_ALL"
	componentEnvVarSerialization componentEnvVar = "DOCWIRE_LOG_SERIALIZATION"
	componentEnvVarWireMessage   componentEnvVar = "DOCWIRE_LOG_WIRE"
	componentEnvVarCompression   componentEnvVar = "DOCWIRE_LOG_COMPRESSION"
)

var allComponentEnvVars = []componentEnvVar{
	componentEnvVarAll,
	componentEnvVarSerialization,
	componentEnvVarWireMessage,
	componentEnvVarCompression,
}

func (env componentEnvVar) component() Component {
	switch env {
	case componentEnvVarSerialization:
		return ComponentSerialization
	case componentEnvVarWireMessage:
		return ComponentWireMessage
	case componentEnvVarCompression:
		return ComponentCompression
	default:
		return ComponentAll
	}
}

// getEnvComponentLevels reads the component levels from the environment. envy also loads a
// .env file from the working directory when one exists. A level set for "all" applies to every
// component that has no level of its own.
func getEnvComponentLevels() map[Component]Level {
	componentLevels := make(map[Component]Level)

	var globalLevel Level
	if value := envy.Get(string(componentEnvVarAll), ""); value != "" {
		globalLevel = ParseLevel(strings.TrimSpace(value))
	}

	for _, envVar := range allComponentEnvVars {
		if envVar == componentEnvVarAll {
			continue
		}

		level := globalLevel
		if value := envy.Get(string(envVar), ""); value != "" {
			level = ParseLevel(strings.TrimSpace(value))
		}

		if level != OffLevel {
			componentLevels[envVar.component()] = level
		}
	}

	return componentLevels
}

// mergeComponentLevels merges the maps in order; later maps take priority.
func mergeComponentLevels(componentLevels ...map[Component]Level) map[Component]Level {
	merged := make(map[Component]Level)

	for _, levels := range componentLevels {
		for component, level := range levels {
			merged[component] = level
		}
	}

	return merged
}
