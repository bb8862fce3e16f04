// Package render turns a spatial view into a frame of draw commands. The
// frame is pure data; imperative backends (the SVG encoder here, a canvas on
// the client) replay it.
package render

import "github.com/venue-console/opmap/internal/geometry"

// Op is a drawing primitive.
type Op string

const (
	// OpTransform applies the viewport once: every later command is in world units.
	OpTransform    Op = "transform"
	OpFillRect     Op = "fillRect"
	OpStrokeRect   Op = "strokeRect"
	OpFillCircle   Op = "fillCircle"
	OpStrokeCircle Op = "strokeCircle"
	OpText         Op = "text"
)

// Role tags what a command draws so clients can style or test it.
type Role string

const (
	RoleArea       Role = "area"
	RoleAreaLabel  Role = "areaLabel"
	RoleTable      Role = "table"
	RoleTableLabel Role = "tableLabel"
	RoleOrderBadge Role = "orderBadge"
	RoleSelection  Role = "selection"
	RoleSearchHit  Role = "searchHit"
)

// Command is one drawing instruction.
type Command struct {
	Op        Op        `json:"op" msgpack:"op"`
	Role      Role      `json:"role,omitempty" msgpack:"role,omitempty"`
	Entity    string    `json:"entity,omitempty" msgpack:"entity,omitempty"`
	X         float64   `json:"x" msgpack:"x"`
	Y         float64   `json:"y" msgpack:"y"`
	W         float64   `json:"w,omitempty" msgpack:"w,omitempty"`
	H         float64   `json:"h,omitempty" msgpack:"h,omitempty"`
	R         float64   `json:"r,omitempty" msgpack:"r,omitempty"`
	Scale     float64   `json:"scale,omitempty" msgpack:"scale,omitempty"`
	Fill      string    `json:"fill,omitempty" msgpack:"fill,omitempty"`
	Stroke    string    `json:"stroke,omitempty" msgpack:"stroke,omitempty"`
	LineWidth float64   `json:"lineWidth,omitempty" msgpack:"lineWidth,omitempty"`
	Alpha     float64   `json:"alpha,omitempty" msgpack:"alpha,omitempty"`
	Dash      []float64 `json:"dash,omitempty" msgpack:"dash,omitempty"`
	Text      string    `json:"text,omitempty" msgpack:"text,omitempty"`
	FontSize  float64   `json:"fontSize,omitempty" msgpack:"fontSize,omitempty"`
}

// Frame is one complete draw pass.
type Frame struct {
	Width         float64           `json:"width" msgpack:"width"`
	Height        float64           `json:"height" msgpack:"height"`
	Viewport      geometry.Viewport `json:"viewport" msgpack:"viewport"`
	Selection     string            `json:"selection,omitempty" msgpack:"selection,omitempty"`
	LayoutVersion uint64            `json:"layoutVersion" msgpack:"layoutVersion"`
	Commands      []Command         `json:"commands" msgpack:"commands"`
}

// EntityOrder lists the entities drawn by role in draw order.
func (f *Frame) EntityOrder(role Role) []string {
	var ids []string
	for _, c := range f.Commands {
		if c.Role == role {
			ids = append(ids, c.Entity)
		}
	}
	return ids
}
