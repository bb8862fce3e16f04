package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// ============================================================
// SVG backend
// ============================================================

// EncodeSVG replays a frame as an SVG document. The transform command opens
// a group that every later element is nested in.
func EncodeSVG(f Frame) string {
	width, height := f.Width, f.Height
	if width <= 0 {
		width = 1000
	}
	if height <= 0 {
		height = 1000
	}

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(width), formatFloat(height), formatFloat(width), formatFloat(height)))
	builder.WriteString("\n")

	open := 0
	for _, c := range f.Commands {
		elem := svgElement(c)
		if elem == "" {
			continue
		}
		builder.WriteString("  ")
		builder.WriteString(elem)
		builder.WriteString("\n")
		if c.Op == OpTransform {
			open++
		}
	}
	for ; open > 0; open-- {
		builder.WriteString("  </g>\n")
	}

	builder.WriteString(`</svg>`)
	return builder.String()
}

// ============================================================
// Element encoders
// ============================================================

func svgElement(c Command) string {
	switch c.Op {
	case OpTransform:
		return fmt.Sprintf(`<g transform="translate(%s %s) scale(%s)">`,
			formatFloat(c.X), formatFloat(c.Y), formatFloat(c.Scale))
	case OpFillRect:
		return fmt.Sprintf(`<rect%s x="%s" y="%s" width="%s" height="%s" fill="%s"%s/>`,
			entityAttr(c), formatFloat(c.X), formatFloat(c.Y), formatFloat(c.W), formatFloat(c.H),
			attr(c.Fill), opacityAttr(c.Alpha))
	case OpStrokeRect:
		return fmt.Sprintf(`<rect%s x="%s" y="%s" width="%s" height="%s" fill="none" stroke="%s" stroke-width="%s"%s/>`,
			entityAttr(c), formatFloat(c.X), formatFloat(c.Y), formatFloat(c.W), formatFloat(c.H),
			attr(c.Stroke), formatFloat(c.LineWidth), dashAttr(c.Dash))
	case OpFillCircle:
		return fmt.Sprintf(`<circle%s cx="%s" cy="%s" r="%s" fill="%s"%s/>`,
			entityAttr(c), formatFloat(c.X), formatFloat(c.Y), formatFloat(c.R),
			attr(c.Fill), opacityAttr(c.Alpha))
	case OpStrokeCircle:
		return fmt.Sprintf(`<circle%s cx="%s" cy="%s" r="%s" fill="none" stroke="%s" stroke-width="%s"%s/>`,
			entityAttr(c), formatFloat(c.X), formatFloat(c.Y), formatFloat(c.R),
			attr(c.Stroke), formatFloat(c.LineWidth), dashAttr(c.Dash))
	case OpText:
		anchor := "middle"
		if c.Role == RoleAreaLabel {
			anchor = "start"
		}
		return fmt.Sprintf(`<text x="%s" y="%s" font-size="%s" fill="%s" text-anchor="%s" dominant-baseline="middle">%s</text>`,
			formatFloat(c.X), formatFloat(c.Y), formatFloat(c.FontSize), attr(c.Fill), anchor, html.EscapeString(c.Text))
	default:
		return ""
	}
}

func entityAttr(c Command) string {
	if c.Entity == "" || c.Role == "" {
		return ""
	}
	return fmt.Sprintf(` data-id="%s" data-role="%s"`, attr(c.Entity), attr(string(c.Role)))
}

func opacityAttr(alpha float64) string {
	if alpha <= 0 || alpha >= 1 {
		return ""
	}
	return ` fill-opacity="` + formatFloat(alpha) + `"`
}

func dashAttr(dash []float64) string {
	if len(dash) == 0 {
		return ""
	}
	parts := make([]string, len(dash))
	for i, d := range dash {
		parts[i] = formatFloat(d)
	}
	return ` stroke-dasharray="` + strings.Join(parts, " ") + `"`
}

func attr(s string) string {
	return html.EscapeString(s)
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
