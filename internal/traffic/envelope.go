// Package traffic models the Trafikverket response envelope and classifies
// the events it carries.
package traffic

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// OneOrMany decodes either a single JSON value or an array of them.
type OneOrMany[T any] []T

func (o *OneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = nil
		return nil
	}
	if b[0] == '[' {
		var many []T
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*o = OneOrMany[T]{one}
	return nil
}

// Envelope is the body returned by the aggregation endpoint.
type Envelope struct {
	Response Response `json:"RESPONSE"`
}

type Response struct {
	Result OneOrMany[Result] `json:"RESULT"`
}

// Result is one query result. The deviation query fills Situation, the camera
// query fills TrafficSafetyCamera.
type Result struct {
	Situation           OneOrMany[Situation]    `json:"Situation,omitempty"`
	TrafficSafetyCamera OneOrMany[SafetyCamera] `json:"TrafficSafetyCamera,omitempty"`
}

type Situation struct {
	Deviation OneOrMany[Deviation] `json:"Deviation,omitempty"`
}

type Deviation struct {
	ID                      string             `json:"Id,omitempty"`
	Header                  string             `json:"Header,omitempty"`
	Message                 string             `json:"Message,omitempty"`
	MessageType             string             `json:"MessageType,omitempty"`
	MessageTypeValue        string             `json:"MessageTypeValue,omitempty"`
	SeverityText            string             `json:"SeverityText,omitempty"`
	RoadNumber              string             `json:"RoadNumber,omitempty"`
	RoadName                string             `json:"RoadName,omitempty"`
	LocationDescriptor      string             `json:"LocationDescriptor,omitempty"`
	AffectedDirection       *Direction         `json:"AffectedDirection,omitempty"`
	StartTime               string             `json:"StartTime,omitempty"`
	EndTime                 string             `json:"EndTime,omitempty"`
	ValidUntilFurtherNotice bool               `json:"ValidUntilFurtherNotice,omitempty"`
	WebLink                 string             `json:"WebLink,omitempty"`
	IconID                  string             `json:"IconId,omitempty"`
	CountyNo                OneOrMany[int]     `json:"CountyNo,omitempty"`
	Geometry                *DeviationGeometry `json:"Geometry,omitempty"`
	VersionTime             string             `json:"VersionTime,omitempty"`
}

type DeviationGeometry struct {
	Point *WGS84 `json:"Point,omitempty"`
	Line  *WGS84 `json:"Line,omitempty"`
}

type WGS84 struct {
	WGS84 string `json:"WGS84,omitempty"`
}

// PointWKT returns Geometry.Point.WGS84, or "".
func (d Deviation) PointWKT() string {
	if d.Geometry == nil || d.Geometry.Point == nil {
		return ""
	}
	return d.Geometry.Point.WGS84
}

// LineWKT returns Geometry.Line.WGS84, or "".
func (d Deviation) LineWKT() string {
	if d.Geometry == nil || d.Geometry.Line == nil {
		return ""
	}
	return d.Geometry.Line.WGS84
}

// Direction is AffectedDirection, which the API sends either as a plain
// string or as {Description, Value}.
type Direction struct {
	Description string `json:"Description,omitempty"`
	Value       string `json:"Value,omitempty"`
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Direction{Value: s}
		return nil
	}
	type plain Direction
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("affected direction: %w", err)
	}
	*d = Direction(p)
	return nil
}

// String prefers the human description.
func (d *Direction) String() string {
	if d == nil {
		return ""
	}
	if d.Description != "" {
		return d.Description
	}
	return d.Value
}

type SafetyCamera struct {
	ID         string         `json:"Id,omitempty"`
	Name       string         `json:"Name,omitempty"`
	Bearing    *float64       `json:"Bearing,omitempty"`
	SpeedLimit *int           `json:"SpeedLimit,omitempty"`
	Geometry   *WGS84         `json:"Geometry,omitempty"`
	CountyNo   OneOrMany[int] `json:"CountyNo,omitempty"`
	IconID     string         `json:"IconId,omitempty"`
}

// PointWKT returns Geometry.WGS84, or "".
func (c SafetyCamera) PointWKT() string {
	if c.Geometry == nil {
		return ""
	}
	return c.Geometry.WGS84
}

// Decode parses an envelope body.
func Decode(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode traffic envelope: %w", err)
	}
	return &env, nil
}

// Deviations flattens every deviation of every situation of every result, in
// response order.
func (e *Envelope) Deviations() []Deviation {
	if e == nil {
		return nil
	}
	var out []Deviation
	for _, r := range e.Response.Result {
		for _, s := range r.Situation {
			out = append(out, s.Deviation...)
		}
	}
	return out
}

// Cameras flattens every safety camera in the response.
func (e *Envelope) Cameras() []SafetyCamera {
	if e == nil {
		return nil
	}
	var out []SafetyCamera
	for _, r := range e.Response.Result {
		out = append(out, r.TrafficSafetyCamera...)
	}
	return out
}
