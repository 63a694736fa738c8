package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RawEvent represents an unprocessed message from the request topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

var (
	errMissingCoordinates = errors.New("lat and lng are required")
	errOutOfRange         = errors.New("coordinates out of range")
)

// ParseOverlayRequest deserializes a RawEvent's value into an OverlayRequest.
// A missing viewer_id falls back to the message key so keyed producers need
// not repeat it in the payload.
func ParseOverlayRequest(raw RawEvent) (OverlayRequest, error) {
	var rec struct {
		ViewerID string   `json:"viewer_id"`
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
	}
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return OverlayRequest{}, fmt.Errorf("parse overlay request: %w", err)
	}
	if rec.Lat == nil || rec.Lng == nil {
		return OverlayRequest{}, fmt.Errorf("parse overlay request: %w", errMissingCoordinates)
	}
	if *rec.Lat < -90 || *rec.Lat > 90 || *rec.Lng < -180 || *rec.Lng > 180 {
		return OverlayRequest{}, fmt.Errorf("parse overlay request: %w: %g,%g", errOutOfRange, *rec.Lat, *rec.Lng)
	}

	viewer := rec.ViewerID
	if viewer == "" {
		viewer = string(raw.Key)
	}
	return OverlayRequest{ViewerID: viewer, Lat: *rec.Lat, Lng: *rec.Lng}, nil
}
