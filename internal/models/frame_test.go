package models

import (
	"reflect"
	"testing"
)

// TestNewAcquisition verifies frame ordering and coordinate collection
func TestNewAcquisition(t *testing.T) {
	frames := []Frame{
		{Filename: "B_GFP_t2.tif", Position: "B", Channel: "GFP", Time: 2},
		{Filename: "A_GFP_t10.tif", Position: "A", Channel: "GFP", Time: 10},
		{Filename: "A_DAPI_t2.tif", Position: "A", Channel: "DAPI", Time: 2},
		{Filename: "A_GFP_t2.tif", Position: "A", Channel: "GFP", Time: 2},
	}
	acq := NewAcquisition("data", frames)

	var order []string
	for _, f := range acq.Frames {
		order = append(order, f.Filename)
	}
	wantOrder := []string{"A_DAPI_t2.tif", "A_GFP_t2.tif", "A_GFP_t10.tif", "B_GFP_t2.tif"}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Errorf("Expected frame order %v, got %v", wantOrder, order)
	}
	if !reflect.DeepEqual(acq.Positions, []string{"A", "B"}) {
		t.Errorf("Expected positions [A B], got %v", acq.Positions)
	}
	if !reflect.DeepEqual(acq.Channels, []string{"DAPI", "GFP"}) {
		t.Errorf("Expected channels [DAPI GFP], got %v", acq.Channels)
	}
	if !reflect.DeepEqual(acq.TimeLabels(), []string{"2", "10"}) {
		t.Errorf("Expected time labels [2 10], got %v", acq.TimeLabels())
	}
	if acq.Complete() {
		t.Error("Expected acquisition with 4 of 8 frames to be incomplete")
	}
}
