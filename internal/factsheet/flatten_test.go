package factsheet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenMapping(t *testing.T) {
	raw := `{"1. Name": "MANOJ KUMAR 2. eHRMS Code", "UP12345 3. Father's Name": "RAM KUMAR", "n": 7, "x": null}`
	flat, ok := FlattenMapping(raw)
	require.True(t, ok)
	assert.Equal(t, "1. Name MANOJ KUMAR 2. eHRMS Code UP12345 3. Father's Name RAM KUMAR n 7 x ", flat)

	want := []Record{
		{Number: num(1), Label: "Name", Value: "MANOJ KUMAR"},
		{Number: num(2), Label: "eHRMS Code", Value: "UP12345"},
		{Number: num(3), Label: "Father's Name", Value: "RAM KUMAR n 7 x"},
	}
	if diff := cmp.Diff(want, Reconstruct(flat)); diff != "" {
		t.Errorf("Reconstruct(flattened) mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenMapping_NotAnObject(t *testing.T) {
	for _, raw := range []string{
		"1. Name MANOJ",
		`["1. Name", "MANOJ"]`,
		`{"1. Name": "MANOJ"`,
		`{"a": "b"} trailing`,
		"",
	} {
		_, ok := FlattenMapping(raw)
		assert.False(t, ok, "input %q", raw)
	}
}

func TestFlattenMapping_NestedValues(t *testing.T) {
	flat, ok := FlattenMapping(`{"a": {"b": [1, 2]}}`)
	require.True(t, ok)
	assert.Equal(t, `a {"b":[1,2]}`, flat)
}
