package cmd

import (
	"testing"

	"github.com/magiconair/properties/assert"
	"github.com/notargets/goiga/InputParameters"
)

func TestBenchInput(t *testing.T) {
	var (
		err error
	)
	fileInput := []byte(`
Title: Test Case
GlobalShape: [16, 16]
Pads: [1, 1]
Periodic: [false, true]
Bandwidth: 1
Ranks: 4
Steps: 3
Workers: 2
Fields: 2
Scalars:
  Diffusivity: 0.5
`)
	var input InputParameters.RunParameters
	if err = input.Parse(fileInput); err != nil {
		panic(err)
	}
	assert.Equal(t, input.GlobalShape, []int{16, 16})
	assert.Equal(t, input.Periodic[1], true)
	assert.Equal(t, input.Ranks, 4)
	assert.Equal(t, input.Scalars["Diffusivity"], 0.5)
	input.Print()
	assert.Equal(t, input.Fields, 2)
	if err = RunBench(&input); err != nil {
		panic(err)
	}
}

func TestBenchInputValidation(t *testing.T) {
	var input InputParameters.RunParameters
	err := input.Parse([]byte(`
Title: Mismatched
GlobalShape: [16, 16]
Pads: [1]
`))
	if err == nil {
		t.Fatal("expected a pad/shape mismatch error")
	}
}
