/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/notargets/goiga/InputParameters"
	"github.com/notargets/goiga/comm"
	"github.com/notargets/goiga/decomp"
	"github.com/notargets/goiga/stencil"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// benchCmd represents the bench command
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Assemble a model stencil system and time repeated matrix-vector products",
	Long: `
Assembles a Laplacian stencil system over an in-process group of ranks,
then runs repeated distributed matrix-vector products with ghost refresh,

goiga bench -I input.yaml
goiga bench --ranks 4 --size 128 --steps 50`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			rp  InputParameters.RunParameters
			err error
		)
		if inputFile, _ := cmd.Flags().GetString("input"); inputFile != "" {
			var data []byte
			if data, err = os.ReadFile(inputFile); err != nil {
				fmt.Printf("unable to read input file [%s]: %v\n", inputFile, err)
				os.Exit(1)
			}
			if err = rp.Parse(data); err != nil {
				fmt.Printf("unable to parse input file [%s]: %v\n", inputFile, err)
				os.Exit(1)
			}
		} else {
			size, _ := cmd.Flags().GetInt("size")
			dims, _ := cmd.Flags().GetInt("dims")
			rp.Title = "Model Laplacian"
			for a := 0; a < dims; a++ {
				rp.GlobalShape = append(rp.GlobalShape, size)
				rp.Pads = append(rp.Pads, 1)
			}
			rp.Bandwidth = 1
			rp.Ranks, _ = cmd.Flags().GetInt("ranks")
			rp.Steps, _ = cmd.Flags().GetInt("steps")
			rp.Workers, _ = cmd.Flags().GetInt("workers")
			rp.Fields, _ = cmd.Flags().GetInt("fields")
			if rp.Ranks < 1 {
				rp.Ranks = 1
			}
			if rp.Steps < 1 {
				rp.Steps = 1
			}
			if rp.Workers < 1 {
				rp.Workers = 1
			}
			if rp.Fields < 1 {
				rp.Fields = 1
			}
		}
		rp.Print()
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start().Stop()
		}
		if err = RunBench(&rp); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().StringP("input", "I", "", "YAML input file with the run parameters")
	benchCmd.Flags().IntP("ranks", "r", 1, "number of in-process ranks")
	benchCmd.Flags().IntP("size", "s", 64, "entries per axis of the global index space")
	benchCmd.Flags().IntP("dims", "d", 2, "number of axes of the global index space")
	benchCmd.Flags().IntP("steps", "n", 10, "number of matrix-vector products to run")
	benchCmd.Flags().IntP("workers", "w", 1, "assembly workers per rank")
	benchCmd.Flags().IntP("fields", "f", 1, "solution fields, >1 assembles a block system")
	benchCmd.Flags().Bool("profile", false, "generate a runtime profile of the solver")
}

// RunBench spawns one goroutine per rank over a channel communicator group
// and runs the assemble/matvec cycle on each.
func RunBench(rp *InputParameters.RunParameters) error {
	var (
		comms = comm.NewChannelGroup(rp.Ranks)
		errs  = make([]error, rp.Ranks)
		norms = make([]float64, rp.Ranks)
		wg    sync.WaitGroup
	)
	start := time.Now()
	for r := 0; r < rp.Ranks; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			norms[r], errs[r] = benchRank(comms[r], rp)
		}(r)
	}
	wg.Wait()
	elapsed := time.Since(start)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	fmt.Printf("%8.5f\t\t= Result Norm\n", norms[0])
	fmt.Printf("%v\t\t= Elapsed\n", elapsed)
	return nil
}

func benchRank(c comm.Communicator, rp *InputParameters.RunParameters) (norm float64, err error) {
	var (
		nd      = len(rp.GlobalShape)
		periods = rp.Periodic
		d       *decomp.CartDecomp
	)
	if len(periods) == 0 {
		periods = make([]bool, nd)
	}
	if len(rp.ProcShape) != 0 {
		d, err = decomp.New(c, rp.GlobalShape, rp.Pads, periods, rp.ProcShape)
	} else {
		d, err = decomp.New(c, rp.GlobalShape, rp.Pads, periods)
	}
	if err != nil {
		return
	}
	band := make([]int, nd)
	for a := range band {
		band[a] = rp.Bandwidth
		if band[a] > d.Pads[a] {
			band[a] = d.Pads[a]
		}
	}
	var (
		A stencil.Operator
		x stencil.Vector
	)
	diff := rp.Scalars["Diffusivity"]
	if diff == 0 {
		diff = 1
	}
	if rp.Fields == 1 {
		var m *stencil.Mat
		if m, _, err = assembleLaplacian(d, band, diff, rp.Workers); err != nil {
			return
		}
		A, x = m, NewUnitField(d)
	} else {
		// Decoupled fields on the block diagonal
		bm := stencil.NewBlockMat(rp.Fields, rp.Fields)
		var fields []*stencil.Vec
		for f := 0; f < rp.Fields; f++ {
			var m *stencil.Mat
			if m, _, err = assembleLaplacian(d, band, diff*float64(f+1), rp.Workers); err != nil {
				return
			}
			bm.SetBlock(f, f, m)
			fields = append(fields, NewUnitField(d))
		}
		A, x = bm, stencil.NewBlockVec(fields...)
	}
	// Power iteration, the norm converges to the dominant eigenvalue
	for step := 0; step < rp.Steps; step++ {
		x.RefreshGhostRegions()
		y := A.Dot(x)
		norm = y.Norm()
		x.Zero()
		x.Axpy(1/norm, y)
	}
	return
}

// NewUnitField returns a vector with all interior entries set to one and
// ghost regions left unrefreshed.
func NewUnitField(d *decomp.CartDecomp) (v *stencil.Vec) {
	v = stencil.NewVec(d)
	forOwned(d, func(local []int) {
		v.Set(local, 1)
	})
	return
}

// assembleLaplacian integrates linear line elements along every axis of
// the owned index range, scaled by the diffusion coefficient, and
// reconciles shared rows across ranks.
func assembleLaplacian(d *decomp.CartDecomp, band []int, diff float64, workers int) (m *stencil.Mat, b *stencil.Vec, err error) {
	if m, err = stencil.NewMat(d, d, band, band); err != nil {
		return
	}
	b = stencil.NewVec(d)
	stencil.AssembleCells(m, b, lineCells(d), lineKernel(diff), workers)
	m.UpdateGhostRegions()
	b.UpdateGhostRegions()
	return
}

// lineKernel treats its cell as a node multi-index with the active axis
// appended, coupling the node to its successor along that axis.
func lineKernel(diff float64) stencil.CellKernel {
	return func(cell []int) stencil.CellContribution {
		var (
			nd = len(cell) - 1
			lo = cell[:nd]
			hi = make([]int, nd)
		)
		copy(hi, lo)
		hi[cell[nd]]++
		nodes := [][]int{lo, hi}
		return stencil.CellContribution{
			Rows: nodes,
			Cols: nodes,
			A:    []float64{diff, -diff, -diff, diff},
			B:    []float64{0.5, 0.5},
		}
	}
}

func lineCells(d *decomp.CartDecomp) (cells [][]int) {
	nd := d.NumDims()
	forOwned(d, func(local []int) {
		for a := 0; a < nd; a++ {
			g := local[a] + d.Starts[a]
			if g+1 >= d.GlobalShape[a] && !d.Periods[a] {
				continue
			}
			cell := make([]int, nd+1)
			for b := 0; b < nd; b++ {
				cell[b] = local[b] + d.Starts[b]
			}
			cell[nd] = a
			cells = append(cells, cell)
		}
	})
	return
}

// forOwned visits every owned entry in local coordinates, row-major.
func forOwned(d *decomp.CartDecomp, f func(local []int)) {
	var (
		shape = d.LocalShape()
		nd    = len(shape)
		idx   = make([]int, nd)
	)
	for {
		f(idx)
		a := nd - 1
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < shape[a] {
				break
			}
			idx[a] = 0
		}
		if a < 0 {
			return
		}
	}
}
