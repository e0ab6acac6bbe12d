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
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/notargets/meshoverlap/InputParameters"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/overlap"
	"github.com/notargets/meshoverlap/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Detection struct {
	ICFile  string
	Timeout time.Duration
	Verbose bool
}

// Result is the outcome of a detection, indexed like the input cells.
type Result struct {
	Counts  []int
	Blocks  []int // block of every input cell
	Links   map[int][]int
	Outputs []*overlap.Output
}

// DetectCmd represents the detect command
var DetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Count the overlapping cells of a scene read from a YAML file",
	Long: `Reads a scene of cells from a YAML file, splits it into blocks over a number
of in process ranks and reports, for every cell, how many other cells overlap it.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		det := &Detection{
			Timeout: viper.GetDuration("timeout"),
		}
		if det.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			return
		}
		det.Verbose, _ = cmd.Flags().GetBool("verbose")
		var ip *InputParameters.InputParameters
		if ip, err = processInput(det); err != nil {
			return
		}
		applyOverrides(ip)
		ip.Print(os.Stdout)
		ctx, cancel := context.WithTimeout(context.Background(), det.Timeout)
		defer cancel()
		var res *Result
		if res, err = RunDetect(ctx, ip); err != nil {
			return
		}
		res.Print(os.Stdout, det.Verbose)
		return
	},
}

func init() {
	rootCmd.AddCommand(DetectCmd)
	DetectCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing the cells, tolerance and layout")
	DetectCmd.Flags().Float64P("tolerance", "t", 0, "overlap depth below which touching cells are not counted")
	DetectCmd.Flags().IntP("ranks", "r", 0, "number of ranks, overrides the input file")
	DetectCmd.Flags().IntP("blocksPerRank", "b", 0, "blocks per rank, overrides the input file")
	DetectCmd.Flags().Int("pointsPerBucket", 0, "target points per bucket of the locators")
	DetectCmd.Flags().IntP("parallel", "p", 0, "parallel degree of each rank")
	DetectCmd.Flags().Duration("timeout", time.Minute, "abandon the run after this long")
	DetectCmd.Flags().BoolP("verbose", "v", false, "print the count of every cell")
	for _, name := range []string{"tolerance", "ranks", "blocksPerRank", "pointsPerBucket", "parallel", "timeout"} {
		_ = viper.BindPFlag(name, DetectCmd.Flags().Lookup(name))
	}
}

func processInput(det *Detection) (ip *InputParameters.InputParameters, err error) {
	if len(det.ICFile) == 0 {
		exampleFile := `
########################################
Title: "Two cubes"
Tolerance: 0.
Ranks: 2
Cells:
  - Box: {Min: [0, 0, 0], Max: [1, 1, 1]}
  - Box: {Min: [0.5, 0, 0], Max: [1.5, 1, 1]}
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, errors.New("must supply an input file (-I, --inputConditionsFile)").
			WithType(InputParameters.ErrTypeInvalidInput)
	}
	var data []byte
	if data, err = os.ReadFile(det.ICFile); err != nil {
		return nil, errors.New("unable to read input file").
			WithType(InputParameters.ErrTypeInvalidInput).
			WithTag("file", det.ICFile).
			Wrap(err)
	}
	ip = &InputParameters.InputParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, err
	}
	return
}

// applyOverrides takes values set by flags, the environment or the config
// file over the ones in the input file.
func applyOverrides(ip *InputParameters.InputParameters) {
	if tol := viper.GetFloat64("tolerance"); tol > 0 {
		ip.Tolerance = tol
	}
	if n := viper.GetInt("ranks"); n > 0 {
		ip.Ranks = n
	}
	if n := viper.GetInt("blocksPerRank"); n > 0 {
		ip.BlocksPerRank = n
	}
	if n := viper.GetInt("pointsPerBucket"); n > 0 {
		ip.PointsPerBucket = n
	}
	if n := viper.GetInt("parallel"); n > 0 {
		ip.ParallelDegree = n
	}
}

// RunDetect builds the scene, splits it into blocks and runs a detection
// over ip.Ranks in process ranks.
func RunDetect(ctx context.Context, ip *InputParameters.InputParameters) (res *Result, err error) {
	var (
		m         *mesh.Mesh
		blockTags []int
	)
	if m, blockTags, err = ip.BuildMesh(); err != nil {
		return
	}
	nparts := ip.Ranks * ip.BlocksPerRank
	if blockTags != nil {
		nparts = slices.Max(blockTags) + 1
	}
	mp := mesh.NewMeshPartitioner(m, mesh.DefaultPartitionConfig(int32(nparts)))
	if blockTags != nil {
		err = mp.Assign(blockTags)
	} else {
		err = mp.Partition()
	}
	if err != nil {
		return
	}
	blocks, cellMaps := mp.Split()
	for p, faces := range mp.GetPartitionBoundaryFaces() {
		logs.WithTag("block", p).
			WithTag("cells", len(cellMaps[p])).
			WithTag("boundary_faces", len(faces)).
			Debug("block split")
	}

	// Rank r holds a contiguous run of blocks so global ids match partitions
	var (
		inputs = make([]mesh.DataObject, ip.Ranks)
		layout = utils.NewPartitionMap(ip.Ranks, nparts)
	)
	for r := range inputs {
		lo, hi := layout.GetBucketRange(r)
		inputs[r] = mesh.NewPartitionedMesh(blocks.Blocks[lo:hi]...)
	}

	opts := []overlap.Option{overlap.WithTolerance(ip.Tolerance)}
	if ip.PointsPerBucket > 0 {
		opts = append(opts, overlap.WithNumberOfPointsPerBucket(ip.PointsPerBucket))
	}
	if ip.ParallelDegree > 0 {
		opts = append(opts, overlap.WithParallelDegree(ip.ParallelDegree))
	}
	var outputs []*overlap.Output
	if outputs, err = overlap.RunLocal(ctx, inputs, opts...); err != nil {
		return
	}

	res = &Result{
		Counts:  make([]int, m.NumberOfCells()),
		Blocks:  make([]int, m.NumberOfCells()),
		Links:   make(map[int][]int),
		Outputs: outputs,
	}
	for _, out := range outputs {
		for i, gid := range out.BlockIDs {
			for c, count := range out.Counts(i) {
				res.Counts[cellMaps[gid][c]] = count
				res.Blocks[cellMaps[gid][c]] = gid
			}
		}
		for gid, nbrs := range out.Links {
			res.Links[gid] = nbrs
		}
	}
	return
}

func (res *Result) Print(w io.Writer, verbose bool) {
	var overlapping int
	for _, c := range res.Counts {
		if c > 0 {
			overlapping++
		}
	}
	fmt.Fprintf(w, "%d of %d cells overlap another cell\n", overlapping, len(res.Counts))
	if verbose {
		for i, c := range res.Counts {
			fmt.Fprintf(w, "cell[%d] block[%d] = %d\n", i, res.Blocks[i], c)
		}
	}
	if len(res.Counts) > 0 {
		lm := overlap.LinkMatrix(res.Outputs)
		fmt.Fprintf(w, "%d block links, symmetric = %v\n", lm.NumLinks(), lm.IsSymmetric())
	}
	for _, out := range res.Outputs {
		logs.WithTag("rank", out.Stats.Rank).
			WithTag("blocks", out.Stats.Blocks).
			WithTag("messages", out.Stats.Messages).
			WithTag("exact_tests", out.Stats.ExactTests).
			WithTag("confirmed_pairs", out.Stats.ConfirmedPairs).
			Info("rank stats")
	}
}
