package mesh

import (
	"fmt"
	"math"

	"github.com/notargets/meshoverlap/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestMeshes provides a collection of standard test meshes shared by the
// package tests of the locator and the overlap detector
type TestMeshes struct {
	// Node definitions
	CubeNodes    NodeSet
	TetraNodes   NodeSet
	PyramidNodes NodeSet

	// Element definitions
	SingleTet     ElementSet
	SingleHex     ElementSet
	SinglePrism   ElementSet
	SinglePyramid ElementSet

	// Complete mesh definitions
	TwoTetMesh CompleteMesh // two tets sharing a face, no overlap
	MixedMesh  CompleteMesh // one of each 3D type stacked in the unit cube
}

// NodeSet represents a set of nodes with their coordinates
type NodeSet struct {
	Nodes   [][]float64    // Coordinates [N][3]
	NodeMap map[string]int // Logical name -> array index
}

// ElementSet represents a set of elements with connectivity
type ElementSet struct {
	Type     ElementType
	Elements [][]string // Connectivity using logical node names
}

// CompleteMesh represents a complete mesh with nodes and elements
type CompleteMesh struct {
	Nodes       NodeSet
	Elements    []ElementSet
	Dimension   int
	BoundingBox [2][3]float64 // Min and max coordinates
}

// GetStandardTestMeshes returns a set of standard test meshes
func GetStandardTestMeshes() *TestMeshes {
	tm := &TestMeshes{}

	tm.CubeNodes = createCubeNodes()
	tm.TetraNodes = createTetraNodes()
	tm.PyramidNodes = createPyramidNodes()

	tm.SingleTet = ElementSet{Type: Tet, Elements: [][]string{{"v0", "v1", "v2", "v3"}}}
	tm.SingleHex = ElementSet{Type: Hex, Elements: [][]string{{"origin", "x", "xy", "y", "z", "xz", "xyz", "yz"}}}
	tm.SinglePrism = ElementSet{Type: Prism, Elements: [][]string{{"origin", "x", "y", "z", "xz", "yz"}}}
	tm.SinglePyramid = ElementSet{Type: Pyramid, Elements: [][]string{{"base0", "base1", "base2", "base3", "apex"}}}

	tm.TwoTetMesh = createTwoTetMesh()
	tm.MixedMesh = createMixedMesh()

	return tm
}

func createCubeNodes() NodeSet {
	return NodeSet{
		Nodes: [][]float64{
			{0, 0, 0},       // 0: origin
			{1, 0, 0},       // 1: x
			{1, 1, 0},       // 2: xy
			{0, 1, 0},       // 3: y
			{0, 0, 1},       // 4: z
			{1, 0, 1},       // 5: xz
			{1, 1, 1},       // 6: xyz
			{0, 1, 1},       // 7: yz
			{0.5, 0.5, 0.5}, // 8: center
		},
		NodeMap: map[string]int{
			"origin": 0, "x": 1, "xy": 2, "y": 3,
			"z": 4, "xz": 5, "xyz": 6, "yz": 7,
			"center": 8,
		},
	}
}

func createTetraNodes() NodeSet {
	return NodeSet{
		Nodes: [][]float64{
			{0, 0, 0},
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		NodeMap: map[string]int{"v0": 0, "v1": 1, "v2": 2, "v3": 3},
	}
}

func createPyramidNodes() NodeSet {
	return NodeSet{
		Nodes: [][]float64{
			{0, 0, 0},     // 0: base corner 1
			{1, 0, 0},     // 1: base corner 2
			{1, 1, 0},     // 2: base corner 3
			{0, 1, 0},     // 3: base corner 4
			{0.5, 0.5, 1}, // 4: apex
		},
		NodeMap: map[string]int{
			"base0": 0, "base1": 1, "base2": 2, "base3": 3, "apex": 4,
		},
	}
}

func createTwoTetMesh() CompleteMesh {
	nodes := NodeSet{
		Nodes: [][]float64{
			{0, 0, 0},
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
			{1, 1, 1},
		},
		NodeMap: map[string]int{
			"v0": 0, "v1": 1, "v2": 2, "v3": 3, "v4": 4,
		},
	}

	return CompleteMesh{
		Nodes: nodes,
		Elements: []ElementSet{
			{
				Type: Tet,
				Elements: [][]string{
					{"v0", "v1", "v2", "v3"},
					{"v1", "v2", "v3", "v4"},
				},
			},
		},
		Dimension:   3,
		BoundingBox: [2][3]float64{{0, 0, 0}, {1, 1, 1}},
	}
}

func createMixedMesh() CompleteMesh {
	return CompleteMesh{
		Nodes: createCubeNodes(),
		Elements: []ElementSet{
			{
				Type: Tet,
				Elements: [][]string{
					{"origin", "x", "y", "z"},
					{"x", "xy", "y", "center"},
				},
			},
			{
				Type:     Hex,
				Elements: [][]string{{"origin", "x", "xy", "y", "z", "xz", "xyz", "yz"}},
			},
			{
				Type:     Prism,
				Elements: [][]string{{"origin", "x", "y", "z", "xz", "yz"}},
			},
			{
				Type:     Pyramid,
				Elements: [][]string{{"origin", "x", "xy", "y", "center"}},
			},
		},
		Dimension:   3,
		BoundingBox: [2][3]float64{{0, 0, 0}, {1, 1, 1}},
	}
}

// ConvertToMesh converts a CompleteMesh to an actual Mesh structure
func (cm *CompleteMesh) ConvertToMesh() *Mesh {
	mesh := NewMesh()

	for _, coords := range cm.Nodes.Nodes {
		mesh.AddVertex(r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]})
	}

	for _, elemSet := range cm.Elements {
		for _, elemNodes := range elemSet.Elements {
			nodeIDs := make([]int, len(elemNodes))
			for j, nodeName := range elemNodes {
				nodeIDs[j] = cm.Nodes.NodeMap[nodeName]
			}
			mesh.AddElement(elemSet.Type, nodeIDs)
		}
	}

	mesh.BuildConnectivity()
	return mesh
}

// HexCorners lists the corners of an axis aligned box in Hex vertex order
func HexCorners(box geometry.Box) []r3.Vec {
	lo, hi := box.Min, box.Max
	return []r3.Vec{
		{X: lo.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
	}
}

// NewBoxMesh builds one hex cell per box, cells do not share points
func NewBoxMesh(boxes ...geometry.Box) *Mesh {
	mesh := NewMesh()
	for _, box := range boxes {
		var ids []int
		for _, pt := range HexCorners(box) {
			ids = append(ids, mesh.AddVertex(pt))
		}
		mesh.AddElement(Hex, ids)
	}
	return mesh
}

// UnitBox is the box [origin, origin+size] on every axis
func UnitBox(origin r3.Vec, size float64) geometry.Box {
	return geometry.Box{Min: origin, Max: r3.Add(origin, r3.Vec{X: size, Y: size, Z: size})}
}

// NewStructuredHexMesh builds an nx by ny by nz grid of cubes of side h that
// share their points, so neighbors only touch along faces
func NewStructuredHexMesh(origin r3.Vec, h float64, nx, ny, nz int) *Mesh {
	mesh := NewMesh()
	pid := func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				mesh.AddVertex(r3.Add(origin, r3.Vec{X: float64(i) * h, Y: float64(j) * h, Z: float64(k) * h}))
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				mesh.AddElement(Hex, []int{
					pid(i, j, k), pid(i+1, j, k), pid(i+1, j+1, k), pid(i, j+1, k),
					pid(i, j, k+1), pid(i+1, j, k+1), pid(i+1, j+1, k+1), pid(i, j+1, k+1),
				})
			}
		}
	}
	return mesh
}

// ValidateNodeCoordinates checks if node coordinates match expected values
func ValidateNodeCoordinates(nodes []r3.Vec, expected []r3.Vec, tolerance float64) error {
	if len(nodes) != len(expected) {
		return fmt.Errorf("node count mismatch: got %d, expected %d", len(nodes), len(expected))
	}

	for i := range nodes {
		diff := r3.Norm(r3.Sub(nodes[i], expected[i]))
		if diff > tolerance || math.IsNaN(diff) {
			return fmt.Errorf("node %d: got %v, expected %v (diff %f > tol %f)",
				i, nodes[i], expected[i], diff, tolerance)
		}
	}

	return nil
}
