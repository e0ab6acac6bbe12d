package mesh

import (
	"math"

	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/types"
	"gonum.org/v1/gonum/spatial/r3"
)

// Shape describes the local topology shared by every cell of an ElementType.
// Faces of 3D shapes are listed with outward normals under the right hand
// rule. A 2D shape has a single face, its own outline.
type Shape struct {
	Name      string
	NumPoints int
	Dimension int
	Faces     [][]int
	Edges     [][2]int
}

// Shapes is the dispatch table used by the generic cell operations.
var Shapes = buildShapes()

func buildShapes() (shapes [Pyramid + 1]Shape) {
	shapes[Vertex] = Shape{Name: "Vertex", NumPoints: 1, Dimension: 0}
	shapes[Line] = Shape{Name: "Line", NumPoints: 2, Dimension: 1, Edges: [][2]int{{0, 1}}}
	shapes[Triangle] = Shape{Name: "Triangle", NumPoints: 3, Dimension: 2, Faces: [][]int{{0, 1, 2}}}
	shapes[Quad] = Shape{Name: "Quad", NumPoints: 4, Dimension: 2, Faces: [][]int{{0, 1, 2, 3}}}
	shapes[Tet] = Shape{Name: "Tet", NumPoints: 4, Dimension: 3,
		Faces: [][]int{
			{0, 2, 1}, // Face 0
			{0, 1, 3}, // Face 1
			{1, 2, 3}, // Face 2
			{0, 3, 2}, // Face 3
		}}
	shapes[Hex] = Shape{Name: "Hex", NumPoints: 8, Dimension: 3,
		Faces: [][]int{
			{0, 3, 2, 1}, // Face 0 (bottom)
			{4, 5, 6, 7}, // Face 1 (top)
			{0, 1, 5, 4}, // Face 2
			{1, 2, 6, 5}, // Face 3
			{2, 3, 7, 6}, // Face 4
			{3, 0, 4, 7}, // Face 5
		}}
	shapes[Prism] = Shape{Name: "Prism", NumPoints: 6, Dimension: 3,
		Faces: [][]int{
			{0, 2, 1},    // Face 0 (bottom tri)
			{3, 4, 5},    // Face 1 (top tri)
			{0, 1, 4, 3}, // Face 2 (quad)
			{1, 2, 5, 4}, // Face 3 (quad)
			{2, 0, 3, 5}, // Face 4 (quad)
		}}
	shapes[Pyramid] = Shape{Name: "Pyramid", NumPoints: 5, Dimension: 3,
		Faces: [][]int{
			{0, 3, 2, 1}, // Face 0 (base quad)
			{0, 1, 4},    // Face 1 (tri)
			{1, 2, 4},    // Face 2 (tri)
			{2, 3, 4},    // Face 3 (tri)
			{3, 0, 4},    // Face 4 (tri)
		}}
	for i := range shapes {
		if shapes[i].Edges == nil {
			shapes[i].Edges = edgesOfFaces(shapes[i].Faces)
		}
	}
	return
}

// edgesOfFaces walks each face outline once, keeping the first occurrence of
// every edge
func edgesOfFaces(faces [][]int) (edges [][2]int) {
	seen := make(map[types.EdgeKey]struct{})
	for _, face := range faces {
		for i := range face {
			e := [2]int{face[i], face[(i+1)%len(face)]}
			ek := types.NewEdgeKey(e)
			if _, ok := seen[ek]; ok {
				continue
			}
			seen[ek] = struct{}{}
			edges = append(edges, ek.GetVertices(false))
		}
	}
	return
}

// Cell holds a private copy of its point coordinates, so geometric edits
// never reach the mesh it came from.
type Cell struct {
	Type     ElementType
	PointIDs []int
	Points   []r3.Vec
	offset   float64 // set by Inflate
}

func (c *Cell) Shape() Shape {
	return Shapes[c.Type]
}

// Clone copies the coordinates, PointIDs are shared.
func (c *Cell) Clone() (out *Cell) {
	out = &Cell{
		Type:     c.Type,
		PointIDs: c.PointIDs,
		Points:   make([]r3.Vec, len(c.Points)),
		offset:   c.offset,
	}
	copy(out.Points, c.Points)
	return
}

func (c *Cell) Centroid() (ctr r3.Vec) {
	if len(c.Points) == 0 {
		return
	}
	for _, pt := range c.Points {
		ctr = r3.Add(ctr, pt)
	}
	ctr = r3.Scale(1/float64(len(c.Points)), ctr)
	return
}

// ComputeBoundingSphere centers the sphere on the vertex centroid, with the
// smallest radius that holds every vertex. A positive Inflate offset adds to
// the radius, a negative one leaves it.
func (c *Cell) ComputeBoundingSphere() (s geometry.Sphere) {
	s.Center = c.Centroid()
	for _, pt := range c.Points {
		s.Radius2 = math.Max(s.Radius2, r3.Norm2(r3.Sub(pt, s.Center)))
	}
	if c.offset > 0 {
		r := math.Sqrt(s.Radius2) + c.offset
		s.Radius2 = r * r
	}
	return
}

func (c *Cell) GetBounds() geometry.Box {
	return geometry.NewBoundingBox(c.Points).Inflate(c.offset)
}

// Inflate offsets the cell by delta. A positive delta grows it by a ball of
// radius delta, a negative delta moves every face inward by -delta and
// collapses the cell to its midpoint along axes thinner than -2*delta. The
// points stay where they are, GetBounds and IntersectWithCell apply the
// offset.
func (c *Cell) Inflate(delta float64) {
	c.offset += delta
}

// FaceNormals returns the unnormalized outward normal of each face, computed
// with Newell's method so non planar quads still get a usable direction.
func (c *Cell) FaceNormals() (normals []r3.Vec) {
	for _, face := range c.Shape().Faces {
		var n r3.Vec
		for i := range face {
			cur, next := c.Points[face[i]], c.Points[face[(i+1)%len(face)]]
			n.X += (cur.Y - next.Y) * (cur.Z + next.Z)
			n.Y += (cur.Z - next.Z) * (cur.X + next.X)
			n.Z += (cur.X - next.X) * (cur.Y + next.Y)
		}
		normals = append(normals, n)
	}
	return
}

func (c *Cell) EdgeVectors() (edges []r3.Vec) {
	for _, e := range c.Shape().Edges {
		edges = append(edges, r3.Sub(c.Points[e[1]], c.Points[e[0]]))
	}
	return
}
