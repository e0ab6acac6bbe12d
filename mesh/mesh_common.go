package mesh

import (
	"fmt"
	"io"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/notargets/meshoverlap/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

const ErrTypeInvalidMesh = "invalid_mesh"

// ElementType represents different element types
type ElementType int

const (
	Vertex ElementType = iota
	Line
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	if e < Vertex || e > Pyramid {
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
	return [...]string{"Vertex", "Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// Face represents a face of an element
type Face struct {
	Vertices []int // Sorted vertex indices
	Element  int   // Parent element
	LocalID  int   // Local face ID within element
}

// Mesh is an unstructured mesh of mixed element types. Cell arrays are keyed
// by name in CellData and hold one value per element.
type Mesh struct {
	// Geometry
	Vertices []r3.Vec `json:"vertices"`

	// Element data
	Elements     [][]int          `json:"elements"`      // Element to vertex connectivity
	ElementTypes []ElementType    `json:"element_types"` // Element type for each element
	GhostCells   []bool           `json:"ghost_cells,omitempty"`
	CellData     map[string][]int `json:"cell_data,omitempty"`

	// Connectivity (built on demand)
	EToE    [][]int        `json:"-"` // Element to element connectivity [nelems][nfaces_per_elem]
	EToF    [][]int        `json:"-"` // Element to face connectivity [nelems][nfaces_per_elem]
	EToP    []int          `json:"-"` // Element to partition mapping (set after partitioning)
	Faces   []Face         `json:"-"` // All unique faces in mesh
	FaceMap map[string]int `json:"-"` // Map from sorted vertex string to face ID

	// Mesh statistics
	NumElements int `json:"-"`
	NumVertices int `json:"-"`
	NumFaces    int `json:"-"`
}

func NewMesh() *Mesh {
	return &Mesh{
		FaceMap:  make(map[string]int),
		CellData: make(map[string][]int),
	}
}

// NewMeshFromCells assembles a mesh from a vertex list and per cell
// connectivity, validating it along the way.
func NewMeshFromCells(vertices []r3.Vec, elemTypes []ElementType, elements [][]int) (m *Mesh, err error) {
	m = NewMesh()
	m.Vertices = vertices
	m.ElementTypes = elemTypes
	m.Elements = elements
	m.NumVertices = len(vertices)
	m.NumElements = len(elements)
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return
}

func (m *Mesh) AddVertex(pt r3.Vec) (id int) {
	id = len(m.Vertices)
	m.Vertices = append(m.Vertices, pt)
	m.NumVertices = len(m.Vertices)
	return
}

func (m *Mesh) AddElement(elemType ElementType, verts []int) (id int) {
	id = len(m.Elements)
	m.Elements = append(m.Elements, verts)
	m.ElementTypes = append(m.ElementTypes, elemType)
	if m.GhostCells != nil {
		m.GhostCells = append(m.GhostCells, false)
	}
	m.NumElements = len(m.Elements)
	return
}

func (m *Mesh) NumberOfCells() int {
	return len(m.Elements)
}

func (m *Mesh) NumberOfPoints() int {
	return len(m.Vertices)
}

// SetGhost flags a cell as a ghost, allocating the ghost array on first use.
func (m *Mesh) SetGhost(cellID int, ghost bool) {
	if m.GhostCells == nil {
		if !ghost {
			return
		}
		m.GhostCells = make([]bool, len(m.Elements))
	}
	m.GhostCells[cellID] = ghost
}

func (m *Mesh) IsGhost(cellID int) bool {
	return m.GhostCells != nil && m.GhostCells[cellID]
}

// GetCell returns the cell with a private copy of its point coordinates.
func (m *Mesh) GetCell(cellID int) (c *Cell) {
	var (
		ids = m.Elements[cellID]
	)
	c = &Cell{
		Type:     m.ElementTypes[cellID],
		PointIDs: ids,
		Points:   make([]r3.Vec, len(ids)),
	}
	for i, id := range ids {
		c.Points[i] = m.Vertices[id]
	}
	return
}

func (m *Mesh) Bounds() (box geometry.Box) {
	box = geometry.EmptyBox()
	for _, verts := range m.Elements {
		for _, v := range verts {
			box.AddPoint(m.Vertices[v])
		}
	}
	return
}

// ShallowCopy shares geometry and connectivity with m, but owns its CellData
// map so arrays can be attached without touching m.
func (m *Mesh) ShallowCopy() (out *Mesh) {
	cp := *m
	out = &cp
	out.CellData = make(map[string][]int, len(m.CellData))
	for name, arr := range m.CellData {
		out.CellData[name] = arr
	}
	return
}

func (m *Mesh) SetCellData(name string, values []int) {
	if len(values) != len(m.Elements) {
		panic(fmt.Errorf("cell array %s has %d values for %d cells", name, len(values), len(m.Elements)))
	}
	if m.CellData == nil {
		m.CellData = make(map[string][]int)
	}
	m.CellData[name] = values
}

// Validate checks the mesh is usable by the overlap detector: every cell has
// a known type, the right number of points and references existing points.
func (m *Mesh) Validate() (err error) {
	if len(m.ElementTypes) != len(m.Elements) {
		return errors.New("element type count does not match element count").
			WithType(ErrTypeInvalidMesh).
			WithTag("types", len(m.ElementTypes)).
			WithTag("elements", len(m.Elements))
	}
	if m.GhostCells != nil && len(m.GhostCells) != len(m.Elements) {
		return errors.New("ghost array length does not match element count").
			WithType(ErrTypeInvalidMesh).
			WithTag("ghosts", len(m.GhostCells)).
			WithTag("elements", len(m.Elements))
	}
	for i, verts := range m.Elements {
		elemType := m.ElementTypes[i]
		if elemType < Vertex || elemType > Pyramid {
			return errors.New("unknown element type").
				WithType(ErrTypeInvalidMesh).
				WithTag("cell", i).
				WithTag("type", int(elemType))
		}
		if len(verts) != Shapes[elemType].NumPoints {
			return errors.Newf("element has %d points, %s needs %d", len(verts), elemType, Shapes[elemType].NumPoints).
				WithType(ErrTypeInvalidMesh).
				WithTag("cell", i)
		}
		for _, v := range verts {
			if v < 0 || v >= len(m.Vertices) {
				return errors.New("element references a missing point").
					WithType(ErrTypeInvalidMesh).
					WithTag("cell", i).
					WithTag("point", v)
			}
		}
	}
	return
}

// BuildConnectivity builds element-to-element and face connectivity
func (m *Mesh) BuildConnectivity() {
	m.NumElements = len(m.Elements)
	m.NumVertices = len(m.Vertices)
	m.EToE = make([][]int, m.NumElements)
	m.EToF = make([][]int, m.NumElements)
	m.Faces = nil
	m.FaceMap = make(map[string]int)

	// Build face connectivity
	for elemID := 0; elemID < m.NumElements; elemID++ {
		elemType := m.ElementTypes[elemID]
		vertices := m.Elements[elemID]

		// Get faces for this element type
		faceVertices := GetElementFaces(elemType, vertices)

		m.EToE[elemID] = make([]int, len(faceVertices))
		m.EToF[elemID] = make([]int, len(faceVertices))

		// Initialize to -1 (boundary)
		for i := range m.EToE[elemID] {
			m.EToE[elemID][i] = -1
			m.EToF[elemID][i] = -1
		}

		// Process each face
		for localFaceID, faceVerts := range faceVertices {
			// Create sorted vertex key for face
			sorted := make([]int, len(faceVerts))
			copy(sorted, faceVerts)
			sort.Ints(sorted)

			key := fmt.Sprintf("%v", sorted)

			if faceID, exists := m.FaceMap[key]; exists {
				// Face already exists - this is an interior face
				face := &m.Faces[faceID]
				neighborElem := face.Element
				neighborLocalID := face.LocalID

				m.EToE[elemID][localFaceID] = neighborElem
				m.EToE[neighborElem][neighborLocalID] = elemID

				m.EToF[elemID][localFaceID] = faceID
			} else {
				face := Face{
					Vertices: sorted,
					Element:  elemID,
					LocalID:  localFaceID,
				}

				faceID := len(m.Faces)
				m.Faces = append(m.Faces, face)
				m.FaceMap[key] = faceID
				m.EToF[elemID][localFaceID] = faceID
			}
		}
	}

	m.NumFaces = len(m.Faces)
}

// GetElementFaces returns the face vertices of an element, mapping the local
// face table of its shape through the element's vertex list
func GetElementFaces(elemType ElementType, vertices []int) (faces [][]int) {
	if elemType < Vertex || elemType > Pyramid || Shapes[elemType].Dimension != 3 {
		return [][]int{}
	}
	for _, local := range Shapes[elemType].Faces {
		face := make([]int, len(local))
		for i, lv := range local {
			face[i] = vertices[lv]
		}
		faces = append(faces, face)
	}
	return
}

// PrintStatistics prints mesh statistics
func (m *Mesh) PrintStatistics(w io.Writer) {
	if m.EToE == nil {
		m.BuildConnectivity()
	}
	fmt.Fprintf(w, "Mesh Statistics:\n")
	fmt.Fprintf(w, "  Vertices: %d\n", m.NumVertices)
	fmt.Fprintf(w, "  Elements: %d\n", m.NumElements)
	fmt.Fprintf(w, "  Faces: %d\n", m.NumFaces)

	// Count element types
	typeCounts := make(map[ElementType]int)
	for _, t := range m.ElementTypes {
		typeCounts[t]++
	}

	fmt.Fprintf(w, "  Element types:\n")
	for t := Vertex; t <= Pyramid; t++ {
		if count := typeCounts[t]; count > 0 {
			fmt.Fprintf(w, "    %s: %d\n", t, count)
		}
	}

	var ghosts int
	for i := range m.Elements {
		if m.IsGhost(i) {
			ghosts++
		}
	}
	if ghosts > 0 {
		fmt.Fprintf(w, "  Ghost cells: %d\n", ghosts)
	}

	// Count boundary faces
	boundaryFaces := 0
	for i := 0; i < m.NumElements; i++ {
		for _, neighbor := range m.EToE[i] {
			if neighbor < 0 {
				boundaryFaces++
			}
		}
	}
	fmt.Fprintf(w, "  Boundary faces: %d\n", boundaryFaces)
}
