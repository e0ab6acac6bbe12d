package InputParameters

import (
	"fmt"
	"io"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/ghodss/yaml"
	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/locator"
	"github.com/notargets/meshoverlap/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const ErrTypeInvalidInput = "invalid_input"

// InputParameters describes one detection run: how to distribute the scene
// and the cells of the scene itself. Field names follow the YAML keys.
type InputParameters struct {
	Title           string      `json:"Title"`
	Tolerance       float64     `json:"Tolerance"`
	MergeTolerance  float64     `json:"MergeTolerance"` // 0 merges exact duplicates only
	Ranks           int         `json:"Ranks"`
	BlocksPerRank   int         `json:"BlocksPerRank"`
	PointsPerBucket int         `json:"PointsPerBucket"`
	ParallelDegree  int         `json:"ParallelDegree"`
	Cells           []CellInput `json:"Cells"`
}

// CellInput is a cell given by its corner coordinates, or an axis aligned
// box that becomes a Hex. Block pins the cell to a block, it must be given
// for every cell or for none.
type CellInput struct {
	Type   string       `json:"Type,omitempty"`
	Points [][3]float64 `json:"Points,omitempty"`
	Box    *BoxInput    `json:"Box,omitempty"`
	Ghost  bool         `json:"Ghost,omitempty"`
	Block  *int         `json:"Block,omitempty"`
}

type BoxInput struct {
	Min [3]float64 `json:"Min"`
	Max [3]float64 `json:"Max"`
}

func (ip *InputParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return errors.New("unable to parse input parameters").
			WithType(ErrTypeInvalidInput).
			Wrap(err)
	}
	ip.setDefaults()
	return ip.Validate()
}

func (ip *InputParameters) setDefaults() {
	if ip.Ranks == 0 {
		ip.Ranks = 1
	}
	if ip.BlocksPerRank == 0 {
		ip.BlocksPerRank = 1
	}
}

func (ip *InputParameters) Print(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "%8.5g\t\t= Tolerance\n", ip.Tolerance)
	fmt.Fprintf(w, "%8.5g\t\t= MergeTolerance\n", ip.MergeTolerance)
	fmt.Fprintf(w, "[%d]\t\t\t= Ranks\n", ip.Ranks)
	fmt.Fprintf(w, "[%d]\t\t\t= BlocksPerRank\n", ip.BlocksPerRank)
	fmt.Fprintf(w, "[%d]\t\t\t= Cells\n", len(ip.Cells))
	counts := make(map[mesh.ElementType]int)
	for _, c := range ip.Cells {
		if et, err := c.elementType(); err == nil {
			counts[et]++
		}
	}
	for et := mesh.Vertex; et <= mesh.Pyramid; et++ {
		if n := counts[et]; n > 0 {
			fmt.Fprintf(w, "Cells[%s] = %d\n", et, n)
		}
	}
}

// elementType resolves the cell type, a box is always a Hex.
func (c CellInput) elementType() (mesh.ElementType, error) {
	if c.Box != nil {
		return mesh.Hex, nil
	}
	return ParseElementType(c.Type)
}

// ParseElementType matches a shape name, ignoring case.
func ParseElementType(name string) (et mesh.ElementType, err error) {
	for et = mesh.Vertex; et <= mesh.Pyramid; et++ {
		if strings.EqualFold(mesh.Shapes[et].Name, name) {
			return
		}
	}
	return 0, errors.Newf("unknown cell type %q", name).WithType(ErrTypeInvalidInput)
}

func (ip *InputParameters) Validate() error {
	if ip.Ranks < 1 || ip.BlocksPerRank < 1 {
		return errors.New("ranks and blocks per rank must be positive").
			WithType(ErrTypeInvalidInput).
			WithTag("ranks", ip.Ranks).
			WithTag("blocks_per_rank", ip.BlocksPerRank)
	}
	if ip.Tolerance < 0 || ip.MergeTolerance < 0 {
		return errors.New("tolerances can not be negative").
			WithType(ErrTypeInvalidInput).
			WithTag("tolerance", ip.Tolerance).
			WithTag("merge_tolerance", ip.MergeTolerance)
	}
	var tagged int
	for i, c := range ip.Cells {
		if c.Block != nil {
			tagged++
			if *c.Block < 0 {
				return errors.New("negative block tag").
					WithType(ErrTypeInvalidInput).
					WithTag("cell", i)
			}
		}
		if c.Box != nil {
			if len(c.Points) != 0 || (c.Type != "" && !strings.EqualFold(c.Type, mesh.Hex.String())) {
				return errors.New("a box cell takes no points and is always a hex").
					WithType(ErrTypeInvalidInput).
					WithTag("cell", i)
			}
			continue
		}
		et, err := ParseElementType(c.Type)
		if err != nil {
			return errors.New("invalid cell").
				WithType(ErrTypeInvalidInput).
				WithTag("cell", i).
				Wrap(err)
		}
		if len(c.Points) != mesh.Shapes[et].NumPoints {
			return errors.Newf("%s needs %d points, got %d", et, mesh.Shapes[et].NumPoints, len(c.Points)).
				WithType(ErrTypeInvalidInput).
				WithTag("cell", i)
		}
	}
	if tagged != 0 && tagged != len(ip.Cells) {
		return errors.New("block tags must be given for every cell or none").
			WithType(ErrTypeInvalidInput).
			WithTag("tagged", tagged).
			WithTag("cells", len(ip.Cells))
	}
	return nil
}

// BuildMesh assembles the scene into one mesh. Corner points closer than
// MergeTolerance are merged so neighboring cells share them. blockTags is
// nil unless the cells carry explicit block tags.
func (ip *InputParameters) BuildMesh() (m *mesh.Mesh, blockTags []int, err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	var (
		points []r3.Vec
		types  = make([]mesh.ElementType, len(ip.Cells))
		first  = make([]int, len(ip.Cells)+1)
	)
	for i, c := range ip.Cells {
		first[i] = len(points)
		types[i], _ = c.elementType()
		if c.Box != nil {
			points = append(points, mesh.HexCorners(c.Box.box())...)
			continue
		}
		for _, p := range c.Points {
			points = append(points, r3.Vec{X: p[0], Y: p[1], Z: p[2]})
		}
	}
	first[len(ip.Cells)] = len(points)

	var mergeMap []int
	if len(points) > 0 {
		bg := locator.NewBucketGrid3D()
		if ip.PointsPerBucket > 0 {
			bg.NumberOfPointsPerBucket = ip.PointsPerBucket
		}
		if ip.ParallelDegree > 0 {
			bg.ParallelDegree = ip.ParallelDegree
		}
		bg.Build(points, 0)
		mergeMap = bg.MergePoints(ip.MergeTolerance)
	}

	m = mesh.NewMesh()
	newID := make([]int, len(points))
	for i, pt := range points {
		if rep := mergeMap[i]; rep != i {
			newID[i] = newID[rep]
			continue
		}
		newID[i] = m.AddVertex(pt)
	}
	for i, c := range ip.Cells {
		verts := make([]int, 0, first[i+1]-first[i])
		for p := first[i]; p < first[i+1]; p++ {
			verts = append(verts, newID[p])
		}
		m.AddElement(types[i], verts)
		if c.Ghost {
			m.SetGhost(i, true)
		}
		if c.Block != nil {
			blockTags = append(blockTags, *c.Block)
		}
	}
	err = m.Validate()
	return
}

func (b *BoxInput) box() (box geometry.Box) {
	box.Min = r3.Vec{X: b.Min[0], Y: b.Min[1], Z: b.Min[2]}
	box.Max = r3.Vec{X: b.Max[0], Y: b.Max[1], Z: b.Max[2]}
	return
}
