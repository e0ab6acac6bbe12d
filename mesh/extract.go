package mesh

// SubMesh is a self contained copy of some cells of a block, carrying the
// ids those cells have in their origin block.
type SubMesh struct {
	OriginBlock   int   `json:"origin_block"`
	Mesh          *Mesh `json:"mesh"`
	OriginCellIDs []int `json:"origin_cell_ids"`
}

// ExtractCells copies the listed cells of m into a new mesh holding only the
// points they use, renumbered in first use order. Ghost flags follow the
// cells. The result shares no memory with m.
func ExtractCells(m *Mesh, cellIDs []int, originBlock int) (sm *SubMesh) {
	var (
		pointMap = make(map[int]int)
		out      = NewMesh()
	)
	sm = &SubMesh{
		OriginBlock:   originBlock,
		Mesh:          out,
		OriginCellIDs: make([]int, 0, len(cellIDs)),
	}
	for _, cellID := range cellIDs {
		verts := m.Elements[cellID]
		local := make([]int, len(verts))
		for i, v := range verts {
			id, ok := pointMap[v]
			if !ok {
				id = out.AddVertex(m.Vertices[v])
				pointMap[v] = id
			}
			local[i] = id
		}
		newID := out.AddElement(m.ElementTypes[cellID], local)
		if m.IsGhost(cellID) {
			out.SetGhost(newID, true)
		}
		sm.OriginCellIDs = append(sm.OriginCellIDs, cellID)
	}
	return
}

func (sm *SubMesh) NumberOfCells() int {
	if sm.Mesh == nil {
		return 0
	}
	return sm.Mesh.NumberOfCells()
}
