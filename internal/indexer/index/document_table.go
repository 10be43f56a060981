package index

// DocumentTable maps document names to dense ids and back. Ids are assigned
// from 0 in insertion order and never reused.
type DocumentTable struct {
	nameToID map[string]uint32
	idToName []string
}

func NewDocumentTable() *DocumentTable {
	return &DocumentTable{
		nameToID: make(map[string]uint32),
	}
}

// Add registers name under the next id. Adding the same name twice yields
// two ids; ID returns the later one.
func (t *DocumentTable) Add(name string) uint32 {
	id := uint32(len(t.idToName))
	t.idToName = append(t.idToName, name)
	t.nameToID[name] = id
	return id
}

func (t *DocumentTable) ID(name string) (uint32, bool) {
	id, ok := t.nameToID[name]
	return id, ok
}

func (t *DocumentTable) Name(id uint32) (string, bool) {
	if int(id) >= len(t.idToName) {
		return "", false
	}
	return t.idToName[id], true
}

func (t *DocumentTable) Count() int {
	return len(t.idToName)
}
