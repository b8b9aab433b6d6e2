package effect

import "github.com/udisondev/la2go-effects/internal/data"

// ReflectRecord is the single active reflect entry of a registry.
type ReflectRecord struct {
	InstanceID int32
	EffectID   int32
	CasterID   ActorID
	Reflect    data.Reflect
}

// resistanceSum is the raw running sum of one attribute and the number of
// attached instances contributing to it. The sum may go negative; reads clamp.
type resistanceSum struct {
	sum          float64
	contributors int
}

// reflectCandidate is an attached reflect instance and its attach order.
type reflectCandidate struct {
	order  uint64
	record ReflectRecord
}

// derivedIndex holds lookup tables maintained incrementally from attach/detach.
// Never rebuilt from the full instance set.
type derivedIndex struct {
	resistances map[data.Attribute]resistanceSum
	reflect     *ReflectRecord
	reflectors  map[int32]reflectCandidate
	attachOrder uint64
	invokes     map[data.InvokeType]map[int32]*data.Invoke
	compulsions map[data.CompulsionEvent]map[int32]*data.Compulsion
}

func newDerivedIndex() derivedIndex {
	return derivedIndex{
		resistances: make(map[data.Attribute]resistanceSum),
		reflectors:  make(map[int32]reflectCandidate),
		invokes:     make(map[data.InvokeType]map[int32]*data.Invoke),
		compulsions: make(map[data.CompulsionEvent]map[int32]*data.Compulsion),
	}
}

// attach adds the instance's contributions. O(sub-record count).
func (ix *derivedIndex) attach(in *Instance) {
	def := in.def
	for attr, v := range def.Resistances {
		rs := ix.resistances[attr]
		rs.sum += v
		rs.contributors++
		ix.resistances[attr] = rs
	}
	if def.Reflect != nil {
		// Latest attach wins.
		ix.attachOrder++
		c := reflectCandidate{
			order: ix.attachOrder,
			record: ReflectRecord{
				InstanceID: in.id,
				EffectID:   def.ID,
				CasterID:   in.casterID,
				Reflect:    *def.Reflect,
			},
		}
		ix.reflectors[in.id] = c
		ix.reflect = &c.record
	}
	if def.Invoke != nil {
		byID, ok := ix.invokes[def.Invoke.Type]
		if !ok {
			byID = make(map[int32]*data.Invoke)
			ix.invokes[def.Invoke.Type] = byID
		}
		byID[in.id] = def.Invoke
	}
	if def.Compulsion != nil {
		byID, ok := ix.compulsions[def.Compulsion.Event]
		if !ok {
			byID = make(map[int32]*data.Compulsion)
			ix.compulsions[def.Compulsion.Event] = byID
		}
		byID[in.id] = def.Compulsion
	}
	in.attached = true
}

// detach removes the instance's contributions. Returns the names of entries
// that were expected but missing, which indicates a desynchronized index.
func (ix *derivedIndex) detach(in *Instance) []string {
	var missing []string
	def := in.def

	for attr, v := range def.Resistances {
		rs, ok := ix.resistances[attr]
		if !ok {
			missing = append(missing, "resistance:"+string(attr))
			continue
		}
		rs.contributors--
		if rs.contributors <= 0 {
			delete(ix.resistances, attr)
			continue
		}
		rs.sum -= v
		ix.resistances[attr] = rs
	}
	if def.Reflect != nil {
		if _, ok := ix.reflectors[in.id]; !ok {
			missing = append(missing, "reflect")
		}
		delete(ix.reflectors, in.id)
		if ix.reflect != nil && ix.reflect.InstanceID == in.id {
			ix.reflect = ix.latestReflector()
		}
	}
	if def.Invoke != nil {
		byID := ix.invokes[def.Invoke.Type]
		if _, ok := byID[in.id]; !ok {
			missing = append(missing, "invoke:"+string(def.Invoke.Type))
		}
		delete(byID, in.id)
		if len(byID) == 0 {
			delete(ix.invokes, def.Invoke.Type)
		}
	}
	if def.Compulsion != nil {
		byID := ix.compulsions[def.Compulsion.Event]
		if _, ok := byID[in.id]; !ok {
			missing = append(missing, "compulsion:"+string(def.Compulsion.Event))
		}
		delete(byID, in.id)
		if len(byID) == 0 {
			delete(ix.compulsions, def.Compulsion.Event)
		}
	}
	in.attached = false
	return missing
}

// latestReflector returns the most recently attached remaining reflect record.
func (ix *derivedIndex) latestReflector() *ReflectRecord {
	var best *reflectCandidate
	for id := range ix.reflectors {
		c := ix.reflectors[id]
		if best == nil || c.order > best.order {
			best = &c
		}
	}
	if best == nil {
		return nil
	}
	return &best.record
}

func (ix *derivedIndex) resistance(attr data.Attribute) float64 {
	return max(ix.resistances[attr].sum, 0)
}
