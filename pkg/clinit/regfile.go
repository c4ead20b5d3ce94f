package clinit

// RegisterFile is the per-program-point map from register number to
// Tracked value, plus the set of every Tracked value ever
// inserted into it (so overwriting a register does not lose its usage
// record) and the per-value usage records owned by those values.
type RegisterFile struct {
	regs    map[int]Tracked
	allSeen map[Tracked]struct{}
	records map[Tracked]*UsageRecord
}

func NewRegisterFile() *RegisterFile {
	return &RegisterFile{
		regs:    make(map[int]Tracked),
		allSeen: make(map[Tracked]struct{}),
		records: make(map[Tracked]*UsageRecord),
	}
}

// Get returns the tracked value held in reg, or nil (bottom) if absent.
func (rf *RegisterFile) Get(reg int) Tracked {
	return rf.regs[reg]
}

// Set installs v into reg, remembering it in the all-seen set and giving
// it a fresh usage record if this is the first time this value has been
// observed.
func (rf *RegisterFile) Set(reg int, v Tracked) {
	if v == nil {
		delete(rf.regs, reg)
		return
	}
	rf.regs[reg] = v
	rf.allSeen[v] = struct{}{}
	if _, ok := rf.records[v]; !ok {
		rf.records[v] = NewUsageRecord()
	}
}

// Clear resets reg to bottom. The previously-held value, if any, survives
// in the all-seen set and keeps its usage record.
func (rf *RegisterFile) Clear(reg int) {
	delete(rf.regs, reg)
}

// Record returns the usage record owned by v, creating one if this is the
// first time v has been observed in this register file.
func (rf *RegisterFile) Record(v Tracked) *UsageRecord {
	if v == nil {
		return nil
	}
	rf.allSeen[v] = struct{}{}
	r, ok := rf.records[v]
	if !ok {
		r = NewUsageRecord()
		rf.records[v] = r
	}
	return r
}

// AllSeen returns every Tracked value ever inserted into this register
// file, including those since overwritten.
func (rf *RegisterFile) AllSeen() []Tracked {
	out := make([]Tracked, 0, len(rf.allSeen))
	for v := range rf.allSeen {
		out = append(out, v)
	}
	return out
}

// Fork returns a deep-enough copy for independent mutation along two
// divergent successors: register and all-seen mappings are copied, and
// usage records are cloned so in-place amendment on one branch cannot
// leak into the other.
func (rf *RegisterFile) Fork() *RegisterFile {
	cp := NewRegisterFile()
	for r, v := range rf.regs {
		cp.regs[r] = v
	}
	for v := range rf.allSeen {
		cp.allSeen[v] = struct{}{}
	}
	for v, rec := range rf.records {
		cp.records[v] = rec.clone()
	}
	return cp
}

// CombinePathsRegisterFiles joins two register files observed at
// divergent successors of the same predecessor (the "in(B)" fold).
// Either argument may stand in for a predecessor that has not yet
// produced a result, in which case pass an empty *RegisterFile
// (representing bottom for every register and every value).
func CombinePathsRegisterFiles(a, b *RegisterFile, store *MergeStore) *RegisterFile {
	out := NewRegisterFile()
	regKeys := make(map[int]struct{}, len(a.regs)+len(b.regs))
	for r := range a.regs {
		regKeys[r] = struct{}{}
	}
	for r := range b.regs {
		regKeys[r] = struct{}{}
	}
	for r := range regKeys {
		out.Set(r, CombinePathsValues(a.regs[r], b.regs[r], store))
	}

	valueKeys := make(map[Tracked]struct{}, len(a.allSeen)+len(b.allSeen))
	for v := range a.allSeen {
		valueKeys[v] = struct{}{}
	}
	for v := range b.allSeen {
		valueKeys[v] = struct{}{}
	}
	for v := range valueKeys {
		out.allSeen[v] = struct{}{}
		out.records[v] = CombinePathsUsage(a.records[v], b.records[v])
	}
	return out
}

// ConsistentWithRegisterFile is the fixpoint convergence test at the
// register-file granularity used by the CFG driver: true iff self (the
// newly-computed state) is already subsumed by other (the previous
// iteration's state): nothing would widen by accepting other again. The
// CFG driver applies it, in both directions, to a block's new and
// previous out(B).
func ConsistentWithRegisterFile(self, other *RegisterFile) bool {
	for r, v := range self.regs {
		ov, ok := other.regs[r]
		if !ok {
			return false
		}
		if v != ov && !ConsistentWith(v, ov) {
			return false
		}
	}
	for v, rec := range self.records {
		orec, ok := other.records[v]
		if !ok {
			return false
		}
		if !ConsistentWithUsage(rec, orec) {
			return false
		}
	}
	return true
}
