package clinit

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/redopt/clinit/pkg/irmodel"
)

// TypeToInits exposes the full class -> method -> construction-instruction
// -> records index.
func (r *Result) TypeToInits() map[irmodel.Type]map[string]map[irmodel.Instruction][]*ObjectUses {
	return r.Index.TypeToInits()
}

// AllUsesFrom returns every ObjectUses recorded for class/method.
func (r *Result) AllUsesFrom(class irmodel.Type, method string) []*ObjectUses {
	return r.Index.ForType(class, method)
}

// MergedUses returns every MergedUses value ever promoted during the run,
// i.e. every group of construction sites this analysis could not tell
// apart along some path.
func (r *Result) MergedUses() []*MergedUses {
	return r.Store.All()
}

// DebugShowTable renders a one-row-per-(class,method) summary table: how
// many constructions were seen, and how many unsafe escape instructions
// were recorded across all of them. It's meant for interactive debugging, not for
// programmatic consumption; use TypeToInits/AllUsesFrom/MergedUses for
// that.
func (r *Result) DebugShowTable(w io.Writer) {
	type row struct {
		class, method string
		constructions int
		unsafeEscapes int
		merged        bool
	}

	byClass := r.TypeToInits()
	var rows []row
	for class, byMethod := range byClass {
		for method, byInst := range byMethod {
			count := 0
			unsafe := 0
			merged := false
			for _, objs := range byInst {
				for _, obj := range objs {
					count++
					if obj.Usage == nil {
						continue
					}
					unsafe += countUnsafeEscapes(obj.Usage)
				}
			}
			for _, mu := range r.Store.All() {
				if _, ok := mu.Types[class]; ok {
					merged = true
					break
				}
			}
			rows = append(rows, row{class: class.Name(), method: method, constructions: count, unsafeEscapes: unsafe, merged: merged})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].class != rows[j].class {
			return rows[i].class < rows[j].class
		}
		return rows[i].method < rows[j].method
	})

	table := tablewriter.NewTable(w, tablewriter.WithHeader([]string{"class", "method", "constructions", "unsafe escapes", "merged"}))
	for _, rr := range rows {
		_ = table.Append([]string{rr.class, rr.method, fmt.Sprintf("%d", rr.constructions), fmt.Sprintf("%d", rr.unsafeEscapes), fmt.Sprintf("%t", rr.merged)})
	}
	_ = table.Render()
}

// DebugShowDetail renders one line per recorded ObjectUses (and one per
// promoted MergedUses), rather than DebugShowTable's per-(class,method)
// rollup: the detail view the `show` subcommand prints, as opposed to
// `analyze`'s summary table.
func (r *Result) DebugShowDetail(w io.Writer) {
	byClass := r.TypeToInits()

	var classes []irmodel.Type
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name() < classes[j].Name() })

	for _, class := range classes {
		byMethod := byClass[class]
		var methods []string
		for method := range byMethod {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		for _, method := range methods {
			for _, objs := range byMethod[method] {
				for _, obj := range objs {
					unsafe := 0
					if obj.Usage != nil {
						unsafe = countUnsafeEscapes(obj.Usage)
					}
					fmt.Fprintf(w, "%s#%s: construction flow=%v unsafe_escapes=%d\n",
						class.Name(), method, obj.CreatedFlow, unsafe)
				}
			}
		}
	}

	for _, mu := range r.MergedUses() {
		var typeNames []string
		for t := range mu.Types {
			typeNames = append(typeNames, t.Name())
		}
		sort.Strings(typeNames)
		fmt.Fprintf(w, "merged: types=%v sites=%d nullable=%t flow=%v\n",
			typeNames, len(mu.Insts), mu.Nullable, mu.CreatedFlow)
	}
}

func countUnsafeEscapes(u *UsageRecord) int {
	n := 0
	if u.Escapes.Return != nil {
		n += len(u.Escapes.Return.Insts)
	}
	if u.Escapes.ArrayStore != nil {
		n += len(u.Escapes.ArrayStore.Insts)
	}
	for _, e := range u.Escapes.FieldStore {
		n += len(e.Insts)
	}
	for _, e := range u.Escapes.StaticCall {
		n += len(e.Insts)
	}
	for _, e := range u.Escapes.VirtualCall {
		n += len(e.Insts)
	}
	return n
}
