package achievement

// Evaluator selects the achievements a snapshot triggers.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an evaluator over a catalog.
func NewEvaluator(c *Catalog) *Evaluator {
	return &Evaluator{catalog: c}
}

// Catalog returns the evaluator's catalog.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// Evaluate returns the triggered definitions in kind order, keeping only
// the highest qualifying tier of each group.
func (e *Evaluator) Evaluate(s Snapshot) []Definition {
	best := make(map[string]Kind)
	for _, k := range Kinds() {
		r := registry[k]
		if !r.predicate(s) {
			continue
		}
		if cur, ok := best[r.group]; ok && registry[cur].tier >= r.tier {
			continue
		}
		best[r.group] = k
	}

	out := make([]Definition, 0, len(best))
	for _, k := range Kinds() {
		if best[registry[k].group] == k {
			out = append(out, e.catalog.Definition(k))
		}
	}
	return out
}
