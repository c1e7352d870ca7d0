package workflow

// PinnedRangeKeys are the parameters whose range must equal their value before
// a workflow is sent to the optimizer.
var PinnedRangeKeys = []string{"time_zone", "default_time_zone", "locale", "encoding", "io_object"}

// PinParameterRanges sets the range of every pinned parameter to its current
// value, on every level of the tree.
func (w *Workflow) PinParameterRanges() {
	keys := make(map[string]struct{}, len(PinnedRangeKeys))
	for _, k := range PinnedRangeKeys {
		keys[k] = struct{}{}
	}
	w.Walk(func(level *Workflow) bool {
		for _, op := range level.Operators {
			for _, p := range op.Parameters {
				if _, ok := keys[p.Key]; ok {
					p.Range = p.Value
				}
			}
		}
		return true
	})
}
