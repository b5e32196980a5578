package sync

import (
	"sort"

	"practice-sync-client/internal/store"
)

var typeRank = map[store.OperationType]int{
	store.OpCreate: 0,
	store.OpUpdate: 1,
	store.OpDelete: 2,
}

// orderOperations orders a queue snapshot in two phases. Phase one is a
// stable sort by (priority ascending, createdAt ascending) for fairness.
// Phase two groups operations by resource and reorders each group
// create < update < delete, then createdAt, so a create always reaches the
// remote before any update or delete on the same not-yet-created resource.
// Groups are flattened back in first-appearance order, which keeps the
// overall priority ordering approximately intact.
func orderOperations(ops []*store.SyncOperation) []*store.SyncOperation {
	sorted := make([]*store.SyncOperation, len(ops))
	copy(sorted, ops)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	groups := make(map[string][]*store.SyncOperation)
	var groupOrder []string
	for _, op := range sorted {
		key := op.ResourceType + "/" + op.ResourceID
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], op)
	}

	result := make([]*store.SyncOperation, 0, len(sorted))
	for _, key := range groupOrder {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			if typeRank[group[i].Type] != typeRank[group[j].Type] {
				return typeRank[group[i].Type] < typeRank[group[j].Type]
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		result = append(result, group...)
	}
	return result
}

// partition splits ordered operations into batches of at most size.
func partition(ops []*store.SyncOperation, size int) [][]*store.SyncOperation {
	if size <= 0 {
		size = 1
	}
	var batches [][]*store.SyncOperation
	for len(ops) > 0 {
		n := size
		if n > len(ops) {
			n = len(ops)
		}
		batches = append(batches, ops[:n])
		ops = ops[n:]
	}
	return batches
}
