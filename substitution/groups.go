package substitution

// Pair is an undirected "these two are interchangeable" edge
type Pair[T comparable] struct {
	A T
	B T
}

// GroupsFromPairs combines overlapping pairs into groups. In set theoretic
// terms the pairs form an equivalence relation and the groups are the
// equivalence classes it induces:
//
//	[(1,2), (3,4), (5,6), (1,3)] -> [[1 2 3 4] [5 6]]
//
// Groups come out in order of their first-inserted member and members keep
// insertion order.
func GroupsFromPairs[T comparable](pairs []Pair[T]) [][]T {
	// groupOf maps each element to an index into the arena. Merged-away slots
	// are left empty and never referenced again.
	groupOf := make(map[T]int)
	var arena [][]T
	var order []T

	lookup := func(element T) int {
		if idx, ok := groupOf[element]; ok {
			return idx
		}
		arena = append(arena, []T{element})
		idx := len(arena) - 1
		groupOf[element] = idx
		order = append(order, element)
		return idx
	}

	for _, pair := range pairs {
		idx := lookup(pair.A)
		other := lookup(pair.B)
		if idx == other {
			continue
		}
		arena[idx] = append(arena[idx], arena[other]...)
		for _, member := range arena[other] {
			groupOf[member] = idx
		}
		arena[other] = nil
	}

	var groups [][]T
	for _, element := range order {
		group := arena[groupOf[element]]
		if group[0] == element {
			groups = append(groups, group)
		}
	}
	return groups
}
