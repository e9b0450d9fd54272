package report

// Dependency ordering for variable definitions. Edges run from a variable to
// the variables referenced by placeholders inside its own condition and value
// expressions. A referenced name with no Values row is assumed to be supplied
// by the data-source provider and is treated as a leaf.

type visitColor int

const (
	colorWhite visitColor = iota // unvisited
	colorGray                    // in progress
	colorBlack                   // done
)

// OrderVariables returns the names of the formula-defined variables in
// dependency-first order: consuming the sequence front to back, every
// variable's dependencies appear before the variable itself.
//
// A reference cycle is reported as a CircularDependencyError naming the
// cycle's members in discovery order.
func OrderVariables(defs []VariableDefinition) ([]string, error) {
	byName := make(map[string]*VariableDefinition, len(defs))
	for i := range defs {
		byName[defs[i].Name] = &defs[i]
	}

	colors := make(map[string]visitColor, len(defs))
	order := make([]string, 0, len(defs))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = colorGray
		path = append(path, name)

		def := byName[name]
		for _, dep := range referencedNames(def.expressions()...) {
			if dep == name {
				// Self-references are resolved by the evaluator, not
				// the traversal.
				continue
			}
			if _, defined := byName[dep]; !defined {
				continue // provider-supplied leaf
			}
			switch colors[dep] {
			case colorGray:
				return cycleError(path, dep)
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		colors[name] = colorBlack
		path = path[:len(path)-1]
		order = append(order, name)
		return nil
	}

	for i := range defs {
		if colors[defs[i].Name] == colorWhite {
			if err := visit(defs[i].Name); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// cycleError trims the traversal path down to the cycle's members, starting
// at the first occurrence of the revisited variable.
func cycleError(path []string, member string) error {
	for i, name := range path {
		if name == member {
			members := make([]string, 0, len(path)-i)
			members = append(members, path[i:]...)
			return &CircularDependencyError{Members: members}
		}
	}
	return &CircularDependencyError{Members: []string{member}}
}
