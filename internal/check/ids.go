package check

import (
	"slices"

	"cjses/internal/project"
)

func appendUnique(ids []project.ModuleID, id project.ModuleID) []project.ModuleID {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func sortIDs(ids []project.ModuleID) {
	slices.Sort(ids)
}
