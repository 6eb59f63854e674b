// Package comments turns the flat comment list of a post into a reply forest.
package comments

import (
	"slices"

	"example.com/mindfeed/internal/models"
)

// BuildTree nests comments under their direct parent and orders every level
// newest first. Comments whose parent is missing, is themselves, or would close
// a cycle are returned as roots. The input slice is not modified.
func BuildTree(flat []models.Comment) []*models.Comment {
	if len(flat) == 0 {
		return []*models.Comment{}
	}

	byID := make(map[string]*models.Comment, len(flat))
	for i := range flat {
		c := flat[i]
		c.Replies = []*models.Comment{}
		byID[c.ID] = &c
	}

	// attachedTo records the parent each placed comment hangs under.
	attachedTo := make(map[string]string, len(flat))
	placed := make(map[string]bool, len(flat))
	roots := make([]*models.Comment, 0, len(flat))

	for i := range flat {
		id := flat[i].ID
		if placed[id] {
			continue
		}
		placed[id] = true
		node := byID[id]

		if node.Parent == nil {
			roots = append(roots, node)
			continue
		}
		parentID := *node.Parent
		parent, ok := byID[parentID]
		if !ok || parentID == id || isAncestor(attachedTo, id, parentID) {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
		attachedTo[id] = parentID
	}

	sortByRecency(roots)
	return roots
}

// isAncestor reports whether id is reachable walking up from start.
func isAncestor(attachedTo map[string]string, id, start string) bool {
	for cur, steps := start, 0; steps <= len(attachedTo); steps++ {
		if cur == id {
			return true
		}
		next, ok := attachedTo[cur]
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

func sortByRecency(level []*models.Comment) {
	slices.SortStableFunc(level, func(a, b *models.Comment) int {
		return b.CommentedAt.Compare(a.CommentedAt)
	})
	for _, c := range level {
		sortByRecency(c.Replies)
	}
}

// Walk visits every comment depth first, roots at depth 0.
func Walk(forest []*models.Comment, fn func(c *models.Comment, depth int)) {
	var visit func(level []*models.Comment, depth int)
	visit = func(level []*models.Comment, depth int) {
		for _, c := range level {
			fn(c, depth)
			visit(c.Replies, depth+1)
		}
	}
	visit(forest, 0)
}

// Count returns the number of comments in the forest.
func Count(forest []*models.Comment) int {
	n := 0
	Walk(forest, func(*models.Comment, int) { n++ })
	return n
}
