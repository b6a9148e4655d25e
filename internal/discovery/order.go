package discovery

import (
	"slices"
	"strings"

	"github.com/Lllllllleong/pageresizer/internal/models"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// OrderBy selects the sort key imposed on discovered documents.
type OrderBy string

const (
	OrderByName             OrderBy = "name"
	OrderByCreationTime     OrderBy = "creation_time"
	OrderByModificationTime OrderBy = "modification_time"
	OrderByPassthrough      OrderBy = "passthrough"
)

var orderAliases = map[string]OrderBy{
	"name":                   OrderByName,
	"creation_time":          OrderByCreationTime,
	"creationtime":           OrderByCreationTime,
	"creation_date":          OrderByCreationTime,
	"modification_time":      OrderByModificationTime,
	"modificationtime":       OrderByModificationTime,
	"last_modification_date": OrderByModificationTime,
	"passthrough":            OrderByPassthrough,
	"pass-through":           OrderByPassthrough,
	"none":                   OrderByPassthrough,
}

// ParseOrderBy maps a user supplied policy name onto an OrderBy.
func ParseOrderBy(s string) (OrderBy, error) {
	if o, ok := orderAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return o, nil
	}
	return "", resizeerr.Config(resizeerr.ErrInvalidConfig,
		"use name, creation_time, modification_time or passthrough", "order policy %q", s)
}

// Order returns refs sorted by policy. Sorting is stable, so ties keep their
// discovery order, and the input slice is never modified.
func Order(refs []models.DocumentRef, policy OrderBy) ([]models.DocumentRef, error) {
	out := slices.Clone(refs)
	switch policy {
	case OrderByName:
		slices.SortStableFunc(out, func(a, b models.DocumentRef) int {
			return strings.Compare(a.Name, b.Name)
		})
	case OrderByCreationTime:
		slices.SortStableFunc(out, func(a, b models.DocumentRef) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	case OrderByModificationTime:
		slices.SortStableFunc(out, func(a, b models.DocumentRef) int {
			return a.ModifiedAt.Compare(b.ModifiedAt)
		})
	case OrderByPassthrough:
	default:
		return nil, resizeerr.Config(resizeerr.ErrInvalidConfig,
			"use name, creation_time, modification_time or passthrough", "order policy %q", string(policy))
	}
	return out, nil
}
