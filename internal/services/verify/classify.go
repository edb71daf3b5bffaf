// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify

import (
	"strings"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// Keyword sets marking an identity as institution staff. Affiliations
// use the directory's singular forms, group names the plural ones.
var (
	elevatedAffiliations = []string{"employee", "faculty", "staff", "teacher"}
	elevatedGroups       = []string{"employees", "staff", "faculty", "teachers"}
)

// Classify maps provider attributes to a membership category.
// Affiliations are checked before groups; the affiliation attribute is
// authoritative when both are present. Matching is case-insensitive
// substring containment.
func Classify(groups, affiliations []string) models.Category {
	for _, affiliation := range affiliations {
		if containsAny(affiliation, elevatedAffiliations) {
			return models.CategoryElevated
		}
	}
	for _, group := range groups {
		if containsAny(group, elevatedGroups) {
			return models.CategoryElevated
		}
	}
	return models.CategoryStandard
}

func containsAny(value string, keywords []string) bool {
	lowered := strings.ToLower(value)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
