// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package rdap

import (
	"fmt"
	"strings"
)

// Entity roles in order of preference. Registrant entities whose handle
// starts with ORG- outrank other registrants.
var rolePreference = []string{"customer", "registrant", "administrative", "technical", "abuse"}

// OwnerName picks the organization name of an IP network object.
// Maintainer entities (-MNT handles) are never used.
func OwnerName(response *Response) (string, error) {
	if response == nil {
		return "", fmt.Errorf("nil RDAP response")
	}

	byRole := make(map[string]*Entity)
	for i := range response.Entities {
		entity := &response.Entities[i]
		if strings.HasSuffix(entity.Handle, "-MNT") {
			continue
		}
		for _, role := range entity.Roles {
			role = strings.ToLower(role)
			current, seen := byRole[role]
			switch {
			case !seen:
				byRole[role] = entity
			case role == "registrant" && !isOrgHandle(current.Handle) && isOrgHandle(entity.Handle):
				byRole[role] = entity
			}
		}
	}

	for _, role := range rolePreference {
		// A descriptive network name beats contact roles
		if role == "administrative" && goodNetworkName(response.Name) {
			return CleanOrgName(response.Name), nil
		}
		entity, ok := byRole[role]
		if !ok {
			continue
		}
		if name := nestedName(entity); name != "" {
			return CleanOrgName(name), nil
		}
	}

	for i := range response.Entities {
		if name := EntityName(&response.Entities[i]); name != "" {
			return CleanOrgName(name), nil
		}
	}

	if response.Name != "" && !strings.HasSuffix(response.Name, "-MNT") {
		return CleanOrgName(response.Name), nil
	}

	if name := orgFromRemarks(response); name != "" {
		return CleanOrgName(name), nil
	}

	return "", fmt.Errorf("no organization name found in RDAP response")
}

func isOrgHandle(handle string) bool {
	return strings.HasPrefix(handle, "ORG-")
}

func goodNetworkName(name string) bool {
	return len(name) > 3 &&
		!strings.HasSuffix(name, "-MNT") &&
		!strings.HasPrefix(name, "UK-")
}

// nestedName returns the entity's own name or the first named child
func nestedName(entity *Entity) string {
	if name := EntityName(entity); name != "" {
		return name
	}
	for i := range entity.Entities {
		if name := EntityName(&entity.Entities[i]); name != "" {
			return name
		}
	}
	return ""
}

// orgFromRemarks looks for "org-name:" or "organisation:" lines in remarks
func orgFromRemarks(response *Response) string {
	for _, remark := range response.Remarks {
		for _, desc := range remark.Description {
			key, value, ok := strings.Cut(desc, ":")
			if !ok {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "org-name", "organisation":
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// CleanOrgName trims quotes and collapses whitespace
func CleanOrgName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "\"'")
	return strings.Join(strings.Fields(name), " ")
}
