package cache

import "fmt"

// AllLocations is the key segment used when a list query has no location filter
const AllLocations = "all"

// ListKey is the key for a list query: "<domain>_<location|all>"
func ListKey(domain, location string) string {
	if location == "" {
		location = AllLocations
	}
	return domain + "_" + location
}

// ItemKey is the key for a single-item query: "<domain>_<id>"
func ItemKey(domain, id string) string {
	return domain + "_" + id
}

// PageKey is the key for a paginated admin query
func PageKey(domain string, page, size int) string {
	return fmt.Sprintf("%s_page_%d_%d", domain, page, size)
}

// DomainPattern matches every key derived for domain
func DomainPattern(domain string) string {
	return domain + "_"
}
