package config

import (
	"fmt"
	"sort"
)

// RequireNonEmpty reports the first (by env name) empty value.
func RequireNonEmpty(values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if values[name] == "" {
			return fmt.Errorf("missing required env %s", name)
		}
	}
	return nil
}
