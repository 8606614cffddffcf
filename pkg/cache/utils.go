package cache

// GenerateKey joins a namespace and id into a cache key.
func GenerateKey(prefix string, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + ":" + id
}
