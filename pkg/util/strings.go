package util

// Truncate returns at most n characters (runes) of s. Invalid UTF-8 bytes
// count as one character each. A non-positive n yields "".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		// n bytes is never more than n runes
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

