package sqlite

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}
