package util

import "regexp"

var (
	// commandNameRe matches shell function names as bash accepts them
	// in practice, including Verb-Noun style names.
	commandNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.:-]*$`)

	// libraryNameRe excludes path separators so a library name can
	// never escape its search-path directory.
	libraryNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)
)

// ValidCommandName reports whether s can name a remote command.
func ValidCommandName(s string) bool { return commandNameRe.MatchString(s) }

// ValidLibraryName reports whether s can name a remote library.
func ValidLibraryName(s string) bool { return libraryNameRe.MatchString(s) }
