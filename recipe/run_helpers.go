package recipe

import "os"

// openDevNull opens the platform's null device for use as a command's
// stdin, matching the spec's "stdin redirected from /dev/null".
func openDevNull() (*os.File, error) {
	return os.Open(os.DevNull)
}

func stdout() *os.File { return os.Stdout }
func stderr() *os.File { return os.Stderr }
