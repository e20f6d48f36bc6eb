package datadir

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

var ErrMalformedTemplate = errors.New("first line has no channel number")

var firstNumber = regexp.MustCompile(`\d+`)

// RewriteChannel replaces the first decimal integer on the first line of the
// file at path with channel. Every other byte of the file is kept as is.
func RewriteChannel(path string, channel int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		end = len(data)
	}
	first, rest := data[:end], data[end:]

	loc := firstNumber.FindIndex(first)
	if loc == nil {
		return fmt.Errorf("%s: %w", path, ErrMalformedTemplate)
	}

	var out bytes.Buffer
	out.Grow(len(data) + 4)
	out.Write(first[:loc[0]])
	out.WriteString(strconv.Itoa(channel))
	out.Write(first[loc[1]:])
	out.Write(rest)

	return os.WriteFile(path, out.Bytes(), 0o644)
}
