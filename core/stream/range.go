package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrRangeUnsatisfiable covers both bad Range syntax and ranges outside the file.
var ErrRangeUnsatisfiable = errors.New("range not satisfiable")

// Only a single range is accepted; "bytes=0-1,5-9" does not match.
var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// ByteRange is an inclusive byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range value for a satisfied range.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedContentRange formats the Content-Range value sent with a 416.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange resolves a Range header against a file of size bytes. An empty
// header selects the whole file and partial is false. Otherwise the header must
// be one of bytes=S-E, bytes=S- or bytes=-N; the result is clamped to the file
// and partial is true.
func ParseRange(header string, size int64) (r ByteRange, partial bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ByteRange{Start: 0, End: size - 1}, false, nil
	}
	if size <= 0 {
		return ByteRange{}, false, ErrRangeUnsatisfiable
	}

	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return ByteRange{}, false, ErrRangeUnsatisfiable
	}
	rawStart, rawEnd := m[1], m[2]

	var start, end int64
	if rawStart == "" {
		suffix, err := strconv.ParseInt(rawEnd, 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			suffix = size
			err = nil
		}
		if err != nil || suffix == 0 {
			return ByteRange{}, false, ErrRangeUnsatisfiable
		}
		start = max(0, size-suffix)
		end = size - 1
	} else {
		start, err = strconv.ParseInt(rawStart, 10, 64)
		if err != nil {
			return ByteRange{}, false, ErrRangeUnsatisfiable
		}
		end = size - 1
		if rawEnd != "" {
			parsedEnd, err := strconv.ParseInt(rawEnd, 10, 64)
			if err != nil {
				// Digits only, so this is overflow: the end is past EOF anyway.
				parsedEnd = size - 1
			}
			end = min(parsedEnd, size-1)
		}
	}

	if start > end || start >= size {
		return ByteRange{}, false, ErrRangeUnsatisfiable
	}
	return ByteRange{Start: start, End: end}, true, nil
}
