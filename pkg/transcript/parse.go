package transcript

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrParse = errors.New("transcript is not well-formed XML")

// segmentTag is the timed-text element holding one caption line.
const segmentTag = "text"

// Parse returns the character data of every <text> element in document
// order, newline separated and trimmed. Entities are decoded once, as the
// XML decoder does. The whole document must be well-formed, with a single
// root element; otherwise nothing is returned.
func Parse(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		segments []string
		current  strings.Builder
		depth    int // >0 while inside a segment
		level    int // element nesting from the root
		sawRoot  bool
		closed   bool // root element has ended
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if closed {
				return "", fmt.Errorf("%w: content after root element", ErrParse)
			}
			sawRoot = true
			level++
			if depth > 0 {
				depth++
			} else if t.Name.Local == segmentTag {
				depth = 1
				current.Reset()
			}
		case xml.EndElement:
			level--
			if level == 0 {
				closed = true
			}
			if depth > 0 {
				depth--
				if depth == 0 {
					segments = append(segments, current.String())
				}
			}
		case xml.CharData:
			if level == 0 && len(bytes.TrimSpace(t)) > 0 {
				return "", fmt.Errorf("%w: text outside root element", ErrParse)
			}
			if depth > 0 {
				current.Write(t)
			}
		}
	}

	if !sawRoot {
		return "", fmt.Errorf("%w: no root element", ErrParse)
	}

	return strings.TrimSpace(strings.Join(segments, "\n")), nil
}
