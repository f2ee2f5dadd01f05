package app

import (
	"fmt"
	"strings"
)

// SplitText breaks text into chunks of at most size runes, preferring
// paragraph boundaries and hard-splitting paragraphs that are themselves
// oversized.
func SplitText(text string, size int) []string {
	var chunks []string
	var current string

	for _, para := range strings.Split(text, "\n") {
		sep := 0
		if current != "" {
			sep = 1
		}
		if runeLen(current)+runeLen(para)+sep <= size {
			if current != "" {
				current += "\n"
			}
			current += para
			continue
		}
		if current != "" {
			chunks = append(chunks, current)
		}
		if runeLen(para) > size {
			runes := []rune(para)
			for i := 0; i < len(runes); i += size {
				end := i + size
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[i:end]))
			}
			current = ""
		} else {
			current = para
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// LongMessage renders text with an optional title and per-part headers when
// it does not fit in a single chunk.
func LongMessage(text, title string, size int) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "==== %s ====\n\n", title)
	}

	chunks := SplitText(text, size)
	if len(chunks) == 1 {
		b.WriteString(chunks[0])
	} else {
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "[part %d/%d]\n%s\n\n", i+1, len(chunks), chunk)
		}
	}
	return strings.TrimSpace(b.String())
}

func runeLen(s string) int { return len([]rune(s)) }
