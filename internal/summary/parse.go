// Package summary turns the generated conversation summary into typed
// blocks for display, and renders workflow markdown to HTML for host pages.
package summary

import "strings"

type BlockKind string

const (
	BlockSectionHeader BlockKind = "section-header"
	BlockBulletList    BlockKind = "bullet-list"
	BlockParagraph     BlockKind = "paragraph"
	BlockSeparator     BlockKind = "separator"
)

// Block is one classified unit of the summary text. Bullet lists carry
// Items; the other kinds carry Text.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`
}

// Parse classifies the summary line by line: lines wrapped entirely in
// emphasis markers become section headers, bullet-prefixed lines group into
// bullet lists, anything else is a paragraph. Section headers after the
// first are preceded by a separator block. Pure function; rendering only.
func Parse(text string) []Block {
	var blocks []Block
	var bullets []string
	sawHeader := false

	flushBullets := func() {
		if len(bullets) > 0 {
			blocks = append(blocks, Block{Kind: BlockBulletList, Items: bullets})
			bullets = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flushBullets()
			continue
		}

		if header, ok := headerText(line); ok {
			flushBullets()
			if sawHeader {
				blocks = append(blocks, Block{Kind: BlockSeparator})
			}
			sawHeader = true
			blocks = append(blocks, Block{Kind: BlockSectionHeader, Text: header})
			continue
		}

		if item, ok := bulletText(line); ok {
			bullets = append(bullets, item)
			continue
		}

		flushBullets()
		blocks = append(blocks, Block{Kind: BlockParagraph, Text: line})
	}
	flushBullets()
	return blocks
}

// headerText reports whether the whole line is wrapped in one pair of
// emphasis markers and returns the inner text.
func headerText(line string) (string, bool) {
	for _, marker := range []string{"**", "__", "*", "_"} {
		if len(line) <= 2*len(marker) {
			continue
		}
		if !strings.HasPrefix(line, marker) || !strings.HasSuffix(line, marker) {
			continue
		}
		inner := line[len(marker) : len(line)-len(marker)]
		inner = strings.TrimSpace(inner)
		// A line like "*one* and *two*" is emphasis inside text, not a
		// header; reject inner text that still contains the marker.
		if inner == "" || strings.Contains(inner, marker) {
			continue
		}
		return inner, true
	}
	return "", false
}

// bulletText reports whether the line starts with a bullet marker and
// returns the item text.
func bulletText(line string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}
