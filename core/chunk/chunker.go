// Package chunk splits Markdown into layout blocks. A block is the unit the
// PDF engine keeps together on one page or column; paragraphs longer than
// the chunk size are split at word boundaries so they can flow.
package chunk

import (
	"regexp"
	"strings"
)

// Kind classifies a block.
type Kind int

const (
	Paragraph Kind = iota
	Heading
	ListItem
	Code
	Table
	Image
	Rule
)

// Block is one keep-together unit.
type Block struct {
	Kind  Kind
	Level int    // heading level
	Text  string // plain text; for images, the alt text
	Lines []string
}

// Chunker splits Markdown into blocks.
type Chunker struct {
	ChunkSize int // max runes per paragraph block
}

// New creates a Chunker with the given chunk size.
// Defaults to 600 if chunkSize <= 0.
func New(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 600
	}
	return &Chunker{ChunkSize: chunkSize}
}

var (
	headingRegex  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	imageRegex    = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)]*)\)$`)
	bulletRegex   = regexp.MustCompile(`^\s*[-*+]\s+(.+)$`)
	numberedRegex = regexp.MustCompile(`^\s*\d+[.)]\s+.+$`)
	ruleRegex     = regexp.MustCompile(`^\s*[-*_](\s*[-*_]){2,}\s*$`)
	tableRowRegex = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableSepRegex = regexp.MustCompile(`^\s*\|[-:| ]+\|\s*$`)
)

// Chunk splits markdown into blocks in document order.
func (c *Chunker) Chunk(markdown string) []Block {
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")
	var blocks []Block
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		text := strings.Join(para, " ")
		para = nil
		for _, piece := range c.split(text) {
			blocks = append(blocks, Block{Kind: Paragraph, Text: piece})
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "```"):
			flush()
			var code []string
			for i++; i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```"); i++ {
				code = append(code, lines[i])
			}
			blocks = append(blocks, Block{Kind: Code, Text: strings.Join(code, "\n"), Lines: code})
		case trimmed == "":
			flush()
		case headingRegex.MatchString(trimmed):
			flush()
			m := headingRegex.FindStringSubmatch(trimmed)
			blocks = append(blocks, Block{Kind: Heading, Level: len(m[1]), Text: CleanInline(m[2])})
		case imageRegex.MatchString(trimmed):
			flush()
			m := imageRegex.FindStringSubmatch(trimmed)
			blocks = append(blocks, Block{Kind: Image, Text: strings.TrimSpace(m[1])})
		case ruleRegex.MatchString(trimmed):
			flush()
			blocks = append(blocks, Block{Kind: Rule})
		case tableRowRegex.MatchString(trimmed):
			flush()
			var rows []string
			for ; i < len(lines) && tableRowRegex.MatchString(strings.TrimSpace(lines[i])); i++ {
				row := strings.TrimSpace(lines[i])
				if tableSepRegex.MatchString(row) {
					continue
				}
				rows = append(rows, tableCells(row))
			}
			i--
			blocks = append(blocks, Block{Kind: Table, Text: strings.Join(rows, "\n"), Lines: rows})
		case bulletRegex.MatchString(line):
			flush()
			m := bulletRegex.FindStringSubmatch(line)
			blocks = append(blocks, Block{Kind: ListItem, Text: "• " + CleanInline(m[1])})
		case numberedRegex.MatchString(line):
			flush()
			blocks = append(blocks, Block{Kind: ListItem, Text: CleanInline(trimmed)})
		default:
			para = append(para, CleanInline(trimmed))
		}
	}
	flush()
	return blocks
}

// split breaks text into pieces of at most ChunkSize runes, preferring
// word boundaries.
func (c *Chunker) split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.ChunkSize {
		return []string{text}
	}
	var pieces []string
	for len(runes) > c.ChunkSize {
		cut := c.ChunkSize
		for j := cut; j > c.ChunkSize/2; j-- {
			if runes[j] == ' ' || runes[j] == '。' || runes[j] == '、' {
				cut = j + 1
				break
			}
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}

func tableCells(row string) string {
	row = strings.Trim(strings.TrimSpace(row), "|")
	cells := strings.Split(row, "|")
	for i, cell := range cells {
		cells[i] = CleanInline(strings.TrimSpace(cell))
	}
	return strings.Join(cells, "  |  ")
}

var (
	italicRegex = regexp.MustCompile(`(?:^|\s)\*([^*]+)\*(?:\s|$)`)
	codeRegex   = regexp.MustCompile("`([^`]+)`")
	linkRegex   = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
	escapeRegex = regexp.MustCompile(`\\([\\*_#\[\]()|.!+-])`)
)

// CleanInline strips inline Markdown formatting for plain-text layout.
func CleanInline(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = italicRegex.ReplaceAllString(text, " $1 ")
	text = codeRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	text = escapeRegex.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
