package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func kinds(blocks []Block) []Kind {
	out := make([]Kind, len(blocks))
	for i, b := range blocks {
		out[i] = b.Kind
	}
	return out
}

func TestChunkBlocks(t *testing.T) {
	md := strings.Join([]string{
		"# 学級通信",
		"",
		"今週は **運動会** がありました。",
		"とても [楽しかった](https://example.com) です。",
		"",
		"- 水筒",
		"- 帽子",
		"1. 集合",
		"",
		"![校庭の写真](photo-placeholder)",
		"",
		"---",
		"",
		"| 日付 | 行事 |",
		"| --- | --- |",
		"| 10/20 | 遠足 |",
		"",
		"```",
		"code line",
		"```",
	}, "\n")

	blocks := New(0).Chunk(md)
	require.Equal(t, []Kind{Heading, Paragraph, ListItem, ListItem, ListItem, Image, Rule, Table, Code}, kinds(blocks))
	require.Equal(t, 1, blocks[0].Level)
	require.Equal(t, "今週は 運動会 がありました。 とても 楽しかった です。", blocks[1].Text)
	require.Equal(t, "• 水筒", blocks[2].Text)
	require.Equal(t, "校庭の写真", blocks[5].Text)
	require.Equal(t, []string{"日付  |  行事", "10/20  |  遠足"}, blocks[7].Lines)
	require.Equal(t, "code line", blocks[8].Text)
}

func TestChunkSplitsLongParagraphs(t *testing.T) {
	long := strings.Repeat("word ", 100)
	blocks := New(60).Chunk(long)
	require.Greater(t, len(blocks), 1)
	for _, b := range blocks {
		require.Equal(t, Paragraph, b.Kind)
		require.LessOrEqual(t, utf8.RuneCountInString(b.Text), 61)
	}
	var joined []string
	for _, b := range blocks {
		joined = append(joined, b.Text)
	}
	require.Equal(t, strings.TrimSpace(long), strings.Join(joined, " "))
}

func TestCleanInline(t *testing.T) {
	require.Equal(t, "bold and code and link", CleanInline("**bold** and `code` and [link](http://x)"))
	require.Equal(t, "1. item", CleanInline(`1\. item`))
}
