package sqltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan(s string) (QuoteState, []int) {
	var q QuoteState
	var ends []int
	for i := 0; i < len(s); i++ {
		q.Step(s[i])
		if q.Terminates(s[i]) {
			ends = append(ends, i)
		}
	}
	return q, ends
}

func TestQuoteState_Terminators(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int
	}{
		{"plain", "a;b;", []int{1, 3}},
		{"single quoted", "'x;y';", []int{5}},
		{"double quoted", `"x;y";`, []int{5}},
		{"escaped quote", `'it\'s;';`, []int{8}},
		{"doubled quote", `'it''s;';`, []int{8}},
		{"double inside single", `'say "hi;"';`, []int{11}},
		{"escaped backslash", `'a\\';`, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ends := scan(tt.in)
			assert.Equal(t, tt.want, ends)
			assert.False(t, q.Open())
		})
	}
}

func TestQuoteState_BackslashOutsideLiteral(t *testing.T) {
	q, ends := scan(`\';`)
	assert.True(t, q.Open(), "backslash outside a literal does not escape")
	assert.Empty(t, ends)

	q.Reset()
	assert.False(t, q.Open())
}

func TestSplitStatements(t *testing.T) {
	in := strings.Join([]string{
		"-- Start of shop_0.sql",
		"CREATE TABLE `t` (",
		"  `id` int",
		");",
		"# hash comment ';",
		"INSERT INTO `t` VALUES (1,'a;b'),",
		"(2,'-- not a comment');",
		"-- INSERT INTO v_x VALUES ('it''s",
		"--",
		"SELECT 1",
	}, "\n")

	var got []string
	err := SplitStatements(strings.NewReader(in), func(stmt string) error {
		got = append(got, stmt)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "CREATE TABLE `t` (\n  `id` int\n);", got[0])
	assert.Equal(t, "INSERT INTO `t` VALUES (1,'a;b'),\n(2,'-- not a comment');", got[1])
	assert.Equal(t, "SELECT 1", got[2])
}

func TestSplitStatements_BacktickIdentifiers(t *testing.T) {
	in := strings.Join([]string{
		"CREATE TABLE `odd;name` (`col#1` int, `it's` int, `--x` int);",
		"INSERT INTO `odd;name` VALUES (1,2,3);",
	}, "\n")

	var got []string
	err := SplitStatements(strings.NewReader(in), func(stmt string) error {
		got = append(got, stmt)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CREATE TABLE `odd;name` (`col#1` int, `it's` int, `--x` int);",
		"INSERT INTO `odd;name` VALUES (1,2,3);",
	}, got)
}
