package schema

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLengths(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		target *int
	}{
		{"short", "  `a` varchar(20) NOT NULL,", "  `a` VARCHAR(100) NOT NULL,", intPtr(100)},
		{"boundary", "  `a` varchar(100),", "  `a` VARCHAR(100),", intPtr(100)},
		{"long", "  `a` varchar(101),", "  `a` VARCHAR(191),", intPtr(191)},
		{"bare name", "name VARCHAR(250) not null", "name VARCHAR(191) not null", intPtr(191)},
		{"key length", "  KEY `k` (`a`(255),`b`(10))", "  KEY `k` (`a`(191),`b`(191))", nil},
		{
			"varchar in comment of text column",
			"  `note` text COMMENT 'was varchar(500) before',",
			"  `note` text COMMENT 'was varchar(500) before',",
			nil,
		},
		{
			"only declared type rewritten",
			"  `a` varchar(300) COMMENT 'was varchar(20)',",
			"  `a` VARCHAR(191) COMMENT 'was varchar(20)',",
			intPtr(191),
		},
		{"untouched", "  `n` int(11) DEFAULT NULL,", "  `n` int(11) DEFAULT NULL,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, target := NormalizeLengths(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestParseColumn(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Column
	}{
		{
			name: "nullable int",
			line: "  `n` int(11) DEFAULT NULL,",
			ok:   true,
			want: Column{Name: "n", Type: "int(11)", Nullable: true, Default: strPtr("NULL")},
		},
		{
			name: "quoted default",
			line: "  `s` char(2) NOT NULL DEFAULT 'xx',",
			ok:   true,
			want: Column{Name: "s", Type: "char(2)", Nullable: false, Default: strPtr("'xx'")},
		},
		{
			name: "case kept on name and enum values",
			line: "  `Kind` ENUM('Big','small') NOT NULL",
			ok:   true,
			want: Column{Name: "Kind", Type: "enum('big','small')", EnumValues: []string{"Big", "small"}},
		},
		{"primary key", "  PRIMARY KEY (`id`),", false, Column{}},
		{"unique key", "  UNIQUE KEY `u` (`a`),", false, Column{}},
		{"index", "  INDEX `i` (`a`),", false, Column{}},
		{"fulltext key", "  FULLTEXT KEY `ft` (`body`),", false, Column{}},
		{"spatial key", "  SPATIAL KEY `sp` (`geo`),", false, Column{}},
		{"constraint", "  CONSTRAINT `fk` FOREIGN KEY (`a`) REFERENCES `b` (`id`)", false, Column{}},
		{"closing line", ") ENGINE=InnoDB;", false, Column{}},
		{"blank", "   ", false, Column{}},
		{"no type", "`lonely`", false, Column{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseColumn(tt.line, nil)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitDefinitions(t *testing.T) {
	defs, tail := splitDefinitions("a int, b enum('x,y','z'), c decimal(10,2)) ENGINE=InnoDB;")
	assert.Equal(t, []string{"a int", " b enum('x,y','z')", " c decimal(10,2)"}, defs)
	assert.Equal(t, ") ENGINE=InnoDB;", tail)

	defs, tail = splitDefinitions("  `a` int,")
	assert.Equal(t, []string{"  `a` int", ""}, defs)
	assert.Empty(t, tail)
}

func TestMetadata_JSONRoundTrip(t *testing.T) {
	meta := Metadata{
		"t": {
			{Name: "id", Type: "int", Nullable: false, Index: 0},
			{Name: "s", Type: "varchar(100)", Nullable: true, Index: 1, VarcharLength: intPtr(100), Default: strPtr("''")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, meta.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"varchar_length": 100`)
	assert.Contains(t, buf.String(), `"enum_values": null`)

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    Metadata
		wantErr bool
	}{
		{"valid", Metadata{"t": {{Name: "a", Type: "int", Index: 0}, {Name: "b", Type: "int", Index: 1}}}, false},
		{"gap", Metadata{"t": {{Name: "a", Type: "int", Index: 0}, {Name: "b", Type: "int", Index: 2}}}, true},
		{"bad varchar", Metadata{"t": {{Name: "a", Type: "varchar(50)", VarcharLength: intPtr(50)}}}, true},
		{"varchar length on text", Metadata{"t": {{Name: "a", Type: "text", VarcharLength: intPtr(191)}}}, true},
		{"enum without values", Metadata{"t": {{Name: "a", Type: "enum('x')"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMetadata_TablesSorted(t *testing.T) {
	meta := Metadata{"b": nil, "a": nil, "c": {{Name: "x"}}}
	assert.Equal(t, []string{"a", "b", "c"}, meta.Tables())
	assert.Equal(t, 1, meta.ColumnCount())
}
