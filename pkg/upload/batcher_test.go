package upload

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher(t *testing.T) {
	t.Parallel()
	csvData := "\ufeffsku , mrp,name\n" +
		"A1,100,Soap\n" +
		"A2,200\n" +
		"\n" +
		",,\n" +
		"A3,300,\"Oil, 1L\",extra\n" +
		"A4,400,Tea\n"

	b := NewBatcher(strings.NewReader(csvData), 2)

	first, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)
	require.Len(t, first.Rows, 2)
	assert.Equal(t, []string{"sku", "mrp", "name"}, b.Header())
	assert.Equal(t, []string{"sku", "mrp", "name"}, first.Rows[0].Keys())
	assert.Equal(t, "Soap", first.Rows[0].String("name"))
	assert.Equal(t, "", first.Rows[1].String("name"), "short rows are padded")

	second, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)
	require.Len(t, second.Rows, 2, "blank rows are skipped")
	assert.Equal(t, "Oil, 1L", second.Rows[0].String("name"))
	assert.Equal(t, 3, second.Rows[0].Len(), "cells past the header are dropped")
	assert.Equal(t, "A4", second.Rows[1].String("sku"))

	_, err = b.Next()
	assert.Equal(t, io.EOF, err)
	_, err = b.Next()
	assert.Equal(t, io.EOF, err)
}

func TestBatcher_RepeatedHeaders(t *testing.T) {
	t.Parallel()
	b := NewBatcher(strings.NewReader("sku,sku,mrp,sku_1,sku\nA,B,10,C,D\n"), 10)

	batch, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"sku", "sku_2", "mrp", "sku_1", "sku_3"}, b.Header())
	row := batch.Rows[0]
	assert.Equal(t, "A", row.String("sku"))
	assert.Equal(t, "B", row.String("sku_2"))
	assert.Equal(t, "C", row.String("sku_1"))
	assert.Equal(t, "D", row.String("sku_3"))
	assert.Equal(t, 5, row.Len())
}

func TestBatcher_ShortFinalBatch(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	sb.WriteString("sku\n")
	for i := 0; i < 250; i++ {
		sb.WriteString("X\n")
	}

	b := NewBatcher(strings.NewReader(sb.String()), 100)
	sizes := []int{}
	for {
		batch, err := b.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(batch.Rows))
	}
	assert.Equal(t, []int{100, 100, 50}, sizes)
}

func TestBatcher_Empty(t *testing.T) {
	t.Parallel()
	_, err := NewBatcher(strings.NewReader(""), 10).Next()
	assert.Equal(t, io.EOF, err)

	_, err = NewBatcher(strings.NewReader("sku,mrp\n"), 10).Next()
	assert.Equal(t, io.EOF, err)
}

func TestEntities(t *testing.T) {
	t.Parallel()
	assert.True(t, ValidEntity("appario"))
	assert.False(t, ValidEntity("users"))
	assert.Equal(t, "/coco/upload-chunk", Endpoint("coco"))
}
