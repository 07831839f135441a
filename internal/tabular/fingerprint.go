package tabular

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Encode renders the table in a canonical, type-tagged text form. Two tables
// encode to the same bytes exactly when Equal reports true.
func (t *Table) Encode() []byte {
	var sb strings.Builder
	sb.WriteString("table:")
	sb.WriteString(strconv.Quote(t.name))
	sb.WriteByte('\n')
	for _, c := range t.columns {
		sb.WriteString(strconv.Quote(c.Name))
		sb.WriteByte(':')
		sb.WriteString(string(c.Kind))
		sb.WriteByte('\t')
	}
	sb.WriteByte('\n')
	for _, r := range t.rows {
		for _, v := range r {
			writeCell(&sb, v)
			sb.WriteByte('\t')
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Fingerprint returns the hex SHA-256 of Encode.
func (t *Table) Fingerprint() string {
	sum := sha256.Sum256(t.Encode())
	return hex.EncodeToString(sum[:])
}

func writeCell(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("~")
	case string:
		sb.WriteString("s")
		sb.WriteString(strconv.Quote(x))
	case int64:
		sb.WriteString("i")
		sb.WriteString(strconv.FormatInt(x, 10))
	case float64:
		sb.WriteString("f")
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case bool:
		sb.WriteString("b")
		sb.WriteString(strconv.FormatBool(x))
	}
}

// Key returns a canonical encoding of row i restricted to columns, suitable as
// a map key. Missing columns encode as null.
func (t *Table) Key(i int, columns []string) string {
	var sb strings.Builder
	for _, c := range columns {
		writeCell(&sb, t.Value(i, c))
		sb.WriteByte('\x1f')
	}
	return sb.String()
}

// RowKey encodes every cell of row i.
func (t *Table) RowKey(i int) string {
	var sb strings.Builder
	for _, v := range t.rows[i] {
		writeCell(&sb, v)
		sb.WriteByte('\x1f')
	}
	return sb.String()
}
