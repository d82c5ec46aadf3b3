package moexModel

import "encoding/json"

// Table is the ISS "columns + data" block.
type Table struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type RawHistory struct {
	History       Table `json:"history"`
	HistoryCursor Table `json:"history.cursor"`
}

type RawMarketData struct {
	Marketdata Table `json:"marketdata"`
}

// Column returns the index of name in t.Columns or -1.
func (t Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cursor is parsed from history.cursor and drives paging.
type Cursor struct {
	Index    int64
	Total    int64
	PageSize int64
}

func (c Cursor) HasNext() bool {
	return c.PageSize > 0 && c.Index+c.PageSize < c.Total
}

func ParseCursor(t Table) (Cursor, bool) {
	if len(t.Data) == 0 {
		return Cursor{}, false
	}
	row := t.Data[0]
	get := func(name string) int64 {
		i := t.Column(name)
		if i < 0 || i >= len(row) {
			return 0
		}
		if n, ok := row[i].(json.Number); ok {
			v, _ := n.Int64()
			return v
		}
		return 0
	}
	return Cursor{Index: get("INDEX"), Total: get("TOTAL"), PageSize: get("PAGESIZE")}, true
}
