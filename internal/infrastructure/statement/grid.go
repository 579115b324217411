package statement

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

// sheet is a worksheet flattened to trimmed cell text. Row i is line i+1.
type sheet struct {
	name string
	rows [][]string
}

func readSheets(container domain.Container, content []byte) ([]sheet, error) {
	switch container {
	case domain.ContainerXLSX:
		return readXLSX(content)
	case domain.ContainerXLS:
		return readXLS(content)
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "read workbook", fmt.Errorf("container %q is not tabular", container))
	}
}

func readXLSX(content []byte) ([]sheet, error) {
	book, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedStatement, "open xlsx", err)
	}
	defer book.Close()

	var sheets []sheet
	for _, name := range book.GetSheetList() {
		rows, err := book.GetRows(name)
		if err != nil {
			return nil, domain.WrapError(domain.ErrMalformedStatement, "read xlsx sheet "+name, err)
		}
		for i := range rows {
			trimCells(rows[i])
		}
		sheets = append(sheets, sheet{name: name, rows: rows})
	}
	return sheets, nil
}

// readXLS reads a legacy BIFF workbook. The decoder panics on some damaged
// files, so panics are turned into malformed-statement errors.
func readXLS(content []byte) (sheets []sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets = nil
			err = domain.WrapError(domain.ErrMalformedStatement, "open xls", fmt.Errorf("corrupt workbook: %v", r))
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedStatement, "open xls", err)
	}
	if book == nil {
		return nil, domain.WrapError(domain.ErrMalformedStatement, "open xls", errors.New("no workbook stream"))
	}

	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			rows = append(rows, xlsRow(ws, r))
		}
		sheets = append(sheets, sheet{name: ws.Name, rows: rows})
	}
	return sheets, nil
}

// xlsRow returns nil for rows the sheet does not store.
func xlsRow(ws *xls.WorkSheet, index int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := ws.Row(index)
	if row == nil {
		return nil
	}
	cells = make([]string, row.LastCol())
	for c := row.FirstCol(); c < row.LastCol(); c++ {
		cells[c] = strings.TrimSpace(row.Col(c))
	}
	return cells
}

func trimCells(cells []string) {
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
}

func cellAt(cells []string, index int) string {
	if index < 0 || index >= len(cells) {
		return ""
	}
	return cells[index]
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
