package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
)

// Column names of the raw source table.
const (
	LabelColumn    = "diagnosis"
	IDColumn       = "id"
	TrailingColumn = "Unnamed: 32"

	unnamedPrefix = "Unnamed: "
)

// Label codes of the raw diagnosis column and their binary encoding.
const (
	CodeMalignant = "M"
	CodeBenign    = "B"

	LabelBenign    = 0
	LabelMalignant = 1
)

var labelCodes = map[string]int{
	CodeMalignant: LabelMalignant,
	CodeBenign:    LabelBenign,
}

// Table is the source CSV as read, one string per cell.
type Table struct {
	Header []string
	Rows   [][]string

	clean bool
}

// ReadCSV reads a header row and the data rows from r. Header cells left
// empty are named "Unnamed: <index>", so the trailing empty column of the
// source file becomes TrailingColumn.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewDataShapeError("ReadCSV", "", 0, "no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}

	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("%s%d", unnamedPrefix, i)
		}
		if seen[name] {
			return nil, errors.NewDataShapeError("ReadCSV", name, 0, "duplicate column")
		}
		seen[name] = true
		header[i] = name
	}

	var rows [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv row %d", len(rows)+1)
		}
		rows = append(rows, rec)
	}

	return &Table{Header: header, Rows: rows}, nil
}

// LoadTable reads the CSV file at path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	return ReadCSV(f)
}

// IsClean reports whether t came out of Clean.
func (t *Table) IsClean() bool {
	return t.clean
}

// trailingIndex returns the position of the empty-header column. ReadCSV
// names it after its position, so a shifted header still finds it.
func (t *Table) trailingIndex() int {
	if i := t.ColumnIndex(TrailingColumn); i >= 0 {
		return i
	}
	for i, h := range t.Header {
		if strings.HasPrefix(h, unnamedPrefix) {
			return i
		}
	}
	return -1
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Clean drops the id and trailing empty columns and encodes the diagnosis
// as 1 for "M" and 0 for "B". Row order is preserved.
//
// Clean is idempotent. A cleaned table is returned as is, and a table that
// already lacks both junk columns is validated and accepted when its labels
// are already 0/1. Anything else is a DataShapeError: one junk column
// without the other, a missing or unexpected column, a label code other
// than M/B, or an empty or non-numeric feature cell.
func (t *Table) Clean() (*Table, error) {
	if t.clean {
		return t, nil
	}
	const op = "Clean"

	labelIdx := t.ColumnIndex(LabelColumn)
	if labelIdx < 0 {
		return nil, errors.NewDataShapeError(op, LabelColumn, 0, "column is missing")
	}

	idIdx, trailingIdx := t.ColumnIndex(IDColumn), t.trailingIndex()
	raw := idIdx >= 0 || trailingIdx >= 0
	switch {
	case idIdx < 0 && trailingIdx >= 0:
		return nil, errors.NewDataShapeError(op, IDColumn, 0, "column is missing")
	case idIdx >= 0 && trailingIdx < 0:
		return nil, errors.NewDataShapeError(op, TrailingColumn, 0, "column is missing")
	}

	for _, key := range featureKeys {
		if t.ColumnIndex(key) < 0 {
			return nil, errors.NewDataShapeError(op, key, 0, "column is missing")
		}
	}

	keep := make([]int, 0, NumFeatures+1)
	for i, name := range t.Header {
		switch {
		case i == idIdx || i == trailingIdx:
			continue
		case i == labelIdx || IsFeatureKey(name):
			keep = append(keep, i)
		default:
			return nil, errors.NewDataShapeError(op, name, 0, "unexpected column")
		}
	}

	if len(t.Rows) == 0 {
		return nil, errors.NewDataShapeError(op, "", 0, "no data rows")
	}

	out := &Table{
		Header: make([]string, 0, len(keep)),
		Rows:   make([][]string, len(t.Rows)),
		clean:  true,
	}
	for _, i := range keep {
		out.Header = append(out.Header, t.Header[i])
	}

	for r, row := range t.Rows {
		label, err := encodeLabel(row[labelIdx], raw)
		if err != nil {
			return nil, errors.NewDataShapeError(op, LabelColumn, r+1, err.Error())
		}

		cleaned := make([]string, 0, len(keep))
		for _, i := range keep {
			if i == labelIdx {
				cleaned = append(cleaned, strconv.Itoa(label))
				continue
			}
			if _, err := parseCell(row[i]); err != nil {
				return nil, errors.NewDataShapeError(op, t.Header[i], r+1, err.Error())
			}
			cleaned = append(cleaned, strings.TrimSpace(row[i]))
		}
		out.Rows[r] = cleaned
	}

	return out, nil
}

func encodeLabel(code string, raw bool) (int, error) {
	if raw {
		label, ok := labelCodes[code]
		if !ok {
			return 0, fmt.Errorf("unknown label code %q", code)
		}
		return label, nil
	}

	switch code {
	case "0":
		return LabelBenign, nil
	case "1":
		return LabelMalignant, nil
	case CodeMalignant, CodeBenign:
		return 0, fmt.Errorf("raw label code %q in a table without the %q and %q columns", code, IDColumn, TrailingColumn)
	default:
		return 0, fmt.Errorf("unknown label code %q", code)
	}
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", cell)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", cell)
	}
	return v, nil
}

// Dataset converts a cleaned table into a LabeledDataset whose columns
// follow FeatureKeys.
func (t *Table) Dataset() (*LabeledDataset, error) {
	if !t.clean {
		return nil, errors.NewValueError("Table.Dataset", "table is not clean; call Clean first")
	}

	cols := make([]int, NumFeatures)
	for j, key := range featureKeys {
		cols[j] = t.ColumnIndex(key)
	}
	labelIdx := t.ColumnIndex(LabelColumn)

	n := len(t.Rows)
	data := make([]float64, 0, n*NumFeatures)
	y := make([]float64, n)
	for r, row := range t.Rows {
		for _, c := range cols {
			v, err := parseCell(row[c])
			if err != nil {
				return nil, errors.NewDataShapeError("Table.Dataset", t.Header[c], r+1, err.Error())
			}
			data = append(data, v)
		}
		label, _ := strconv.Atoi(row[labelIdx])
		y[r] = float64(label)
	}

	return newLabeledDataset(FeatureKeys(), data, y), nil
}

// Load reads, cleans and converts the dataset at path.
func Load(path string) (*LabeledDataset, error) {
	logger := log.GetLoggerWithName("dataset")

	table, err := LoadTable(path)
	if err != nil {
		return nil, err
	}
	clean, err := table.Clean()
	if err != nil {
		logger.Error("dataset rejected", err, log.PathKey, path)
		return nil, err
	}
	ds, err := clean.Dataset()
	if err != nil {
		return nil, err
	}

	summary := ds.Summary()
	logger.Info("dataset loaded",
		log.PathKey, path,
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, len(ds.Keys),
		"benign", summary.Benign,
		"malignant", summary.Malignant,
	)
	return ds, nil
}
